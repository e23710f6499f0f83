package authz

import (
	"context"

	"waitgate/pkg/config"
	"waitgate/pkg/sanitizer"
	"waitgate/pkg/session"
)

// FromPolicy turns a configured permission rule into a Rule.
func FromPolicy(r config.PermissionRule) Rule {
	if r.Delegated() {
		return Delegate(sanitizer.Statement(r.Statement), sanitizer.Permissions(r.Permissions)...)
	}

	switch r.Predicate {
	case config.PredicateAllow:
		return Allow(func(context.Context) (bool, error) { return true, nil })
	case config.PredicateAuthenticated:
		return Allow(func(ctx context.Context) (bool, error) {
			_, ok := session.FromContext(ctx)
			return ok, nil
		})
	default:
		return Allow(func(context.Context) (bool, error) { return false, nil })
	}
}
