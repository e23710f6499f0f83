// Package authz resolves the permission rule configured for a privileged
// waitlist operation.
package authz

import (
	"context"

	apperrors "waitgate/pkg/errors"
	"waitgate/pkg/logger"
	"waitgate/pkg/session"
)

// Predicate decides access from the request context alone.
type Predicate func(ctx context.Context) (bool, error)

// Rule is either a Predicate or a delegated statement/permissions pair.
// The zero Rule denies everything.
type Rule struct {
	predicate   Predicate
	statement   string
	permissions []string
}

func Allow(p Predicate) Rule {
	return Rule{predicate: p}
}

func Delegate(statement string, permissions ...string) Rule {
	return Rule{statement: statement, permissions: append([]string(nil), permissions...)}
}

func (r Rule) Delegated() bool {
	return r.predicate == nil && r.statement != ""
}

// Permissions returns the delegated permission set keyed by statement.
func (r Rule) Permissions() map[string][]string {
	if !r.Delegated() {
		return nil
	}
	return map[string][]string{r.statement: append([]string(nil), r.permissions...)}
}

// Evaluator is the external role-based authorization component.
type Evaluator interface {
	HasPermission(ctx context.Context, s *session.Session, permissions map[string][]string) (bool, error)
}

type Gate struct {
	evaluator Evaluator
	log       *logger.Logger
}

// NewGate builds a gate. A nil evaluator makes every delegated rule fail with
// FAILED_DEPENDENCY.
func NewGate(evaluator Evaluator, log *logger.Logger) *Gate {
	return &Gate{evaluator: evaluator, log: log}
}

// Authorize returns nil when the caller may perform the operation guarded by
// rule. It never fails open.
func (g *Gate) Authorize(ctx context.Context, operation string, rule Rule) error {
	switch {
	case rule.predicate != nil:
		return g.authorizePredicate(ctx, operation, rule.predicate)
	case rule.statement != "":
		return g.authorizeDelegated(ctx, operation, rule)
	default:
		g.log.Error("No authorization rule configured", "operation", operation)
		return apperrors.Forbidden("You are not allowed to perform this operation")
	}
}

func (g *Gate) authorizePredicate(ctx context.Context, operation string, p Predicate) error {
	allowed, err := p(ctx)
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		g.log.Warn("Authorization predicate failed", "operation", operation, "error", err)
		return apperrors.Forbidden("You are not allowed to perform this operation")
	}
	if !allowed {
		g.log.Info("Authorization denied", "operation", operation, "mode", "predicate")
		return apperrors.Forbidden("You are not allowed to perform this operation")
	}
	return nil
}

func (g *Gate) authorizeDelegated(ctx context.Context, operation string, rule Rule) error {
	s, ok := session.FromContext(ctx)
	if !ok {
		return apperrors.Unauthorized("An active session is required")
	}

	if g.evaluator == nil {
		g.log.Error("Delegated authorization configured without an authorization component", "operation", operation)
		return apperrors.FailedDependency("Authorization component is not configured")
	}

	allowed, err := g.evaluator.HasPermission(ctx, s, rule.Permissions())
	if err != nil {
		g.log.Error("Authorization component failed",
			"operation", operation,
			"user_id", s.UserID,
			"error", err,
		)
		return apperrors.Forbidden("You are not allowed to perform this operation")
	}
	if !allowed {
		g.log.Info("Authorization denied", "operation", operation, "mode", "delegated", "user_id", s.UserID)
		return apperrors.Forbidden("You are not allowed to perform this operation")
	}
	return nil
}
