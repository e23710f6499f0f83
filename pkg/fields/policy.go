package fields

import (
	"strings"

	"waitgate/pkg/config"
)

// DeclarationsFromPolicy converts configured additional fields. Types are
// matched case-insensitively; unsupported types are left for Extend to
// report.
func DeclarationsFromPolicy(policies map[string]config.FieldPolicy) Declarations {
	if len(policies) == 0 {
		return nil
	}
	decl := make(Declarations, len(policies))
	for name, p := range policies {
		decl[name] = Attribute{
			Type:         Type(strings.ToLower(strings.TrimSpace(p.Type))),
			Required:     p.Required,
			Input:        p.Input,
			Returned:     p.Returned,
			DefaultValue: p.DefaultValue,
		}
	}
	return decl
}
