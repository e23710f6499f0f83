package sanitizer

import "strings"

// CollapseSpace trims s and folds every run of Unicode whitespace into a
// single ASCII space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func Name(name string) string {
	return CollapseSpace(name)
}

// Email lowercases the whole address. Mailbox case sensitivity is not
// honoured by any provider we admit users from.
func Email(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func Statement(statement string) string {
	return CollapseSpace(statement)
}

// Permissions trims and dedupes a permission list, keeping first-seen order.
// Case is kept; the authorization service owns permission naming.
func Permissions(permissions []string) []string {
	out := make([]string, 0, len(permissions))
	seen := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		p = CollapseSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
