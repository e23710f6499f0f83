package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	PredicateAllow         = "allow"
	PredicateDeny          = "deny"
	PredicateAuthenticated = "authenticated"

	policyEnvPrefix = "WAITLIST"
)

// Policy is the operator-facing waitlist configuration. It is read from an
// optional file (yaml, toml or json) and WAITLIST_* environment variables,
// the latter taking precedence. Keys are case-insensitive.
type Policy struct {
	Concurrent               bool              `mapstructure:"concurrent"`
	DisableSignUp            bool              `mapstructure:"disable_sign_up"`
	DisableSignIn            bool              `mapstructure:"disable_sign_in"`
	DisableSessionMiddleware bool              `mapstructure:"disable_session_middleware"`
	Permissions              PermissionsPolicy `mapstructure:"permissions"`
	Schema                   SchemaPolicy      `mapstructure:"schema"`
}

type PermissionsPolicy struct {
	CreateWaitlist PermissionRule `mapstructure:"create_waitlist"`
	GetWaitlist    PermissionRule `mapstructure:"get_waitlist"`
	AcceptUser     PermissionRule `mapstructure:"accept_user"`
	RejectUser     PermissionRule `mapstructure:"reject_user"`
}

// PermissionRule is either a named predicate or a delegated
// statement/permissions pair, never both.
type PermissionRule struct {
	Predicate   string   `mapstructure:"predicate"`
	Statement   string   `mapstructure:"statement"`
	Permissions []string `mapstructure:"permissions"`
}

func (r PermissionRule) Delegated() bool {
	return r.Statement != ""
}

type SchemaPolicy struct {
	Waitlist     ModelPolicy `mapstructure:"waitlist"`
	WaitlistUser ModelPolicy `mapstructure:"waitlist_user"`
}

type ModelPolicy struct {
	ModelName        string                 `mapstructure:"model_name"`
	AdditionalFields map[string]FieldPolicy `mapstructure:"additional_fields"`
}

type FieldPolicy struct {
	Type         string `mapstructure:"type"`
	Required     bool   `mapstructure:"required"`
	Input        *bool  `mapstructure:"input"`
	Returned     *bool  `mapstructure:"returned"`
	DefaultValue any    `mapstructure:"default_value"`
}

var policyEnvKeys = []string{
	"concurrent",
	"disable_sign_up",
	"disable_sign_in",
	"disable_session_middleware",
	"schema.waitlist.model_name",
	"schema.waitlist_user.model_name",
}

var permissionKeys = []string{
	"create_waitlist",
	"get_waitlist",
	"accept_user",
	"reject_user",
}

func LoadPolicy(path string) (*Policy, error) {
	v := viper.New()

	v.SetDefault("concurrent", false)
	v.SetDefault("disable_sign_up", true)
	v.SetDefault("disable_sign_in", false)
	v.SetDefault("disable_session_middleware", false)
	v.SetDefault("schema.waitlist.model_name", DefaultWaitlistModelName)
	v.SetDefault("schema.waitlist_user.model_name", DefaultWaitlistUserModelName)

	v.SetEnvPrefix(policyEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range policyEnvKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	for _, op := range permissionKeys {
		for _, field := range []string{"predicate", "statement", "permissions"} {
			key := "permissions." + op + "." + field
			if err := v.BindEnv(key); err != nil {
				return nil, fmt.Errorf("failed to bind %s: %w", key, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
	}

	var policy Policy
	if err := v.Unmarshal(&policy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}

	return &policy, nil
}

func (p *Policy) Validate() error {
	var errors []string

	rules := []struct {
		name string
		rule PermissionRule
	}{
		{"permissions.create_waitlist", p.Permissions.CreateWaitlist},
		{"permissions.get_waitlist", p.Permissions.GetWaitlist},
		{"permissions.accept_user", p.Permissions.AcceptUser},
		{"permissions.reject_user", p.Permissions.RejectUser},
	}
	for _, r := range rules {
		if err := r.rule.validate(); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", r.name, err))
		}
	}

	if p.Schema.Waitlist.ModelName == "" {
		errors = append(errors, "schema.waitlist.model_name cannot be empty")
	}
	if p.Schema.WaitlistUser.ModelName == "" {
		errors = append(errors, "schema.waitlist_user.model_name cannot be empty")
	}
	if p.Schema.Waitlist.ModelName != "" && p.Schema.Waitlist.ModelName == p.Schema.WaitlistUser.ModelName {
		errors = append(errors, "schema.waitlist and schema.waitlist_user must use different model names")
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid waitlist policy: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (r PermissionRule) validate() error {
	switch {
	case r.Predicate != "" && r.Statement != "":
		return fmt.Errorf("predicate and statement are mutually exclusive")
	case r.Statement != "":
		if len(r.Permissions) == 0 {
			return fmt.Errorf("statement %q needs at least one permission", r.Statement)
		}
		return nil
	case r.Predicate != "":
		switch r.Predicate {
		case PredicateAllow, PredicateDeny, PredicateAuthenticated:
			return nil
		}
		return fmt.Errorf("unknown predicate %q", r.Predicate)
	default:
		return fmt.Errorf("a predicate or a statement with permissions is required")
	}
}
