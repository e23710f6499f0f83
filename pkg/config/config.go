package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"waitgate/pkg/client"
	"waitgate/pkg/logger"
)

type Config struct {
	ServiceName string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SessionSecret   string
	AuthzServiceURL string
	AuthzTimeout    time.Duration
	LockTTL         time.Duration

	KafkaBrokers      string
	ProvisioningTopic string

	PolicyFile string
	Policy     *Policy

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		ServiceName: serviceName,

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		SessionSecret:   getEnvStr(EnvSessionSecret, ""),
		AuthzServiceURL: getEnvStr(EnvAuthzServiceURL, ""),
		AuthzTimeout:    getEnvDuration(EnvAuthzTimeout, DefaultAuthzTimeout),
		LockTTL:         getEnvDuration(EnvLockTTL, DefaultLockTTL),

		KafkaBrokers:      getEnvStr(EnvKafkaBrokers, ""),
		ProvisioningTopic: getEnvStr(EnvProvisioningTopic, DefaultProvisioningTopic),

		PolicyFile: getEnvStr(EnvPolicyFile, ""),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    getEnvStr(EnvLogFormat, logger.JSON),
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	policy, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		cfg.Log.Fatal("Failed to load waitlist policy", "file", cfg.PolicyFile, "error", err)
	}
	cfg.Policy = policy

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.ServiceName, cfg.MongoURI, cfg.MongoConnTimeout)
}

// KafkaEnabled reports whether account provisioning requests are published.
func (cfg *Config) KafkaEnabled() bool {
	return strings.TrimSpace(cfg.KafkaBrokers) != ""
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}

	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"AuthzTimeout", cfg.AuthzTimeout},
		{"LockTTL", cfg.LockTTL},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.AuthzServiceURL != "" {
		if u, err := url.Parse(cfg.AuthzServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("AuthzServiceURL must be an absolute URL, got: %s", cfg.AuthzServiceURL))
		}
	}

	if cfg.KafkaEnabled() && cfg.ProvisioningTopic == "" {
		errors = append(errors, "ProvisioningTopic cannot be empty when Kafka is enabled")
	}

	if cfg.Policy != nil {
		if !cfg.Policy.DisableSessionMiddleware && cfg.SessionSecret == "" {
			errors = append(errors, "SessionSecret is required unless the session middleware is disabled")
		}
		if err := cfg.Policy.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	args := []any{
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"session_secret_set", cfg.SessionSecret != "",
		"authz_service_url", cfg.AuthzServiceURL,
		"authz_timeout", cfg.AuthzTimeout,
		"lock_ttl", cfg.LockTTL,
		"kafka_enabled", cfg.KafkaEnabled(),
		"provisioning_topic", cfg.ProvisioningTopic,
		"policy_file", cfg.PolicyFile,
	}
	if cfg.Policy != nil {
		args = append(args,
			"concurrent", cfg.Policy.Concurrent,
			"disable_sign_up", cfg.Policy.DisableSignUp,
			"disable_sign_in", cfg.Policy.DisableSignIn,
			"disable_session_middleware", cfg.Policy.DisableSessionMiddleware,
		)
	}
	cfg.Log.Info("Configuration loaded successfully", args...)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}
