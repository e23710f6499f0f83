package kafka_config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	validCompressions = []string{"none", "gzip", "snappy", "lz4", "zstd"}
	validAcks         = []int{-1, 1}
)

// Config holds producer configuration. Consumers live in downstream services.
type Config struct {
	Brokers []string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerWriteTimeout time.Duration
	ProducerRequireAcks  int    // -1 = all, 1 = leader only
	ProducerCompression  string // one of validCompressions
	ProducerAsync        bool   // must be false; see Validate

	EnableMiddleware bool
}

// Load builds a producer config for the comma separated broker list. Tuning
// knobs come from KAFKA_* environment variables; values that do not parse
// fall back to zero and fail validation.
func Load(brokers string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(EnvKafkaProducerMaxAttempts, DefaultProducerMaxAttempts)
	v.SetDefault(EnvKafkaProducerBatchTimeout, DefaultProducerBatchTimeout)
	v.SetDefault(EnvKafkaProducerWriteTimeout, DefaultProducerWriteTimeout)
	v.SetDefault(EnvKafkaProducerRequireAcks, DefaultProducerRequireAcks)
	v.SetDefault(EnvKafkaProducerCompression, DefaultProducerCompression)
	v.SetDefault(EnvKafkaProducerAsync, DefaultProducerAsync)
	v.SetDefault(EnvKafkaEnableMiddleware, DefaultEnableMiddleware)

	cfg := &Config{
		Brokers: ParseBrokers(brokers),

		ProducerMaxAttempts:  v.GetInt(EnvKafkaProducerMaxAttempts),
		ProducerBatchTimeout: v.GetDuration(EnvKafkaProducerBatchTimeout),
		ProducerWriteTimeout: v.GetDuration(EnvKafkaProducerWriteTimeout),
		ProducerRequireAcks:  v.GetInt(EnvKafkaProducerRequireAcks),
		ProducerCompression:  strings.ToLower(v.GetString(EnvKafkaProducerCompression)),
		ProducerAsync:        v.GetBool(EnvKafkaProducerAsync),

		EnableMiddleware: v.GetBool(EnvKafkaEnableMiddleware),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func (cfg *Config) Validate() error {
	var errs []string

	if len(cfg.Brokers) == 0 {
		errs = append(errs, "At least one Kafka broker is required")
	}
	if cfg.ProducerMaxAttempts <= 0 {
		errs = append(errs, fmt.Sprintf("ProducerMaxAttempts must be positive, got: %d", cfg.ProducerMaxAttempts))
	}
	if cfg.ProducerBatchTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ProducerBatchTimeout must be positive, got: %s", cfg.ProducerBatchTimeout))
	}
	if cfg.ProducerWriteTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ProducerWriteTimeout must be positive, got: %s", cfg.ProducerWriteTimeout))
	}
	if !slices.Contains(validCompressions, cfg.ProducerCompression) {
		errs = append(errs, fmt.Sprintf("ProducerCompression must be one of %v, got: %s", validCompressions, cfg.ProducerCompression))
	}
	// Callers treat a nil publish error as delivered, so every write must be
	// synchronous and acknowledged.
	if !slices.Contains(validAcks, cfg.ProducerRequireAcks) {
		errs = append(errs, fmt.Sprintf("ProducerRequireAcks must be -1 or 1, got: %d", cfg.ProducerRequireAcks))
	}
	if cfg.ProducerAsync {
		errs = append(errs, "ProducerAsync is not supported: publishes must be acknowledged before returning")
	}

	if len(errs) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("Kafka configuration validation failed:\n")
	for i, e := range errs {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, e)
	}
	return fmt.Errorf("%s", b.String())
}

func (cfg *Config) LogConfiguration(logFunc func(msg string, args ...any)) {
	if logFunc == nil {
		return
	}

	logFunc("Kafka configuration loaded successfully",
		"brokers", cfg.Brokers,
		"producer_max_attempts", cfg.ProducerMaxAttempts,
		"producer_batch_timeout", cfg.ProducerBatchTimeout,
		"producer_write_timeout", cfg.ProducerWriteTimeout,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"producer_async", cfg.ProducerAsync,
		"enable_middleware", cfg.EnableMiddleware,
	)
}
