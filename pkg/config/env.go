package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSessionSecret   = "SESSION_SECRET"
	EnvAuthzServiceURL = "AUTHZ_SERVICE_URL"
	EnvAuthzTimeout    = "AUTHZ_TIMEOUT"
	EnvLockTTL         = "WAITLIST_LOCK_TTL"

	EnvKafkaBrokers      = "KAFKA_BROKERS"
	EnvProvisioningTopic = "PROVISIONING_TOPIC"

	EnvPolicyFile = "WAITLIST_POLICY_FILE"
)
