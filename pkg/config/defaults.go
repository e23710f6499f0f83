package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "waitgate"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultAuthzTimeout = 5 * time.Second
	DefaultLockTTL      = 10 * time.Second

	DefaultProvisioningTopic = "account.provisioning"

	DefaultWaitlistModelName     = "Waitlists"
	DefaultWaitlistUserModelName = "Waitlist_users"
	DefaultWaitlistLockModelName = "Waitlist_locks"
)
