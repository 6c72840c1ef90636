package config

import "time"

const (
	DefaultAppEnv = "development"

	DefaultMongoURI          = "mongodb://localhost:27017/?replicaSet=rs0"
	DefaultMongoDatabaseName = "medislot"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisDB = 0

	DefaultChallengeTopic = "identity.challenges"

	DefaultMetricsEnabled = true

	DefaultPort = "8080"

	DefaultLogLevel = "info"

	DefaultSessionTTL   = 7 * 24 * time.Hour
	DefaultCookieName   = "token"
	DefaultOTPTTL       = 5 * time.Minute
	DefaultBcryptCost   = 12
	MinJWTSecretLength  = 32
	DefaultClientURL    = "http://localhost:3000"
	DefaultSlotTimezone = "UTC"

	DefaultRateLimitRequests     = 100
	DefaultRateLimitWindow       = 15 * time.Minute
	DefaultAuthRateLimitRequests = 10
	DefaultAuthRateLimitWindow   = 15 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)
