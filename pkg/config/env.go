package config

const (
	EnvAppEnv = "APP_ENV"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvKafkaEnabled      = "KAFKA_ENABLED"
	EnvChallengeTopic    = "CHALLENGE_TOPIC"
	EnvChallengeDLQTopic = "CHALLENGE_DLQ_TOPIC"

	EnvMetricsEnabled = "METRICS_ENABLED"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret    = "JWT_SECRET"
	EnvSessionTTL   = "SESSION_TTL"
	EnvCookieName   = "SESSION_COOKIE_NAME"
	EnvCookieSecure = "COOKIE_SECURE"
	EnvOTPTTL       = "OTP_TTL"
	EnvBcryptCost   = "BCRYPT_COST"

	EnvClientURL = "CLIENT_URL"

	EnvRateLimitRequests     = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow       = "RATE_LIMIT_WINDOW"
	EnvAuthRateLimitRequests = "AUTH_RATE_LIMIT_REQUESTS"
	EnvAuthRateLimitWindow   = "AUTH_RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSlotTimezone = "SLOT_TIMEZONE"
)
