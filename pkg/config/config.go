package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"medislot/pkg/client"
	"medislot/pkg/logger"

	"github.com/joho/godotenv"
)

const envProduction = "production"

type Config struct {
	AppEnv string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaEnabled      bool
	ChallengeTopic    string
	ChallengeDLQTopic string

	MetricsEnabled bool

	Port string

	JWTSecret    string
	SessionTTL   time.Duration
	CookieName   string
	CookieSecure bool
	OTPTTL       time.Duration
	BcryptCost   int

	ClientURL string

	RateLimitRequests     int
	RateLimitWindow       time.Duration
	AuthRateLimitRequests int
	AuthRateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SlotTimezone string

	Log    *logger.Logger
	Client *client.Client
}

// Load reads configuration from the environment, optionally seeded by a .env
// file in the working directory. Invalid configuration is fatal.
func Load(serviceName string) *Config {
	envFileErr := godotenv.Load()

	appEnv := getEnvStr(EnvAppEnv, DefaultAppEnv)
	cfg := &Config{
		AppEnv: appEnv,

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		KafkaEnabled:      getEnvBool(EnvKafkaEnabled, false),
		ChallengeTopic:    getEnvStr(EnvChallengeTopic, DefaultChallengeTopic),
		ChallengeDLQTopic: getEnvStr(EnvChallengeDLQTopic, ""),

		MetricsEnabled: getEnvBool(EnvMetricsEnabled, DefaultMetricsEnabled),

		Port: getEnvStr(EnvPort, DefaultPort),

		JWTSecret:    getEnvStr(EnvJWTSecret, ""),
		SessionTTL:   getEnvDuration(EnvSessionTTL, DefaultSessionTTL),
		CookieName:   getEnvStr(EnvCookieName, DefaultCookieName),
		CookieSecure: getEnvBool(EnvCookieSecure, appEnv == envProduction),
		OTPTTL:       getEnvDuration(EnvOTPTTL, DefaultOTPTTL),
		BcryptCost:   getEnvNum(EnvBcryptCost, DefaultBcryptCost),

		ClientURL: getEnvStr(EnvClientURL, DefaultClientURL),

		RateLimitRequests:     getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:       getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),
		AuthRateLimitRequests: getEnvNum(EnvAuthRateLimitRequests, DefaultAuthRateLimitRequests),
		AuthRateLimitWindow:   getEnvDuration(EnvAuthRateLimitWindow, DefaultAuthRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		SlotTimezone: getEnvStr(EnvSlotTimezone, DefaultSlotTimezone),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if envFileErr != nil && !errors.Is(envFileErr, fs.ErrNotExist) {
		cfg.Log.Warn("Failed to load .env file", "error", envFileErr)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// SetRedis connects the shared cache when REDIS_ADDR is configured.
func (cfg *Config) SetRedis() {
	if cfg.RedisAddr == "" {
		cfg.Log.Info("Redis not configured, shared stores fall back to memory")
		return
	}
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

func (cfg *Config) Database() string {
	return cfg.MongoDatabaseName
}

func (cfg *Config) IsProduction() bool {
	return cfg.AppEnv == envProduction
}

func (cfg *Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.SlotTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		errors = append(errors, fmt.Sprintf("JWTSecret must be at least %d characters", MinJWTSecretLength))
	}
	if cfg.CookieName == "" {
		errors = append(errors, "CookieName cannot be empty")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		errors = append(errors, fmt.Sprintf("BcryptCost must be between 4 and 31, got: %d", cfg.BcryptCost))
	}

	if cfg.KafkaEnabled && cfg.ChallengeTopic == "" {
		errors = append(errors, "ChallengeTopic cannot be empty when Kafka is enabled")
	}

	if _, err := time.LoadLocation(cfg.SlotTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("SlotTimezone must be a valid IANA zone, got: %s", cfg.SlotTimezone))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"SessionTTL", cfg.SessionTTL},
		{"OTPTTL", cfg.OTPTTL},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"AuthRateLimitWindow", cfg.AuthRateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.AuthRateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("AuthRateLimitRequests must be positive, got: %d", cfg.AuthRateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
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
	cfg.Log.Info("Configuration loaded successfully",
		"app_env", cfg.AppEnv,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"kafka_enabled", cfg.KafkaEnabled,
		"challenge_topic", cfg.ChallengeTopic,
		"metrics_enabled", cfg.MetricsEnabled,
		"port", cfg.Port,
		"jwt_secret_set", cfg.JWTSecret != "",
		"session_ttl", cfg.SessionTTL,
		"cookie_name", cfg.CookieName,
		"cookie_secure", cfg.CookieSecure,
		"otp_ttl", cfg.OTPTTL,
		"client_url", cfg.ClientURL,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"auth_rate_limit_requests", cfg.AuthRateLimitRequests,
		"auth_rate_limit_window", cfg.AuthRateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"slot_timezone", cfg.SlotTimezone,
	)
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

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
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
