package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration // per-operation deadline on store calls

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	UsersTable     string
	S3BucketName   string

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	Auth  AuthConfig
	Queue QueueConfig
	Rates RateLimits

	AllowedOrigins []string // CORS allowed origins
}

// AuthConfig groups the registration engine's timing and ceiling knobs.
type AuthConfig struct {
	TempUserTTL    time.Duration
	OTPTTL         time.Duration
	OTPLength      int
	MaxOTPAttempts int
	ResendCooldown time.Duration
	MachineIDTTL   time.Duration
}

// QueueConfig controls the asynchronous notification pipeline.
type QueueConfig struct {
	Enabled        bool
	Concurrency    int
	MaxRetries     int
	BackoffDelay   time.Duration // base delay, doubled per attempt
	AttemptTimeout time.Duration
	SendsPerMinute int // worker-side throughput cap
}

// RateTier is one route's fixed-window budget.
type RateTier struct {
	Limit            int
	Window           time.Duration
	RequireMachineID bool
	FailClosed       bool
}

// RateLimits holds the per-route tiers.
type RateLimits struct {
	Register  RateTier
	Verify    RateTier
	Resend    RateTier
	MachineID RateTier
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisTimeout:  getEnvSeconds("REDIS_TIMEOUT_SECONDS", 3),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		UsersTable:     getEnv("DYNAMO_TABLE_USERS", "users"),
		S3BucketName:   getEnv("S3_BUCKET_NAME", "go-signup-attachments"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SNSRegion:    getEnv("SNS_REGION", "us-east-1"),

		Auth: AuthConfig{
			TempUserTTL:    getEnvSeconds("TEMP_USER_TTL", 15*60),
			OTPTTL:         getEnvSeconds("OTP_TTL", 5*60),
			OTPLength:      getEnvInt("OTP_LENGTH", 6),
			MaxOTPAttempts: getEnvInt("MAX_OTP_ATTEMPTS", 3),
			ResendCooldown: getEnvSeconds("OTP_RESEND_COOLDOWN", 60),
			MachineIDTTL:   getEnvSeconds("MACHINE_ID_TTL", 365*24*60*60),
		},

		Queue: QueueConfig{
			Enabled:        getEnvBool("USE_QUEUE", true),
			Concurrency:    getEnvInt("QUEUE_CONCURRENCY", 5),
			MaxRetries:     getEnvInt("QUEUE_MAX_RETRIES", 3),
			BackoffDelay:   getEnvSeconds("QUEUE_BACKOFF_SECONDS", 2),
			AttemptTimeout: getEnvSeconds("QUEUE_ATTEMPT_TIMEOUT_SECONDS", 30),
			SendsPerMinute: getEnvInt("QUEUE_SENDS_PER_MINUTE", 100),
		},

		Rates: RateLimits{
			Register:  loadTier("REGISTER", 5, 60, true),
			Verify:    loadTier("VERIFY", 10, 60, true),
			Resend:    loadTier("RESEND", 3, 60, true),
			MachineID: loadTier("MACHINE_ID", 10, 60, false),
		},

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func loadTier(name string, limit, windowSec int, requireMachineID bool) RateTier {
	return RateTier{
		Limit:            getEnvInt("RATE_"+name+"_LIMIT", limit),
		Window:           getEnvSeconds("RATE_"+name+"_WINDOW", windowSec),
		RequireMachineID: getEnvBool("RATE_"+name+"_REQUIRE_MACHINE_ID", requireMachineID),
		FailClosed:       getEnvBool("RATE_"+name+"_FAIL_CLOSED", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
