package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Voice webhook surface
	WebhookSecret    string
	WebhookRateLimit float64
	WebhookBurst     int

	// Session store
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	SessionTTL     time.Duration
	DatabaseURL    string
	TranscriptsOn  bool

	// Turn processing
	EmptyGraceWindow time.Duration
	BookingLockTTL   time.Duration
	MaxQuestionAsks  int
	HistoryWindow    int

	// LLM provider
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BedrockModelID      string
	BedrockFallbackID   string
	LLMTimeout          time.Duration

	// Scheduling backend
	SchedulingBaseURL string
	SchedulingAPIKey  string
	SchedulingTimeout time.Duration

	// Notification delivery
	SMSProviderBaseURL string
	SMSAPIKey          string
	SMSFromNumber      string
	FormBaseURL        string
	NotifyTimeout      time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		WebhookSecret:    getEnv("WEBHOOK_SECRET", ""),
		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 10),
		WebhookBurst:     getEnvAsInt("WEBHOOK_BURST", 20),

		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		TranscriptsOn:  getEnvAsBool("TRANSCRIPTS_ENABLED", true),

		EmptyGraceWindow: getEnvAsDuration("EMPTY_GRACE_WINDOW", 1200*time.Millisecond),
		BookingLockTTL:   getEnvAsDuration("BOOKING_LOCK_TTL", 8*time.Second),
		MaxQuestionAsks:  getEnvAsInt("MAX_QUESTION_ASKS", 2),
		HistoryWindow:    getEnvAsInt("HISTORY_WINDOW", 20),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		BedrockFallbackID:   getEnv("BEDROCK_FALLBACK_MODEL_ID", ""),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 6*time.Second),

		SchedulingBaseURL: getEnv("SCHEDULING_BASE_URL", ""),
		SchedulingAPIKey:  getEnv("SCHEDULING_API_KEY", ""),
		SchedulingTimeout: getEnvAsDuration("SCHEDULING_TIMEOUT", 5*time.Second),

		SMSProviderBaseURL: getEnv("SMS_PROVIDER_BASE_URL", "https://api.telnyx.com/v2"),
		SMSAPIKey:          getEnv("SMS_API_KEY", ""),
		SMSFromNumber:      getEnv("SMS_FROM_NUMBER", ""),
		FormBaseURL:        getEnv("FORM_BASE_URL", ""),
		NotifyTimeout:      getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
