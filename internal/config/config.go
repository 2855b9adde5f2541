package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Firm identity used in bot copy, fallback errors and review replies
	FirmName    string
	OfficePhone string
	SiteDomain  string

	// Chat session persistence
	SessionBackend    string
	SessionTable      string
	SessionTTL        time.Duration
	ChatTypingDelay   time.Duration
	ChatFollowupDelay time.Duration
	ChatClearDelay    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	LeadEventsQueueURL  string
	CheckpointBucket    string

	// Anti-automation verification
	TurnstileSecret    string
	TurnstileVerifyURL string

	// Staff notifications
	EmailProvider     string
	NotifyEmailTo     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	UrgentAlertPhone  string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Review responder
	LLMProvider    string
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string

	// Google Business Profile
	GBPClientID     string
	GBPClientSecret string
	GBPRefreshToken string
	GBPAccountID    string
	GBPLocationID   string

	// Rank checker
	SearchAPIKey   string
	SearchEngineID string

	// Checkpoint importer
	GeocoderAPIKey string
	GeocoderURL    string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		FirmName:    getEnv("FIRM_NAME", "Defense Law Group"),
		OfficePhone: getEnv("OFFICE_PHONE", "(740) 201-1444"),
		SiteDomain:  strings.ToLower(getEnv("SITE_DOMAIN", "")),

		SessionBackend:    strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionTable:      getEnv("SESSION_TABLE", "chat_sessions"),
		SessionTTL:        getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		ChatTypingDelay:   getEnvAsDuration("CHAT_TYPING_DELAY", 800*time.Millisecond),
		ChatFollowupDelay: getEnvAsDuration("CHAT_FOLLOWUP_DELAY", 8*time.Second),
		ChatClearDelay:    getEnvAsDuration("CHAT_CLEAR_DELAY", 3*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-2"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		LeadEventsQueueURL:  getEnv("LEAD_EVENTS_QUEUE_URL", ""),
		CheckpointBucket:    getEnv("CHECKPOINT_BUCKET", ""),

		TurnstileSecret:    getEnv("TURNSTILE_SECRET", ""),
		TurnstileVerifyURL: getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		NotifyEmailTo:     getEnv("NOTIFY_EMAIL_TO", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Website Intake"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_FROM_NUMBER", ""),
		UrgentAlertPhone:  getEnv("URGENT_ALERT_PHONE", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 5),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		GBPClientID:     getEnv("GBP_CLIENT_ID", ""),
		GBPClientSecret: getEnv("GBP_CLIENT_SECRET", ""),
		GBPRefreshToken: getEnv("GBP_REFRESH_TOKEN", ""),
		GBPAccountID:    getEnv("GBP_ACCOUNT_ID", ""),
		GBPLocationID:   getEnv("GBP_LOCATION_ID", ""),

		SearchAPIKey:   getEnv("SEARCH_API_KEY", ""),
		SearchEngineID: getEnv("SEARCH_ENGINE_ID", ""),

		GeocoderAPIKey: getEnv("GEOCODER_API_KEY", ""),
		GeocoderURL:    getEnv("GEOCODER_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
