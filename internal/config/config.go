package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// LLM provider selection and tuning. ActiveProvider is a name-keyed
	// lookup into the provider registry ("bedrock", "gemini", "openai").
	ActiveProvider   string
	FallbackProvider string
	ProviderTimeout  time.Duration
	Temperature      float64
	MaxTokens        int

	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string
	OpenAIAPIKey   string
	OpenAIModelID  string

	// DailyCostCeilingUSD caps realized LLM spend per provider per UTC day.
	DailyCostCeilingUSD float64

	// Prompt catalog.
	PromptDir         string
	PromptWatchReload bool

	// Minimum transcript length worth analyzing, in characters.
	MinTranscriptChars int

	// Prefix used by the persistence layer for auto-generated student names
	// (e.g. "Student 6010"). Drives the name-merge guard.
	PlaceholderNamePrefix string

	// Task queue retry policy for post-session updates.
	UpdateRetryMaxAttempts int
	UpdateRetryBackoff     time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	UpdateQueueURL      string
	UpdateJobsTable     string
	RawResponseBucket   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		ActiveProvider:   strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		FallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		ProviderTimeout:  getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		Temperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.2),
		MaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 1024),

		BedrockModelID: getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModelID:  getEnv("OPENAI_MODEL_ID", "gpt-4o-mini"),

		DailyCostCeilingUSD: getEnvAsFloat("DAILY_COST_CEILING_USD", 10.0),

		PromptDir:         getEnv("PROMPT_DIR", "prompts"),
		PromptWatchReload: getEnvAsBool("PROMPT_WATCH_RELOAD", false),

		MinTranscriptChars: getEnvAsInt("MIN_TRANSCRIPT_CHARS", 50),

		PlaceholderNamePrefix: getEnv("PLACEHOLDER_NAME_PREFIX", "Student"),

		UpdateRetryMaxAttempts: getEnvAsInt("UPDATE_RETRY_MAX_ATTEMPTS", 3),
		UpdateRetryBackoff:     getEnvAsDuration("UPDATE_RETRY_BACKOFF", 30*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		UpdateQueueURL:      getEnv("UPDATE_QUEUE_URL", ""),
		UpdateJobsTable:     getEnv("UPDATE_JOBS_TABLE", "postsession_jobs"),
		RawResponseBucket:   getEnv("RAW_RESPONSE_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
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
