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
	LogLevel      string
	AppVersion    string
	GitCommit     string
	OrgName       string
	AssistantName string

	// Business timezone: appointment times are interpreted and stored in
	// this zone; record timestamps stay UTC.
	Timezone string

	// DataDir is the root for appointment logs and calendar files.
	DataDir string

	// RelayWSSURL is the public websocket URL handed to the telephony
	// provider in the /voice TwiML response.
	RelayWSSURL string

	OpenAIAPIKey          string
	OpenAIModel           string
	VectorStoreCallScript string
	VectorStorePolicies   string
	LLMTimeout            time.Duration
	HistoryWindow         int

	CommitTimeout      time.Duration
	DefaultDurationMin int
	DefaultCountryCode string

	RedisAddr     string
	RedisPassword string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AppVersion:    getEnv("APP_VERSION", "local"),
		GitCommit:     getEnv("GIT_COMMIT", "dev"),
		OrgName:       getEnv("ORG_NAME", "Foreclosure Relief Group"),
		AssistantName: getEnv("ASSISTANT_NAME", "Chloe"),

		Timezone: getEnv("TIMEZONE", "America/Los_Angeles"),
		DataDir:  getEnv("DATA_DIR", "/tmp"),

		RelayWSSURL: getEnv("RELAY_WSS_URL", ""),

		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		VectorStoreCallScript: firstEnv("VECTOR_STORE_CALLSCRIPTS_ID", "VECTOR_STORE_ID"),
		VectorStorePolicies:   getEnv("VECTOR_STORE_POLICIES_ID", ""),
		LLMTimeout:            getEnvAsDuration("LLM_TIMEOUT", 12*time.Second),
		HistoryWindow:         getEnvAsInt("HISTORY_WINDOW", 12),

		CommitTimeout:      getEnvAsDuration("COMMIT_TIMEOUT", 5*time.Second),
		DefaultDurationMin: getEnvAsInt("DEFAULT_DURATION_MIN", 30),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "1"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv returns the first non-empty value among the given keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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
