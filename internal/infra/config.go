package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// DatabaseURL is optional; without it the service runs on the in-memory
	// job store.
	DatabaseURL string

	AnalystProvider  string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	GeminiBaseURL    string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	OpenAIOrg        string

	TelegramBotToken string
	TelegramBaseURL  string
	// TelegramAllowedUsers is an optional allow-list; empty means open access.
	TelegramAllowedUsers []int64

	OutputsDir         string
	DefaultAspectRatio string
	DefaultResolution  string
	DefaultLocale      string

	MaxRetries     int
	RetryBaseDelay time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		AnalystProvider:  getEnv("ANALYST_PROVIDER", "gemini"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG"),

		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramBaseURL:      getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		TelegramAllowedUsers: parseIDList(os.Getenv("TELEGRAM_ALLOWED_USERS")),

		OutputsDir:         getEnv("OUTPUTS_DIR", "outputs"),
		DefaultAspectRatio: getEnv("DEFAULT_ASPECT_RATIO", "1:1"),
		DefaultResolution:  getEnv("DEFAULT_RESOLUTION", "1024x1024"),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),

		MaxRetries:     getEnvInt("GENERATION_MAX_RETRIES", 2),
		RetryBaseDelay: time.Second * time.Duration(getEnvInt("GENERATION_RETRY_BASE_SECONDS", 2)),

		HTTPReadTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		// Write timeout defaults to zero so SSE streams stay open.
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func parseIDList(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
