package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port      string
	StaticDir string

	// Storage
	DBPath string

	// Completion API
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		Port:       getEnvOrDefault("PORT", "8100"),
		StaticDir:  getEnvOrDefault("STATIC_DIR", "web"),
		DBPath:     getEnvOrDefault("DB_PATH", "parley.db"),
		LLMBaseURL: getEnvOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
