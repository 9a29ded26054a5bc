package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string

	Workers        int
	OCRLang        string
	OCRConcurrency int
	OCRTimeoutSecs int
	GenTimeoutSecs int
	MaxFileSizeMB  int
	ContextBudget  int
	ChatTopK       int
	HeartbeatSecs  int
	LogLevel       string
	LogFormat      string
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "docucore-pdfs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),

		Workers:        getEnvInt("WORKERS", 2),
		OCRLang:        getEnv("OCR_LANG", "spa"),
		OCRConcurrency: getEnvInt("OCR_CONCURRENCY", 4),
		OCRTimeoutSecs: getEnvInt("OCR_TIMEOUT_SECONDS", 60),
		GenTimeoutSecs: getEnvInt("GEN_TIMEOUT_SECONDS", 45),
		MaxFileSizeMB:  getEnvInt("MAX_FILE_SIZE_MB", 32),
		ContextBudget:  getEnvInt("CONTEXT_BUDGET_CHARS", 24000),
		ChatTopK:       getEnvInt("CHAT_TOP_K", 5),
		HeartbeatSecs:  getEnvInt("HEARTBEAT_SECONDS", 10),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
