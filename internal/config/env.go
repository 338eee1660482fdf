package config

import (
	"log"
	"os"
	"strconv"
	"time"

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
	Port         string
	LogMode      string

	// Extraction helper processes.
	PythonBin        string
	PDFHelperScript  string
	OCRHelperScript  string
	PDFHelperTimeout time.Duration
	OCRHelperTimeout time.Duration

	// Ingestion tuning.
	IngestWorkers int
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "lexium-knowledge"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		Port:         getEnv("PORT", "8080"),
		LogMode:      getEnv("LOG_MODE", "dev"),

		PythonBin:        getEnv("PYTHON_BIN", "python3"),
		PDFHelperScript:  getEnv("PDF_HELPER_SCRIPT", "scripts/pdf_extractor.py"),
		OCRHelperScript:  getEnv("OCR_HELPER_SCRIPT", "scripts/image_text_extractor.py"),
		PDFHelperTimeout: time.Duration(getEnvInt("PDF_HELPER_TIMEOUT_SEC", 30)) * time.Second,
		OCRHelperTimeout: time.Duration(getEnvInt("OCR_HELPER_TIMEOUT_SEC", 60)) * time.Second,

		IngestWorkers: getEnvInt("INGEST_WORKERS", 3),
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
