package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Upload handling
	MaxFileSize    int64
	FileStorageDir string

	// Text processing
	MaxChunkSize    int
	MinChunkSize    int
	PreviewChars    int
	MaxContextChars int

	// Inference engine (Ollama)
	OllamaBaseURL        string
	OllamaModel          string
	OllamaGenerateSecs   int
	OllamaHealthSecs     int
	EngineConcurrency    int
	EngineRatePerSecond  float64
	AnalysisMaxAttempts  int
	AnalysisBackoffSecs  int
	AnalysisCacheTTLSecs int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// OCR sidecar for image uploads
	OCRServiceURL     string
	OCRServiceEnabled bool
	OCRTimeout        int

	// Maintenance jobs
	StuckSweepIntervalSecs int
	StuckThresholdSecs     int
	OrphanPurgeIntervalSecs int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/document_intelligence"),
		DBName:      getEnv("DB_NAME", "document_intelligence"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),

		MaxChunkSize:    getEnvInt("MAX_CHUNK_SIZE", 1200),
		MinChunkSize:    getEnvInt("MIN_CHUNK_SIZE", 200),
		PreviewChars:    getEnvInt("PREVIEW_CHARS", 360),
		MaxContextChars: getEnvInt("MAX_CONTEXT_CHARS", 24000),

		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:          getEnv("OLLAMA_MODEL", "llama3.1:8b"),
		OllamaGenerateSecs:   getEnvInt("OLLAMA_GENERATE_TIMEOUT", 120),
		OllamaHealthSecs:     getEnvInt("OLLAMA_HEALTH_TIMEOUT", 8),
		EngineConcurrency:    getEnvInt("ENGINE_CONCURRENCY", 2),
		EngineRatePerSecond:  getEnvFloat64("ENGINE_RATE_PER_SECOND", 2.0),
		AnalysisMaxAttempts:  getEnvInt("ANALYSIS_MAX_ATTEMPTS", 3),
		AnalysisBackoffSecs:  getEnvInt("ANALYSIS_RETRY_BACKOFF", 2),
		AnalysisCacheTTLSecs: getEnvInt("ANALYSIS_CACHE_TTL", 86400),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OCRServiceURL:     getEnv("OCR_SERVICE_URL", "http://localhost:8001"),
		OCRServiceEnabled: getEnvBool("OCR_SERVICE_ENABLED", true),
		OCRTimeout:        getEnvInt("OCR_TIMEOUT", 300), // 5 minutes

		StuckSweepIntervalSecs:  getEnvInt("STUCK_SWEEP_INTERVAL", 300),
		StuckThresholdSecs:      getEnvInt("STUCK_THRESHOLD", 1800),
		OrphanPurgeIntervalSecs: getEnvInt("ORPHAN_PURGE_INTERVAL", 3600),
	}

	if cfg.MaxChunkSize < cfg.MinChunkSize {
		return nil, fmt.Errorf("MAX_CHUNK_SIZE (%d) must be >= MIN_CHUNK_SIZE (%d)", cfg.MaxChunkSize, cfg.MinChunkSize)
	}

	if cfg.AnalysisMaxAttempts < 1 {
		return nil, fmt.Errorf("ANALYSIS_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
