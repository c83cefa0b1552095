package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration. It is constructed once at startup
// and passed into each component's constructor; nothing reads the environment
// after LoadConfig returns.
type Config struct {
	// MongoDB
	MongoURI string
	DBName   string

	// Gemini
	GeminiAPIKey        string
	GeminiTier          string
	TextEmbeddingModel  string
	ImageEmbeddingModel string
	AnswerModel         string
	AnswerMaxTokens     int
	AnswerTemperature   float64

	// Vector search
	VectorSearchEnabled bool
	TextVectorIndex     string
	ImageVectorIndex    string
	VectorDimensions    int
	ScanLimit           int

	// Chunking
	MaxChunkChars int
	ChunkOverlap  int

	// Images
	MinImageDim int

	// Data layout
	RawDataDir       string
	ProcessedDataDir string
	LogsDir          string
	AliasTablePath   string

	// Retrieval
	DefaultTopK int

	// Redis (asynq queue + retrieval cache)
	RedisURL      string
	RedisPassword string
	RedisDB       int
	CacheTTLSecs  int

	// Telemetry / logging
	TracingEnabled bool
	OTLPEndpoint   string
	LogLevel       string
}

// LoadConfig reads .env (when present) and the process environment, applies
// defaults, and validates everything that must fail fast rather than
// mid-batch.
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/textbook_rag"),
		DBName:   getEnv("DB_NAME", "textbook_rag"),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiTier:          getEnv("GEMINI_TIER", "free"),
		TextEmbeddingModel:  getEnv("TEXT_EMBEDDING_MODEL", "text-embedding-004"),
		ImageEmbeddingModel: getEnv("IMAGE_EMBEDDING_MODEL", "multimodalembedding"),
		AnswerModel:         getEnv("ANSWER_MODEL", "gemini-2.0-flash"),
		AnswerMaxTokens:     getEnvInt("ANSWER_MAX_TOKENS", 1500),
		AnswerTemperature:   getEnvFloat64("ANSWER_TEMPERATURE", 0.7),

		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		TextVectorIndex:     getEnv("MONGODB_TEXT_VECTOR_INDEX", "text_chunks_vector"),
		ImageVectorIndex:    getEnv("MONGODB_IMAGE_VECTOR_INDEX", "image_chunks_vector"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 768),
		ScanLimit:           getEnvInt("VECTOR_SCAN_LIMIT", 20000),

		MaxChunkChars: getEnvInt("MAX_CHUNK_CHARS", 1200),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 150),

		MinImageDim: getEnvInt("MIN_IMAGE_DIM", 10),

		RawDataDir:       getEnv("RAW_DATA_DIR", "data/raw"),
		ProcessedDataDir: getEnv("PROCESSED_DATA_DIR", "data/processed"),
		LogsDir:          getEnv("LOGS_DIR", "data/logs"),
		AliasTablePath:   getEnv("SUBJECT_ALIAS_TABLE", ""),

		DefaultTopK: getEnvInt("DEFAULT_TOP_K", 5),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTLSecs:  getEnvInt("CACHE_TTL_SECONDS", 3600),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}
	if cfg.MaxChunkChars <= 0 {
		return nil, fmt.Errorf("MAX_CHUNK_CHARS must be positive, got %d", cfg.MaxChunkChars)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be non-negative, got %d", cfg.ChunkOverlap)
	}
	// An overlap >= window size would keep the sliding window from advancing.
	if cfg.ChunkOverlap >= cfg.MaxChunkChars {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than MAX_CHUNK_CHARS (%d)",
			cfg.ChunkOverlap, cfg.MaxChunkChars)
	}
	if cfg.DefaultTopK <= 0 {
		return nil, fmt.Errorf("DEFAULT_TOP_K must be positive, got %d", cfg.DefaultTopK)
	}
	if cfg.MinImageDim <= 0 {
		return nil, fmt.Errorf("MIN_IMAGE_DIM must be positive, got %d", cfg.MinImageDim)
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

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
