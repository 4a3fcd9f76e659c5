package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DataDir      string
	SQLitePath   string
	JWTSecret    string
	SessionExpiry time.Duration

	// Chroma vector index
	ChromaURL        string
	ChromaAPIKey     string
	ChromaTenant     string
	ChromaDatabase   string
	ChromaCollection string

	// Completion / embedding providers
	AIProvider    string
	GeminiApiKey  string
	OllamaBaseURL string
	OllamaModel   string

	// Gmail provider OAuth app
	GoogleClientID     string
	GoogleClientSecret string

	// Optional at-rest encryption of stored message bodies
	IndexPassphrase string

	// Ingestion tuning
	BatchSize        int
	PageSize         int
	DefaultFolderCap int
	IndexingPhaseMin time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	sessionExpiry := 12 * time.Hour
	if exp := os.Getenv("SESSION_EXPIRY"); exp != "" {
		if parsed, err := time.ParseDuration(exp); err == nil {
			sessionExpiry = parsed
		}
	}

	indexingMin := 400 * time.Millisecond
	if d := os.Getenv("INDEXING_PHASE_MIN"); d != "" {
		if parsed, err := time.ParseDuration(d); err == nil {
			indexingMin = parsed
		}
	}

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		Port:          getEnv("PORT", "8080"),
		DataDir:       dataDir,
		SQLitePath:    getEnv("SQLITE_PATH", dataDir+"/emails.db"),
		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		SessionExpiry: sessionExpiry,

		ChromaURL:        getEnv("CHROMA_URL", "http://localhost:8000"),
		ChromaAPIKey:     getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:     getEnv("CHROMA_TENANT", ""),
		ChromaDatabase:   getEnv("CHROMA_DATABASE", ""),
		ChromaCollection: getEnv("CHROMA_COLLECTION", "emails"),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiApiKey:  getEnv("GEMINI_API_KEY", ""),
		OllamaBaseURL: getEnv("OLLAMA_HOST", "http://127.0.0.1:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "mistral"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		IndexPassphrase: getEnv("INDEX_PASSPHRASE", ""),

		BatchSize:        getEnvInt("INGEST_BATCH_SIZE", 20),
		PageSize:         getEnvInt("INGEST_PAGE_SIZE", 25),
		DefaultFolderCap: getEnvInt("INGEST_FOLDER_CAP", 100),
		IndexingPhaseMin: indexingMin,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
