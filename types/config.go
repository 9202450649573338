package types

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects every runtime setting in one place. Values come from
// the environment; defaults match the reference deployment.
type Config struct {
	ListenAddr  string
	PostgresDSN string

	APIKey         string
	EmbeddingURL   string
	EmbeddingModel string
	EmbeddingDim   int
	CompletionURL  string
	SiteURL        string
	SiteName       string
	SystemPrompt   string

	ChunkSize      int
	MinChunkLength int
	EmbedDelay     time.Duration

	ContextChunks        int
	ContextMinSimilarity float64
	SearchMinSimilarity  float64

	UploadDir       string
	MaxFileSize     int64
	MaxFilesBatch   int
	MaxDocumentSize int
	PDFConverterURL string
}

func LoadConfig() Config {
	return Config{
		ListenAddr:  getenv("SERVER_ADDR", ":8080"),
		PostgresDSN: postgresDSN(),

		APIKey:         os.Getenv("OPENROUTER_API_KEY"),
		EmbeddingURL:   getenv("EMBEDDING_URL", "https://openrouter.ai/api/v1/embeddings"),
		EmbeddingModel: getenv("EMBEDDING_MODEL", "openai/text-embedding-ada-002"),
		EmbeddingDim:   getint("EMBEDDING_DIM", 1536),
		CompletionURL:  getenv("COMPLETION_URL", "https://openrouter.ai/api/v1/chat/completions"),
		SiteURL:        getenv("SITE_URL", "http://localhost:8080"),
		SiteName:       getenv("SITE_NAME", "vectorchat"),
		SystemPrompt:   os.Getenv("SYSTEM_PROMPT"),

		ChunkSize:      getint("CHUNK_SIZE", 500),
		MinChunkLength: getint("MIN_CHUNK_LENGTH", 30),
		EmbedDelay:     getduration("EMBED_DELAY", 100*time.Millisecond),

		ContextChunks:        getint("CONTEXT_CHUNKS", 4),
		ContextMinSimilarity: getfloat("CONTEXT_MIN_SIMILARITY", 0.75),
		SearchMinSimilarity:  getfloat("SEARCH_MIN_SIMILARITY", 0.5),

		UploadDir:       getenv("UPLOAD_DIR", "./uploads"),
		MaxFileSize:     int64(getint("MAX_FILE_SIZE", 10*1024*1024)),
		MaxFilesBatch:   getint("MAX_FILES_BATCH", 20),
		MaxDocumentSize: getint("MAX_DOCUMENT_SIZE", 500000),
		PDFConverterURL: os.Getenv("PDF_CONVERTER_URL"),
	}
}

func postgresDSN() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getenv("PG_HOST", "localhost"),
		getenv("PG_PORT", "5432"),
		getenv("PG_USER", "postgres"),
		os.Getenv("PG_PASS"),
		getenv("PG_DB_NAME", "vector_db"),
	)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
