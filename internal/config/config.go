// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. It is loaded once at startup
// and treated as immutable afterwards.
type Config struct {
	Port string

	// Messenger platform.
	PageID          string
	AccessToken     string
	VerifyToken     string
	GraphAPIVersion string
	ModeratorAppID  string
	HandoverAppID   string
	WakePhrase      string

	// Reasoning backend.
	GeminiAPIKey string
	GeminiModel  string

	// Retrieval backend.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	HuggingFaceKey   string
	EmbeddingModel   string
	RetrievalK       int

	// Session store.
	DBDriver string
	DBDSN    string

	HistoryWindow int
	ReplyDelay    time.Duration
	EventTimeout  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8000"),
		PageID:          os.Getenv("FACEBOOK_PAGE_ID"),
		AccessToken:     os.Getenv("FACEBOOK_ACCESS_TOKEN"),
		VerifyToken:     os.Getenv("FACEBOOK_VERIFY_TOKEN"),
		GraphAPIVersion: getEnv("FACEBOOK_API_VERSION", "v24.0"),
		ModeratorAppID:  os.Getenv("MODERATOR_APP_ID"),
		HandoverAppID:   os.Getenv("HANDOVER_APP_ID"),
		WakePhrase:      getEnv("WAKE_PHRASE", "wake-up-chatbot"),

		GeminiAPIKey: os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		QdrantURL:        os.Getenv("QDRANT_API_URL"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "nhamycali"),
		HuggingFaceKey:   os.Getenv("HUGGINGFACE_API_KEY"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "AITeamVN/Vietnamese_Embedding"),
		RetrievalK:       getEnvInt("RETRIEVAL_K", 6),

		DBDriver: getEnv("DB_DRIVER", "postgres"),
		DBDSN:    os.Getenv("POSTGRES_CONN_STRING"),

		HistoryWindow: getEnvInt("HISTORY_WINDOW", 10),
		ReplyDelay:    getEnvDuration("REPLY_DELAY", time.Second),
		EventTimeout:  getEnvDuration("EVENT_TIMEOUT", 8*time.Second),
	}
	if cfg.HandoverAppID == "" {
		cfg.HandoverAppID = cfg.ModeratorAppID
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	required := []struct {
		key string
		val string
	}{
		{"FACEBOOK_PAGE_ID", c.PageID},
		{"FACEBOOK_ACCESS_TOKEN", c.AccessToken},
		{"FACEBOOK_VERIFY_TOKEN", c.VerifyToken},
		{"MODERATOR_APP_ID", c.ModeratorAppID},
		{"GOOGLE_API_KEY", c.GeminiAPIKey},
		{"QDRANT_API_URL", c.QdrantURL},
		{"HUGGINGFACE_API_KEY", c.HuggingFaceKey},
		{"POSTGRES_CONN_STRING", c.DBDSN},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return fmt.Errorf("%s cannot be empty", r.key)
		}
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.RetrievalK <= 0 || c.RetrievalK > 6 {
		return fmt.Errorf("RETRIEVAL_K must be in 1..6")
	}
	if c.EventTimeout <= 0 {
		return fmt.Errorf("EVENT_TIMEOUT must be > 0")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
