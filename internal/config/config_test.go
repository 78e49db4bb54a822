package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FACEBOOK_PAGE_ID", "327975473733877")
	t.Setenv("FACEBOOK_ACCESS_TOKEN", "token")
	t.Setenv("FACEBOOK_VERIFY_TOKEN", "verify")
	t.Setenv("MODERATOR_APP_ID", "263902037430900")
	t.Setenv("GOOGLE_API_KEY", "gemini-key")
	t.Setenv("QDRANT_API_URL", "https://qdrant.example")
	t.Setenv("HUGGINGFACE_API_KEY", "hf-key")
	t.Setenv("POSTGRES_CONN_STRING", "postgres://host/db")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8000", cfg.Port)
	require.Equal(t, "v24.0", cfg.GraphAPIVersion)
	require.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	require.Equal(t, "nhamycali", cfg.QdrantCollection)
	require.Equal(t, "AITeamVN/Vietnamese_Embedding", cfg.EmbeddingModel)
	require.Equal(t, "wake-up-chatbot", cfg.WakePhrase)
	require.Equal(t, 10, cfg.HistoryWindow)
	require.Equal(t, 6, cfg.RetrievalK)
	require.Equal(t, time.Second, cfg.ReplyDelay)
	require.Equal(t, 8*time.Second, cfg.EventTimeout)
}

func TestLoad_HandoverDefaultsToModerator(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HANDOVER_APP_ID", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, cfg.ModeratorAppID, cfg.HandoverAppID)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FACEBOOK_ACCESS_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "FACEBOOK_ACCESS_TOKEN")
}

func TestLoad_RejectsBadBounds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RETRIEVAL_K", "12")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidNumericFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HISTORY_WINDOW", "not-a-number")
	t.Setenv("REPLY_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.HistoryWindow)
	require.Equal(t, time.Second, cfg.ReplyDelay)
}
