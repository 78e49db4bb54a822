package huggingface

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "model")
	require.Error(t, err)

	_, err = NewClient("key", " ")
	require.Error(t, err)
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pipeline/feature-extraction/AITeamVN/Vietnamese_Embedding", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]any
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Equal(t, []any{"mua nhà ở San Jose"}, req["inputs"])

		_, _ = w.Write([]byte(`[[0.1, -0.2, 0.3]]`))
	}))
	defer srv.Close()

	c, err := NewClient("key", "AITeamVN/Vietnamese_Embedding", WithBaseURL(srv.URL))
	require.NoError(t, err)

	vec, err := c.Embed(context.Background(), "mua nhà ở San Jose")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, -0.2, 0.3}, vec)
}

func TestEmbed_EmptyInput(t *testing.T) {
	c, err := NewClient("key", "model")
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "  ")
	require.Error(t, err)
}

func TestEmbed_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model loading"}`))
	}))
	defer srv.Close()

	c, err := NewClient("key", "model", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "câu hỏi")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.HTTPStatusCode())
}

func TestEmbed_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewClient("key", "model", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "câu hỏi")
	require.Error(t, err)
}
