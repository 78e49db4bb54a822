package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("sqlite", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	return s
}

func TestNew_RejectsInvalidDriver(t *testing.T) {
	_, err := New("mysql", "dsn")
	require.Error(t, err)

	_, err = New("sqlite", " ")
	require.Error(t, err)
}

func TestAppendAndReadLastN(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		speaker := domain.SpeakerUser
		if i%2 == 1 {
			speaker = domain.SpeakerAgent
		}
		require.NoError(t, s.Append(ctx, domain.Turn{
			SessionID: "sender-1",
			Speaker:   speaker,
			Text:      fmt.Sprintf("turn %d", i),
		}))
	}
	require.NoError(t, s.Append(ctx, domain.Turn{
		SessionID: "sender-2",
		Speaker:   domain.SpeakerUser,
		Text:      "other session",
	}))

	turns, err := s.ReadLastN(ctx, "sender-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 10)
	require.Equal(t, "turn 5", turns[0].Text)
	require.Equal(t, "turn 14", turns[9].Text)
	for _, turn := range turns {
		require.Equal(t, "sender-1", turn.SessionID)
		require.False(t, turn.CreatedAt.IsZero())
	}
}

func TestReadLastN_ShortHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, domain.Turn{
		SessionID: "sender-1",
		Speaker:   domain.SpeakerUser,
		Text:      "Hi",
		CreatedAt: time.Now().UTC(),
	}))

	turns, err := s.ReadLastN(ctx, "sender-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)

	turns, err = s.ReadLastN(ctx, "unknown", 10)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestReadLastN_Validation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadLastN(context.Background(), " ", 10)
	require.Error(t, err)

	turns, err := s.ReadLastN(context.Background(), "sender-1", 0)
	require.NoError(t, err)
	require.Nil(t, turns)
}

func TestMarkProcessed_DetectsRedelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen, err := s.MarkProcessed(ctx, "mid.123")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = s.MarkProcessed(ctx, "mid.123")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = s.MarkProcessed(ctx, "mid.456")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestMarkProcessed_EmptyIDIsNoop(t *testing.T) {
	s := newTestStore(t)

	seen, err := s.MarkProcessed(context.Background(), "")
	require.NoError(t, err)
	require.False(t, seen)
}
