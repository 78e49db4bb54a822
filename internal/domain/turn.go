package domain

import "time"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is a single persisted conversation turn. Turns for a session are
// totally ordered by insertion; callers only ever read the most recent
// window of them.
type Turn struct {
	SessionID string
	Speaker   Speaker
	Text      string
	CreatedAt time.Time
}
