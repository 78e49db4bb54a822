package domain

// InboundMessage is one user message extracted from a webhook event, after
// the dispatcher has stripped the platform envelope.
type InboundMessage struct {
	// SessionID is the platform sender id; sessions are keyed by it.
	SessionID string
	// MessageID is the platform's message id, used for redelivery dedupe.
	MessageID string
	Text      string
}

// Passage is one retrieved grounding fragment.
type Passage struct {
	Text  string
	Score float64
}
