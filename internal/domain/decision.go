package domain

// ReplyDecision is the single outcome of orchestrating one turn.
type ReplyDecision struct {
	Text string
	// SuppressSend marks the fixed refusal for a degenerate input streak.
	// The coordinator sends it without the typing choreography.
	SuppressSend bool
	// Escalate hands the thread to the human moderator app after sending.
	Escalate bool
}
