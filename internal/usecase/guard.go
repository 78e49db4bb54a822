package usecase

import (
	"unicode"

	"support-agent/internal/domain"
)

// GuardVerdict classifies an incoming message against the recent window.
type GuardVerdict int

const (
	// GuardPass lets the message through to reasoning.
	GuardPass GuardVerdict = iota
	// GuardToleratedEmpty marks a non-informative message that still gets
	// a polite prompt.
	GuardToleratedEmpty
	// GuardToleratedRepeat marks a repeated message that still gets a
	// normal answer.
	GuardToleratedRepeat
	// GuardSuppress marks the third or later degenerate message in a row.
	GuardSuppress
)

func (v GuardVerdict) String() string {
	switch v {
	case GuardPass:
		return "pass"
	case GuardToleratedEmpty:
		return "tolerated_empty"
	case GuardToleratedRepeat:
		return "tolerated_repeat"
	case GuardSuppress:
		return "suppress"
	}
	return "unknown"
}

// GuardResult is the outcome of evaluating one incoming message.
type GuardResult struct {
	Verdict GuardVerdict
	// Occurrence is the 1-based position of the message inside its
	// degenerate streak. It is 1 for GuardPass.
	Occurrence int
}

// toleratedStreak is how many degenerate messages in a row are answered
// before suppression kicks in.
const toleratedStreak = 2

// EvaluateGuard inspects the incoming text against the recent history
// window. Non-informative messages and exact repeats are tolerated twice,
// then suppressed. The function is pure and never fails.
func EvaluateGuard(window []domain.Turn, incoming string) GuardResult {
	if !informative(incoming) {
		occ := 1 + trailingUserStreak(window, func(t domain.Turn) bool {
			return !informative(t.Text)
		})
		if occ > toleratedStreak {
			return GuardResult{Verdict: GuardSuppress, Occurrence: occ}
		}
		return GuardResult{Verdict: GuardToleratedEmpty, Occurrence: occ}
	}

	occ := 1 + trailingUserStreak(window, func(t domain.Turn) bool {
		return t.Text == incoming
	})
	switch {
	case occ > toleratedStreak:
		return GuardResult{Verdict: GuardSuppress, Occurrence: occ}
	case occ > 1:
		return GuardResult{Verdict: GuardToleratedRepeat, Occurrence: occ}
	}
	return GuardResult{Verdict: GuardPass, Occurrence: 1}
}

// trailingUserStreak counts consecutive user turns at the tail of the
// window that match, newest first. Agent turns are skipped so the agent's
// own replies never break a streak.
func trailingUserStreak(window []domain.Turn, match func(domain.Turn) bool) int {
	n := 0
	for i := len(window) - 1; i >= 0; i-- {
		t := window[i]
		if t.Speaker != domain.SpeakerUser {
			continue
		}
		if !match(t) {
			break
		}
		n++
	}
	return n
}

// informative reports whether the text carries at least one letter or
// digit. Whitespace and bare punctuation do not count.
func informative(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
