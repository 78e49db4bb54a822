package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"support-agent/internal/domain"
)

// HistoryStore is the slice of the persistence layer the orchestrator
// needs.
type HistoryStore interface {
	ReadLastN(ctx context.Context, sessionID string, n int) ([]domain.Turn, error)
	Append(ctx context.Context, turn domain.Turn) error
}

// Reasoner produces a completion from the persona instructions, the
// recent window and the current message, with the retrieval tool
// available to it.
type Reasoner interface {
	Reply(ctx context.Context, in domain.ReasonInput) (domain.ReasonOutput, error)
}

// Orchestrator runs one inbound message through guard evaluation,
// optional reasoning and history bookkeeping, and emits the reply
// decision for delivery.
type Orchestrator struct {
	store    HistoryStore
	reasoner Reasoner
	retrieve domain.RetrieveFunc
	window   int
	logger   *slog.Logger
}

// NewOrchestrator wires the orchestrator. window is the number of recent
// turns considered for guard evaluation and reasoning context.
func NewOrchestrator(store HistoryStore, reasoner Reasoner, retrieve domain.RetrieveFunc, window int, logger *slog.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if reasoner == nil {
		return nil, errors.New("usecase: reasoner must not be nil")
	}
	if retrieve == nil {
		return nil, errors.New("usecase: retrieve func must not be nil")
	}
	if window <= 0 {
		return nil, errors.New("usecase: window must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		reasoner: reasoner,
		retrieve: retrieve,
		window:   window,
		logger:   logger,
	}, nil
}

// Handle processes one inbound message end to end and always returns a
// deliverable decision. Reasoning failures degrade to a fixed apology,
// they are never surfaced to the caller.
func (o *Orchestrator) Handle(ctx context.Context, msg domain.InboundMessage) (domain.ReplyDecision, error) {
	if msg.SessionID == "" {
		return domain.ReplyDecision{}, newError(ErrorMalformedEvent, "message has no session id", nil)
	}

	log := o.logger.With("session_id", msg.SessionID, "message_id", msg.MessageID)
	log.Info("message received", "state", "received")

	window, err := o.store.ReadLastN(ctx, msg.SessionID, o.window)
	if err != nil {
		// A cold read failure must not block the reply. Proceed with an
		// empty window; the guard then treats the message as first
		// occurrence.
		log.Warn("history read failed, continuing with empty window", "error", err)
		window = nil
	}

	guard := EvaluateGuard(window, msg.Text)
	log.Info("guard evaluated",
		"state", "guard_checked",
		"verdict", guard.Verdict.String(),
		"occurrence", guard.Occurrence)

	var decision domain.ReplyDecision
	switch guard.Verdict {
	case GuardSuppress:
		log.Info("reply suppressed", "state", "suppressed")
		decision = domain.ReplyDecision{Text: SuppressionReply, SuppressSend: true}

	case GuardToleratedEmpty:
		decision = domain.ReplyDecision{Text: EmptyPromptReply}

	default:
		log.Info("entering reasoning", "state", "reasoning")
		decision = o.reason(ctx, log, window, msg.Text)
	}

	o.persist(ctx, log, msg, decision)

	log.Info("message resolved",
		"state", "resolved",
		"escalate", decision.Escalate,
		"suppress_send", decision.SuppressSend)
	return decision, nil
}

// reason composes the reply for messages that passed the guard. The
// house-search handoff is decided here without the backend once the
// checklist is complete.
func (o *Orchestrator) reason(ctx context.Context, log *slog.Logger, window []domain.Turn, text string) domain.ReplyDecision {
	if checklist := BuildChecklist(window, text); checklist.Complete() {
		log.Info("house-search checklist complete, handing off")
		return domain.ReplyDecision{Text: HandoffReply, Escalate: true}
	}

	in := domain.ReasonInput{
		System:  SystemPrompt(),
		History: window,
		Message: text,
		// First contact is a greeting, grounding is only demanded once
		// a conversation exists.
		RequireRetrieval: len(window) > 0,
		Retrieve:         o.retrieve,
	}
	out, err := o.reasoner.Reply(ctx, in)
	if err != nil {
		log.Error("reasoning backend failed, falling back to apology",
			"error", newError(ErrorReasoning, "backend completion failed", err))
		return domain.ReplyDecision{Text: ApologyReply}
	}
	if in.RequireRetrieval && !out.UsedRetrieval {
		log.Warn("reply composed without retrieval grounding")
	}

	env, err := ParseEnvelope(out.Text)
	if err != nil {
		log.Error("completion did not satisfy the reply contract", "error", err)
		return domain.ReplyDecision{Text: ApologyReply}
	}
	if env.Reply == "" {
		log.Error("completion carried an empty reply")
		return domain.ReplyDecision{Text: ApologyReply}
	}
	if issues := ReplyFormatIssues(env.Reply); len(issues) > 0 {
		// A real answer that misses the length contract still beats an
		// apology; the violation is surfaced for prompt tuning.
		log.Warn("reply violates the output format contract", "issues", issues)
	}
	return domain.ReplyDecision{Text: env.Reply, Escalate: env.Escalate}
}

// persist appends the user turn, and the agent turn unless the reply was
// the suppression sentence. Storage failures are logged and swallowed so
// delivery still happens.
func (o *Orchestrator) persist(ctx context.Context, log *slog.Logger, msg domain.InboundMessage, decision domain.ReplyDecision) {
	now := time.Now().UTC()
	if err := o.store.Append(ctx, domain.Turn{
		SessionID: msg.SessionID,
		Speaker:   domain.SpeakerUser,
		Text:      msg.Text,
		CreatedAt: now,
	}); err != nil {
		log.Warn("failed to persist user turn", "error", err)
	}

	if decision.SuppressSend {
		return
	}
	if err := o.store.Append(ctx, domain.Turn{
		SessionID: msg.SessionID,
		Speaker:   domain.SpeakerAgent,
		Text:      decision.Text,
		CreatedAt: now,
	}); err != nil {
		log.Warn("failed to persist agent turn", "error", err)
	}
}
