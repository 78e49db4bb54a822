// Package handler exposes the messaging-platform webhook: the GET
// verification handshake and the POST event dispatcher. Whatever happens
// inside event processing, the platform always gets a success
// acknowledgement.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"support-agent/internal/domain"
)

// Orchestrator resolves one inbound message into a reply decision.
type Orchestrator interface {
	Handle(ctx context.Context, msg domain.InboundMessage) (domain.ReplyDecision, error)
}

// Deliverer performs the outbound platform choreography for a decision.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID string, decision domain.ReplyDecision)
	Handover(ctx context.Context, recipientID string)
	Reclaim(ctx context.Context, recipientID string)
}

// Deduper records a message id and reports whether it was seen before.
type Deduper interface {
	MarkProcessed(ctx context.Context, messageID string) (seen bool, err error)
}

// Config carries the webhook-facing settings.
type Config struct {
	PageID         string
	VerifyToken    string
	ModeratorAppID string
	WakePhrase     string
	EventTimeout   time.Duration
}

// Handler is the webhook endpoint.
type Handler struct {
	orchestrator Orchestrator
	deliverer    Deliverer
	deduper      Deduper
	cfg          Config
	logger       *slog.Logger
}

// New wires the handler.
func New(orchestrator Orchestrator, deliverer Deliverer, deduper Deduper, cfg Config, logger *slog.Logger) (*Handler, error) {
	if orchestrator == nil {
		return nil, errors.New("handler: orchestrator must not be nil")
	}
	if deliverer == nil {
		return nil, errors.New("handler: deliverer must not be nil")
	}
	if deduper == nil {
		return nil, errors.New("handler: deduper must not be nil")
	}
	if cfg.PageID == "" {
		return nil, errors.New("handler: page id must not be empty")
	}
	if cfg.VerifyToken == "" {
		return nil, errors.New("handler: verify token must not be empty")
	}
	if cfg.EventTimeout <= 0 {
		return nil, errors.New("handler: event timeout must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		deliverer:    deliverer,
		deduper:      deduper,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// Register mounts the webhook routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/webhook", h.verify)
	r.Post("/webhook", h.receive)
}

// verify answers the platform's subscription handshake.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if mode != "subscribe" || token != h.cfg.VerifyToken {
		h.logger.Warn("webhook verification rejected", "mode", mode)
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// Payload shapes for the page webhook. Message.Text is a pointer so an
// absent text field (attachments, reactions, read receipts) can be told
// apart from an empty string.
type webhookEvent struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string       `json:"id"`
	Standby   []eventFrame `json:"standby"`
	Messaging []eventFrame `json:"messaging"`
}

type eventFrame struct {
	Sender    party         `json:"sender"`
	Recipient party         `json:"recipient"`
	Message   *eventMessage `json:"message"`
}

type party struct {
	ID string `json:"id"`
}

type eventMessage struct {
	MID    string  `json:"mid"`
	Text   *string `json:"text"`
	AppID  appID   `json:"app_id"`
	IsEcho bool    `json:"is_echo"`
}

// appID tolerates both encodings the platform uses for app ids: a JSON
// string and a bare number. A strict string field would fail the decode
// of the whole delivery and drop every co-batched event with it.
type appID string

func (a *appID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = appID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = appID(n.String())
	return nil
}

// receive dispatches a POST delivery. The response is a success
// acknowledgement no matter what the body contained or how processing
// went.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With("delivery_id", uuid.NewString())

	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		log.Warn("discarding malformed webhook body", "error", err)
		h.acknowledge(w)
		return
	}
	if event.Object != "page" {
		log.Debug("ignoring non-page event", "object", event.Object)
		h.acknowledge(w)
		return
	}

	for _, e := range event.Entry {
		for _, frame := range e.Standby {
			h.handleStandby(r.Context(), log, frame)
		}
		for _, frame := range e.Messaging {
			h.handleMessaging(r.Context(), log, frame)
		}
	}

	h.acknowledge(w)
}

// handleStandby watches the human-owned thread for the wake phrase and
// reclaims control when it appears.
func (h *Handler) handleStandby(ctx context.Context, log *slog.Logger, frame eventFrame) {
	if frame.Message == nil || frame.Message.Text == nil {
		return
	}
	if *frame.Message.Text != h.cfg.WakePhrase {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.EventTimeout)
	defer cancel()

	log.Info("wake phrase received, reclaiming thread", "sender_id", frame.Sender.ID)
	h.deliverer.Reclaim(ctx, frame.Sender.ID)
}

func (h *Handler) handleMessaging(ctx context.Context, log *slog.Logger, frame eventFrame) {
	if frame.Message == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.EventTimeout)
	defer cancel()

	// Moderator messages arrive in echo shape, with the page as sender,
	// so this check has to run before the echo discard.
	if h.cfg.ModeratorAppID != "" && frame.Message.AppID == appID(h.cfg.ModeratorAppID) {
		user := frame.Sender.ID
		if user == h.cfg.PageID {
			user = frame.Recipient.ID
		}
		log.Info("moderator message, handing thread over", "user_id", user)
		h.deliverer.Handover(ctx, user)
		return
	}

	// Echoes of the page's own messages come back through the webhook.
	if frame.Sender.ID == h.cfg.PageID || frame.Message.IsEcho {
		return
	}

	// Attachments, reactions and receipts have no text field at all.
	// Whitespace-only text is a real message and flows through.
	if frame.Message.Text == nil {
		log.Debug("ignoring event without text", "sender_id", frame.Sender.ID)
		return
	}

	seen, err := h.deduper.MarkProcessed(ctx, frame.Message.MID)
	if err != nil {
		log.Warn("dedupe check failed, processing anyway", "error", err)
	} else if seen {
		log.Info("skipping redelivered message", "mid", frame.Message.MID)
		return
	}

	decision, err := h.orchestrator.Handle(ctx, domain.InboundMessage{
		SessionID: frame.Sender.ID,
		MessageID: frame.Message.MID,
		Text:      *frame.Message.Text,
	})
	if err != nil {
		log.Error("dropping event the orchestrator rejected", "error", err)
		return
	}

	h.deliverer.Deliver(ctx, frame.Sender.ID, decision)
}

func (h *Handler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
