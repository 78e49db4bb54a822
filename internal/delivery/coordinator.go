// Package delivery turns a reply decision into the platform-side message
// choreography: typing indicators, a humanizing pause, the send itself and
// thread-control transfers.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"support-agent/internal/domain"
	"support-agent/internal/usecase"
)

// transportError tags a platform call failure with the transport code so
// the logs carry the taxonomy the rest of the pipeline uses.
func transportError(reason string, err error) error {
	return &usecase.Error{Code: usecase.ErrorTransport, Reason: reason, Err: err}
}

// Transport is the slice of the messaging platform client the
// coordinator drives.
type Transport interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendTypingOn(ctx context.Context, recipientID string) error
	SendTypingOff(ctx context.Context, recipientID string) error
	PassThreadControl(ctx context.Context, recipientID, targetAppID string) error
	TakeThreadControl(ctx context.Context, recipientID, targetAppID string) error
}

// Coordinator sequences outbound platform calls for one reply. Transport
// failures are logged and swallowed so the webhook acknowledgement is
// never at risk.
type Coordinator struct {
	transport     Transport
	handoverAppID string
	delay         time.Duration
	logger        *slog.Logger
}

// NewCoordinator wires the coordinator. delay is the pause between
// typing-on and the actual send.
func NewCoordinator(transport Transport, handoverAppID string, delay time.Duration, logger *slog.Logger) (*Coordinator, error) {
	if transport == nil {
		return nil, errors.New("delivery: transport must not be nil")
	}
	if handoverAppID == "" {
		return nil, errors.New("delivery: handover app id must not be empty")
	}
	if delay < 0 {
		return nil, errors.New("delivery: delay must not be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		transport:     transport,
		handoverAppID: handoverAppID,
		delay:         delay,
		logger:        logger,
	}, nil
}

// Deliver sends the decision to the recipient. Normal replies get the
// typing-on, pause, send, typing-off sequence. Suppressed replies are a
// bare send. Escalations additionally pass thread control to the human
// side after the text goes out.
func (c *Coordinator) Deliver(ctx context.Context, recipientID string, decision domain.ReplyDecision) {
	log := c.logger.With("recipient_id", recipientID)

	if decision.SuppressSend {
		if err := c.transport.SendText(ctx, recipientID, decision.Text); err != nil {
			log.Error("failed to send suppression reply", "error", transportError("send text", err))
		}
		return
	}

	if err := c.transport.SendTypingOn(ctx, recipientID); err != nil {
		log.Warn("failed to turn typing on", "error", transportError("typing on", err))
	}
	if !c.pause(ctx) {
		log.Warn("delivery cancelled during pause", "error", ctx.Err())
		return
	}
	if err := c.transport.SendText(ctx, recipientID, decision.Text); err != nil {
		log.Error("failed to send reply", "error", transportError("send text", err))
	}
	if err := c.transport.SendTypingOff(ctx, recipientID); err != nil {
		log.Warn("failed to turn typing off", "error", transportError("typing off", err))
	}

	if decision.Escalate {
		if err := c.transport.PassThreadControl(ctx, recipientID, c.handoverAppID); err != nil {
			log.Error("failed to pass thread control", "error", transportError("pass thread control", err))
			return
		}
		log.Info("thread control passed to human side", "target_app_id", c.handoverAppID)
	}
}

// Handover passes thread control without sending anything. Used when the
// moderator app originated the message.
func (c *Coordinator) Handover(ctx context.Context, recipientID string) {
	if err := c.transport.PassThreadControl(ctx, recipientID, c.handoverAppID); err != nil {
		c.logger.Error("failed to pass thread control",
			"recipient_id", recipientID, "error", transportError("pass thread control", err))
	}
}

// Reclaim takes thread control back from the human side so the agent can
// answer again.
func (c *Coordinator) Reclaim(ctx context.Context, recipientID string) {
	if err := c.transport.TakeThreadControl(ctx, recipientID, c.handoverAppID); err != nil {
		c.logger.Error("failed to take thread control",
			"recipient_id", recipientID, "error", transportError("take thread control", err))
	}
}

// pause waits the humanizing delay, reporting false if the context ends
// first.
func (c *Coordinator) pause(ctx context.Context) bool {
	if c.delay == 0 {
		return true
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
