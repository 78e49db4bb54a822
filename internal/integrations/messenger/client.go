// Package messenger is a focused client for the Facebook Graph messaging
// endpoints used by the agent: text sends, typing indicators, and thread
// control handover.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type recipient struct {
	ID string `json:"id"`
}

type sendMessageRequest struct {
	Recipient     recipient `json:"recipient"`
	MessagingType string    `json:"messaging_type,omitempty"`
	Message       *textBody `json:"message,omitempty"`
	SenderAction  string    `json:"sender_action,omitempty"`
	AccessToken   string    `json:"access_token"`
}

type textBody struct {
	Text string `json:"text"`
}

type threadControlRequest struct {
	Recipient   recipient `json:"recipient"`
	TargetAppID string    `json:"target_app_id"`
	AccessToken string    `json:"access_token"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("messenger: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client sends best-effort requests to the Graph API. Calls are never
// retried here; delivery failures are the caller's to log and swallow.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	pageID      string
	accessToken string
	apiVersion  string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for one page identity.
func NewClient(pageID, accessToken, apiVersion string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(pageID) == "" {
		return nil, errors.New("messenger: page id must not be empty")
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("messenger: access token must not be empty")
	}
	if strings.TrimSpace(apiVersion) == "" {
		apiVersion = "v24.0"
	}
	c := &Client{
		baseURL:     "https://graph.facebook.com",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		pageID:      pageID,
		accessToken: accessToken,
		apiVersion:  apiVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SendText delivers a plain text message to the recipient.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("messenger: text must not be empty")
	}
	return c.post(ctx, "messages", sendMessageRequest{
		Recipient:     recipient{ID: recipientID},
		MessagingType: "RESPONSE",
		Message:       &textBody{Text: text},
		AccessToken:   c.accessToken,
	})
}

// SendTypingOn signals the typing indicator for the recipient's thread.
func (c *Client) SendTypingOn(ctx context.Context, recipientID string) error {
	return c.senderAction(ctx, recipientID, "typing_on")
}

// SendTypingOff clears the typing indicator.
func (c *Client) SendTypingOff(ctx context.Context, recipientID string) error {
	return c.senderAction(ctx, recipientID, "typing_off")
}

func (c *Client) senderAction(ctx context.Context, recipientID, action string) error {
	return c.post(ctx, "messages", sendMessageRequest{
		Recipient:    recipient{ID: recipientID},
		SenderAction: action,
		AccessToken:  c.accessToken,
	})
}

// PassThreadControl hands the recipient's thread to the target app.
func (c *Client) PassThreadControl(ctx context.Context, recipientID, targetAppID string) error {
	return c.post(ctx, "pass_thread_control", threadControlRequest{
		Recipient:   recipient{ID: recipientID},
		TargetAppID: targetAppID,
		AccessToken: c.accessToken,
	})
}

// TakeThreadControl takes the recipient's thread back from the target app.
func (c *Client) TakeThreadControl(ctx context.Context, recipientID, targetAppID string) error {
	return c.post(ctx, "take_thread_control", threadControlRequest{
		Recipient:   recipient{ID: recipientID},
		TargetAppID: targetAppID,
		AccessToken: c.accessToken,
	})
}

func (c *Client) endpoint(name string) string {
	base := strings.TrimRight(c.baseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	return fmt.Sprintf("%s/%s/%s/%s", base, c.apiVersion, c.pageID, name)
}

func (c *Client) post(ctx context.Context, name string, payload any) error {
	if strings.TrimSpace(payloadRecipient(payload)) == "" {
		return errors.New("messenger: recipient id must not be empty")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messenger: marshal request: %w", err)
	}

	url := c.endpoint(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("messenger: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("messenger: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func payloadRecipient(payload any) string {
	switch p := payload.(type) {
	case sendMessageRequest:
		return p.Recipient.ID
	case threadControlRequest:
		return p.Recipient.ID
	}
	return ""
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
