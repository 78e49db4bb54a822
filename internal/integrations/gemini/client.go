// Package gemini adapts the Google Gemini API to the one capability the
// orchestrator needs: a policy-constrained completion with the retrieval
// tool available for a single bounded round trip.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"support-agent/internal/domain"
)

const (
	searchToolName = "knowledge_search"

	retrievalReminder = "Bạn chưa tra cứu kiến thức. Hãy gọi tool " +
		searchToolName + " trước khi trả lời câu hỏi của khách."
)

// Client wraps one Gemini model.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithTemperature(temperature float32) Option {
	return func(c *Client) {
		c.temperature = temperature
	}
}

// NewClient creates a Client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	c := &Client{
		client:      client,
		model:       model,
		temperature: 0.3,
		timeout:     8 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Reply runs one completion. The tool loop is bounded: at most one
// knowledge_search round trip, plus at most one local re-prompt when
// retrieval was required but skipped.
func (c *Client) Reply(ctx context.Context, in domain.ReasonInput) (domain.ReasonOutput, error) {
	if strings.TrimSpace(in.Message) == "" {
		return domain.ReasonOutput{}, errors.New("gemini: message must not be empty")
	}
	if in.Retrieve == nil {
		return domain.ReasonOutput{}, errors.New("gemini: retrieve func must not be nil")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := historyContents(in.History)
	contents = append(contents, genai.NewContentFromText(in.Message, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
		Tools:       []*genai.Tool{searchTool()},
	}
	if strings.TrimSpace(in.System) != "" {
		config.SystemInstruction = genai.NewContentFromText(in.System, genai.RoleUser)
	}

	res, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return domain.ReasonOutput{}, fmt.Errorf("gemini: generate: %w", err)
	}

	call := firstFunctionCall(res)
	if call == nil && in.RequireRetrieval {
		contents = append(contents, genai.NewContentFromText(retrievalReminder, genai.RoleUser))
		res, err = c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return domain.ReasonOutput{}, fmt.Errorf("gemini: generate after reminder: %w", err)
		}
		call = firstFunctionCall(res)
	}

	if call == nil {
		text, err := responseText(res)
		if err != nil {
			return domain.ReasonOutput{}, err
		}
		return domain.ReasonOutput{Text: text}, nil
	}

	passages := in.Retrieve(ctx, queryArg(call))
	if ctx.Err() != nil {
		return domain.ReasonOutput{}, fmt.Errorf("gemini: cancelled during retrieval: %w", ctx.Err())
	}

	contents = append(contents, res.Candidates[0].Content)
	contents = append(contents, &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromFunctionResponse(call.Name, map[string]any{
				"passages": passageTexts(passages),
			}),
		},
	})

	// Second round: tool results are in, no further calls allowed.
	config.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode: genai.FunctionCallingConfigModeNone,
		},
	}
	res, err = c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return domain.ReasonOutput{}, fmt.Errorf("gemini: generate with tool result: %w", err)
	}

	text, err := responseText(res)
	if err != nil {
		return domain.ReasonOutput{}, err
	}
	return domain.ReasonOutput{Text: text, UsedRetrieval: true}, nil
}

func searchTool() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name: searchToolName,
			Description: "Tra cứu kiến thức cập nhật về bất động sản, định cư Mỹ và " +
				"vay vốn của Nhà Mỹ Cali. Bắt buộc gọi trước khi trả lời câu hỏi có nội dung.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "Câu truy vấn tìm kiếm, viết bằng tiếng Việt.",
					},
				},
				Required: []string{"query"},
			},
		}},
	}
}

func historyContents(history []domain.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+2)
	for _, turn := range history {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if turn.Speaker == domain.SpeakerAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return contents
}

func firstFunctionCall(res *genai.GenerateContentResponse) *genai.FunctionCall {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range res.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			return part.FunctionCall
		}
	}
	return nil
}

func queryArg(call *genai.FunctionCall) string {
	if q, ok := call.Args["query"].(string); ok {
		return q
	}
	return ""
}

func passageTexts(passages []domain.Passage) []string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Text)
	}
	return texts
}

func responseText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", errors.New("gemini: no candidates in response")
	}
	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("gemini: empty completion")
	}
	return text, nil
}
