package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

type stubStore struct {
	window   []domain.Turn
	readErr  error
	appended []domain.Turn
}

func (s *stubStore) ReadLastN(_ context.Context, _ string, _ int) ([]domain.Turn, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.window, nil
}

func (s *stubStore) Append(_ context.Context, turn domain.Turn) error {
	s.appended = append(s.appended, turn)
	return nil
}

type stubReasoner struct {
	out    domain.ReasonOutput
	err    error
	calls  int
	lastIn domain.ReasonInput
}

func (r *stubReasoner) Reply(_ context.Context, in domain.ReasonInput) (domain.ReasonOutput, error) {
	r.calls++
	r.lastIn = in
	if r.err != nil {
		return domain.ReasonOutput{}, r.err
	}
	return r.out, nil
}

func noRetrieve(_ context.Context, _ string) []domain.Passage { return nil }

func newTestOrchestrator(t *testing.T, store *stubStore, reasoner *stubReasoner) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(store, reasoner, noRetrieve, 10, nil)
	require.NoError(t, err)
	return o
}

func TestNewOrchestratorValidatesDeps(t *testing.T) {
	_, err := NewOrchestrator(nil, &stubReasoner{}, noRetrieve, 10, nil)
	require.Error(t, err)

	_, err = NewOrchestrator(&stubStore{}, nil, noRetrieve, 10, nil)
	require.Error(t, err)

	_, err = NewOrchestrator(&stubStore{}, &stubReasoner{}, nil, 10, nil)
	require.Error(t, err)

	_, err = NewOrchestrator(&stubStore{}, &stubReasoner{}, noRetrieve, 0, nil)
	require.Error(t, err)
}

func TestHandleRequiresSessionID(t *testing.T) {
	o := newTestOrchestrator(t, &stubStore{}, &stubReasoner{})

	_, err := o.Handle(context.Background(), domain.InboundMessage{Text: "hi"})

	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorMalformedEvent, ucErr.Code)
}

func TestHandleGreetsNewSession(t *testing.T) {
	store := &stubStore{}
	reasoner := &stubReasoner{out: domain.ReasonOutput{
		Text: `{"reply": "Chào bạn, mình là Minh, tư vấn viên của NHÀ MỸ CALI ạ", "escalate": false}`,
	}}
	o := newTestOrchestrator(t, store, reasoner)

	decision, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", MessageID: "mid-1", Text: "Hi",
	})

	require.NoError(t, err)
	require.Equal(t, "Chào bạn, mình là Minh, tư vấn viên của NHÀ MỸ CALI ạ", decision.Text)
	require.False(t, decision.Escalate)
	require.False(t, decision.SuppressSend)

	require.Equal(t, 1, reasoner.calls)
	require.False(t, reasoner.lastIn.RequireRetrieval, "first contact must not demand a grounding call")

	require.Len(t, store.appended, 2)
	require.Equal(t, domain.SpeakerUser, store.appended[0].Speaker)
	require.Equal(t, "Hi", store.appended[0].Text)
	require.Equal(t, domain.SpeakerAgent, store.appended[1].Speaker)
	require.Equal(t, decision.Text, store.appended[1].Text)
}

func TestHandleRequiresRetrievalMidConversation(t *testing.T) {
	store := &stubStore{window: []domain.Turn{
		userTurn("chào bạn"),
		agentTurn("Dạ, Minh nghe ạ"),
	}}
	reasoner := &stubReasoner{out: domain.ReasonOutput{
		Text: `{"reply": "Dạ, giá nhà San Jose hiện quanh mức một triệu đô ạ", "escalate": false}`,
	}}
	o := newTestOrchestrator(t, store, reasoner)

	_, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "giá nhà San Jose thế nào?",
	})

	require.NoError(t, err)
	require.True(t, reasoner.lastIn.RequireRetrieval)
	require.Equal(t, store.window, reasoner.lastIn.History)
}

func TestHandleSuppressesThirdDuplicate(t *testing.T) {
	store := &stubStore{window: []domain.Turn{
		userTurn("giá nhà?"),
		agentTurn("Dạ, tuỳ khu vực ạ"),
		userTurn("giá nhà?"),
		agentTurn("Dạ, tuỳ khu vực ạ"),
	}}
	reasoner := &stubReasoner{}
	o := newTestOrchestrator(t, store, reasoner)

	decision, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "giá nhà?",
	})

	require.NoError(t, err)
	require.Equal(t, SuppressionReply, decision.Text)
	require.True(t, decision.SuppressSend)
	require.False(t, decision.Escalate)

	require.Zero(t, reasoner.calls, "suppressed messages must skip the backend")

	// Only the user turn is recorded, the refusal is not part of the
	// conversation.
	require.Len(t, store.appended, 1)
	require.Equal(t, domain.SpeakerUser, store.appended[0].Speaker)
}

func TestHandleAnswersEmptyMessageWithoutBackend(t *testing.T) {
	store := &stubStore{}
	reasoner := &stubReasoner{}
	o := newTestOrchestrator(t, store, reasoner)

	decision, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "   ",
	})

	require.NoError(t, err)
	require.Equal(t, EmptyPromptReply, decision.Text)
	require.False(t, decision.SuppressSend)
	require.Zero(t, reasoner.calls)
	require.Len(t, store.appended, 2)
}

func TestHandleHandsOffOnCompleteChecklist(t *testing.T) {
	store := &stubStore{window: []domain.Turn{
		userTurn("mình muốn tìm nhà 3 phòng ngủ ở khu vực San Jose"),
		agentTurn("Dạ, bạn cần mấy phòng tắm ạ?"),
	}}
	reasoner := &stubReasoner{}
	o := newTestOrchestrator(t, store, reasoner)

	decision, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "2 phòng tắm nhé",
	})

	require.NoError(t, err)
	require.Equal(t, HandoffReply, decision.Text)
	require.True(t, decision.Escalate)
	require.Zero(t, reasoner.calls, "a complete checklist is decided without the backend")
}

func TestHandleFallsBackToApologyOnBackendError(t *testing.T) {
	store := &stubStore{}
	reasoner := &stubReasoner{err: context.DeadlineExceeded}
	o := newTestOrchestrator(t, store, reasoner)

	decision, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "giá nhà San Jose?",
	})

	require.NoError(t, err, "backend failures must not propagate")
	require.Equal(t, ApologyReply, decision.Text)
	require.False(t, decision.Escalate)
}

func TestHandleFallsBackToApologyOnMalformedCompletion(t *testing.T) {
	store := &stubStore{}
	reasoner := &stubReasoner{out: domain.ReasonOutput{Text: "Chào bạn, Minh đây"}}
	o := newTestOrchestrator(t, store, reasoner)

	decision, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "giá nhà?",
	})

	require.NoError(t, err)
	require.Equal(t, ApologyReply, decision.Text)
}

func TestHandleDeliversOutOfContractReplyAndLogsIt(t *testing.T) {
	var buf bytes.Buffer
	store := &stubStore{}
	reasoner := &stubReasoner{out: domain.ReasonOutput{
		Text: `{"reply": "Dạ", "escalate": false}`,
	}}
	o, err := NewOrchestrator(store, reasoner, noRetrieve, 10,
		slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	decision, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "giá nhà?",
	})

	require.NoError(t, err)
	// A short real answer is still delivered; the violation only gets
	// logged for prompt tuning.
	require.Equal(t, "Dạ", decision.Text)
	require.Contains(t, buf.String(), "output format contract")
	require.Contains(t, buf.String(), "shorter than 100 characters")
}

func TestHandleLogsWhenRequiredGroundingWasSkipped(t *testing.T) {
	window := []domain.Turn{
		userTurn("chào bạn"),
		agentTurn("Dạ, Minh nghe ạ"),
	}
	reply := `{"reply": "Dạ, Minh trả lời bạn ạ", "escalate": false}`

	var buf bytes.Buffer
	store := &stubStore{window: window}
	reasoner := &stubReasoner{out: domain.ReasonOutput{Text: reply}}
	o, err := NewOrchestrator(store, reasoner, noRetrieve, 10,
		slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	_, err = o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "giá nhà San Jose?",
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "without retrieval grounding")

	buf.Reset()
	reasoner.out.UsedRetrieval = true
	_, err = o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "còn giá thuê thì sao?",
	})
	require.NoError(t, err)
	require.NotContains(t, buf.String(), "without retrieval grounding")
}

func TestHandleDegradesToEmptyWindowOnReadFailure(t *testing.T) {
	store := &stubStore{readErr: errors.New("connection refused")}
	reasoner := &stubReasoner{out: domain.ReasonOutput{
		Text: `{"reply": "Dạ, Minh nghe ạ", "escalate": false}`,
	}}
	o := newTestOrchestrator(t, store, reasoner)

	decision, err := o.Handle(context.Background(), domain.InboundMessage{
		SessionID: "psid-1", Text: "alo",
	})

	require.NoError(t, err)
	require.Equal(t, "Dạ, Minh nghe ạ", decision.Text)
	require.Empty(t, reasoner.lastIn.History)
}
