package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/history"
	"github.com/kadirpekel/analystd/pkg/wire"
)

type stubOrchestrator struct {
	received domain.TurnRequest
	err      error
}

func (s *stubOrchestrator) HandleTurn(ctx context.Context, req domain.TurnRequest, w *wire.Writer) error {
	s.received = req
	if s.err != nil {
		return s.err
	}
	return w.WriteTextDelta("hello", nil)
}

type stubHistory struct {
	conversations []domain.Conversation
	messages      []domain.Message
	deletedConv   string
	deletedAllFor string
	ensured       *domain.Conversation
	appended      []domain.Message
}

func (h *stubHistory) ListConversations(ctx context.Context, userID string, page history.Pagination) ([]domain.Conversation, error) {
	return h.conversations, nil
}
func (h *stubHistory) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	return h.messages, nil
}
func (h *stubHistory) DeleteConversation(ctx context.Context, conversationID string) error {
	h.deletedConv = conversationID
	return nil
}
func (h *stubHistory) DeleteAll(ctx context.Context, userID string) error {
	h.deletedAllFor = userID
	return nil
}
func (h *stubHistory) EnsureConversation(ctx context.Context, conversationID, userID, firstUserText string) (*domain.Conversation, error) {
	h.ensured = &domain.Conversation{ConversationID: "conv-new", Title: "New Title"}
	return h.ensured, nil
}
func (h *stubHistory) AppendMessages(ctx context.Context, conversationID string, msgs []domain.Message) error {
	h.appended = append(h.appended, msgs...)
	return nil
}

func TestHandleTurnRejectsInvalidAgentMode(t *testing.T) {
	s := New(Config{Orchestrator: &stubOrchestrator{}, DefaultMode: domain.ModeMultiTool})
	req := httptest.NewRequest(http.MethodPost, "/api/turn", strings.NewReader(`{"query":"hi","agentMode":"bogus"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTurnDefaultsModeAndStreamsFrames(t *testing.T) {
	orch := &stubOrchestrator{}
	s := New(Config{Orchestrator: orch, DefaultMode: domain.ModeMultiTool})
	req := httptest.NewRequest(http.MethodPost, "/api/turn", strings.NewReader(`{"query":"hi"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ModeMultiTool, orch.received.Mode)
	assert.Contains(t, rec.Body.String(), "hello")
}

func TestHandleTurnMarksNewConversationWhenIDOmitted(t *testing.T) {
	orch := &stubOrchestrator{}
	s := New(Config{Orchestrator: orch, DefaultMode: domain.ModeSQLOnly})
	req := httptest.NewRequest(http.MethodPost, "/api/turn", strings.NewReader(`{"query":"hi"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.True(t, orch.received.NewConversation)
}

func TestHistoryEndpointsRoundTrip(t *testing.T) {
	h := &stubHistory{
		conversations: []domain.Conversation{{ConversationID: "c1", Title: "First"}},
		messages:      []domain.Message{{Content: "hi"}},
	}
	s := New(Config{Orchestrator: &stubOrchestrator{}, History: h})

	listReq := httptest.NewRequest(http.MethodGet, "/api/history?userId=u1", nil)
	listRec := httptest.NewRecorder()
	s.ServeHTTP(listRec, listReq)
	assert.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), "First")

	readReq := httptest.NewRequest(http.MethodGet, "/api/history/c1", nil)
	readRec := httptest.NewRecorder()
	s.ServeHTTP(readRec, readReq)
	assert.Equal(t, http.StatusOK, readRec.Code)
	assert.Contains(t, readRec.Body.String(), `"hi"`)

	deleteReq := httptest.NewRequest(http.MethodDelete, "/api/history/c1", nil)
	deleteRec := httptest.NewRecorder()
	s.ServeHTTP(deleteRec, deleteReq)
	assert.Equal(t, http.StatusNoContent, deleteRec.Code)
	assert.Equal(t, "c1", h.deletedConv)

	deleteAllReq := httptest.NewRequest(http.MethodDelete, "/api/history?userId=u1", nil)
	deleteAllRec := httptest.NewRecorder()
	s.ServeHTTP(deleteAllRec, deleteAllReq)
	assert.Equal(t, http.StatusNoContent, deleteAllRec.Code)
	assert.Equal(t, "u1", h.deletedAllFor)
}

func TestHandleUpdateConversationEnsuresAndAppends(t *testing.T) {
	h := &stubHistory{}
	s := New(Config{Orchestrator: &stubOrchestrator{}, History: h})

	body := `{"userId":"u1","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/history/c-new", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.ensured)
	assert.Contains(t, rec.Body.String(), "New Title")
	require.Len(t, h.appended, 1)
}

func TestHistoryEndpointsAbsentWhenHistoryDisabled(t *testing.T) {
	s := New(Config{Orchestrator: &stubOrchestrator{}})
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaginationFromQueryParsesLimitAndOffset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/history?userId=u1&limit=10&offset=20", nil)
	page := paginationFromQuery(req)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 20, page.Offset)
}

func TestPaginationFromQueryDefaultsOnMissingOrInvalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=bogus", nil)
	page := paginationFromQuery(req)
	assert.Equal(t, 0, page.Limit)
	assert.Equal(t, 0, page.Offset)
}

func TestWriteServiceErrorMapsValidationToBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, apperr.Validation("bad input"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
