// Package server implements the HTTP binding of §6.1-6.3: the turn
// streaming endpoint and the five history endpoints consumed by the
// front-end. Grounded on the teacher's pkg/server/http.go — its chi-
// router-based routing and its explicit "don't wrap ResponseWriter, it
// breaks http.Flusher" rule for the streaming handler — adapted from
// the teacher's A2A JSON-RPC surface to this service's line-delimited
// turn stream plus a handful of plain REST history routes. No
// auth/CORS middleware is registered: spec.md §1 lists both as external
// collaborators out of this component's scope, matching the teacher's
// own separation of pkg/auth from its core handlers.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/history"
	"github.com/kadirpekel/analystd/pkg/orchestrator"
	"github.com/kadirpekel/analystd/pkg/wire"
)

// HistoryService is the subset of pkg/history.Store the HTTP layer
// needs, declared here so this package depends only on the interface it
// consumes.
type HistoryService interface {
	ListConversations(ctx context.Context, userID string, page history.Pagination) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	DeleteAll(ctx context.Context, userID string) error
}

// TurnHandler drives one turn end to end, writing wire frames to w. This
// is satisfied by *orchestrator.Orchestrator; declared as an interface
// so handler tests can substitute a stub.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req domain.TurnRequest, w *wire.Writer) error
}

// Config wires a Server's collaborators.
type Config struct {
	Orchestrator TurnHandler
	History      HistoryService // nil disables the five history endpoints (HISTORY_ENABLED=false)
	DefaultMode  domain.Mode
}

// Server is the HTTP binding over chi.
type Server struct {
	orchestrator TurnHandler
	history      HistoryService
	defaultMode  domain.Mode
	router       chi.Router
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		orchestrator: cfg.Orchestrator,
		history:      cfg.History,
		defaultMode:  cfg.DefaultMode,
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/api/turn", s.handleTurn)

	if s.history != nil {
		r.Get("/api/history", s.handleListConversations)
		r.Get("/api/history/{conversationID}", s.handleReadConversation)
		r.Post("/api/history/{conversationID}", s.handleUpdateConversation)
		r.Delete("/api/history/{conversationID}", s.handleDeleteConversation)
		r.Delete("/api/history", s.handleDeleteAll)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// turnRequestPayload is the wire shape of §6.2's TurnRequest.
type turnRequestPayload struct {
	ID                   string   `json:"id"`
	Query                string   `json:"query"`
	AgentMode            string   `json:"agentMode"`
	ReasoningEffort      string   `json:"reasoningEffort"`
	Model                string   `json:"model"`
	Temperature          *float64 `json:"temperature"`
	ModelReasoningEffort string   `json:"modelReasoningEffort"`
	ReasoningSummary     string   `json:"reasoningSummary"`
	UserID               string   `json:"userId"`
}

var validModes = map[string]bool{
	string(domain.ModeSQLOnly): true, string(domain.ModeMultiTool): true,
	string(domain.ModeHandoff): true, string(domain.ModeMagentic): true,
}

// handleTurn serves the chunked turn stream of spec.md §6.1. It does NOT
// wrap http.ResponseWriter — per the teacher's own loggingMiddleware
// comment, wrapping it would break http.Flusher and the client would
// never see bytes until the handler returns.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var payload turnRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.AgentMode == "" {
		payload.AgentMode = string(s.defaultMode)
	}
	if !validModes[payload.AgentMode] {
		http.Error(w, "invalid agentMode", http.StatusBadRequest)
		return
	}

	req := domain.TurnRequest{
		ConversationID:       payload.ID,
		UserID:               payload.UserID,
		UserText:             payload.Query,
		Mode:                 domain.Mode(payload.AgentMode),
		Model:                domain.ModelChoice(payload.Model),
		Temperature:          payload.Temperature,
		ModelReasoningEffort: domain.ReasoningEffort(payload.ModelReasoningEffort),
		ReasoningSummary:     domain.ReasoningSummary(payload.ReasoningSummary),
		DocReasoningEffort:   domain.ReasoningEffort(payload.ReasoningEffort),
		NewConversation:      payload.ID == "",
	}
	if req.Model == "" {
		req.Model = domain.ModelPrimary
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	writer := wire.NewWriter(w)
	if err := s.orchestrator.HandleTurn(r.Context(), req, writer); err != nil {
		slog.Default().Error("turn handling failed", "conversation_id", req.ConversationID, "error", err)
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	convs, err := s.history.ListConversations(r.Context(), userID, paginationFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleReadConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	msgs, err := s.history.ListMessages(r.Context(), conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// updatePayload carries the messages to append for §6.3's `update`
// endpoint.
type updatePayload struct {
	UserID   string           `json:"userId"`
	Messages []domain.Message `json:"messages"`
}

type updateResponse struct {
	Success bool           `json:"success"`
	Data    updateRespData `json:"data"`
}

type updateRespData struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Date           string `json:"date"`
}

// handleUpdateConversation is read through orchestrator.HistoryRecorder
// semantics rather than duplicating ensure/append logic here; it expects
// the *history.Store behind HistoryService to also satisfy
// orchestrator.HistoryRecorder, which pkg/history.Store does.
func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	recorder, ok := s.history.(orchestrator.HistoryRecorder)
	if !ok {
		http.Error(w, "history append is not available", http.StatusNotImplemented)
		return
	}

	var payload updatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	firstText := ""
	if len(payload.Messages) > 0 {
		firstText = payload.Messages[0].Content
	}
	conv, err := recorder.EnsureConversation(r.Context(), conversationID, payload.UserID, firstText)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := recorder.AppendMessages(r.Context(), conv.ConversationID, payload.Messages); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Success: true,
		Data: updateRespData{
			ConversationID: conv.ConversationID,
			Title:          conv.Title,
			Date:           conv.UpdatedAt.Format(time.RFC3339),
		},
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if err := s.history.DeleteConversation(r.Context(), conversationID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if err := s.history.DeleteAll(r.Context(), userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func paginationFromQuery(r *http.Request) history.Pagination {
	var page history.Pagination
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		page.Offset = v
	}
	return page
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeServiceError(w http.ResponseWriter, err error) {
	aerr, ok := apperr.As(err)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	status := http.StatusInternalServerError
	switch aerr.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindCancelled:
		status = http.StatusRequestTimeout
	}
	http.Error(w, aerr.Message, status)
}
