// Package history implements the History Store (C7, spec.md §4.7): an
// append-only record of conversations and messages over a pooled SQL
// driver. Grounded on the teacher's task_service_sql.go — a dialect-aware
// database/sql store with the same three drivers — adapted from the
// teacher's protobuf task rows to this service's domain.Conversation and
// domain.Message, and from a single flat table to a two-table
// conversation/message schema matching spec.md §3's data model.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/model"
)

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    title VARCHAR(200) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at);

CREATE TABLE IF NOT EXISTS messages (
    message_id VARCHAR(64) PRIMARY KEY,
    conversation_id VARCHAR(64) NOT NULL,
    role VARCHAR(20) NOT NULL,
    content TEXT,
    citations_json TEXT,
    tool_events_json TEXT,
    chart_json TEXT,
    created_at TIMESTAMP NOT NULL,
    seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq);
`

// idPattern bounds conversation_id and user_id to a safe character set
// and length per spec.md §4.7's validation rule.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// maxTitleLength bounds a truncation-fallback title (spec.md §4.7:
// "generated title derived from first_user_text, bounded in length").
const maxTitleLength = 80

// TitleGenerator produces a conversation title from the first user
// message. The Store falls back to a truncation of userText whenever
// this returns an error, so a nil generator (no model wired) degrades
// gracefully rather than failing conversation creation.
type TitleGenerator func(ctx context.Context, userText string) (string, error)

// Store is the SQL-backed History Store.
type Store struct {
	db      *sql.DB
	dialect string
	titler  TitleGenerator
}

// Config wires a Store's collaborators.
type Config struct {
	DB      *sql.DB
	Dialect string // "postgres", "mysql", or "sqlite"
	Titler  TitleGenerator
}

// New opens a Store against an already-pooled *sql.DB and ensures its
// schema exists.
func New(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("history: db connection is required")
	}
	s := &Store{db: cfg.DB, dialect: cfg.Dialect, titler: cfg.Titler}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return s, nil
}

// NewTitleGeneratorFromClient builds a TitleGenerator that asks client
// for a short title, accumulating its text stream with a bounded budget.
// Used at wiring time in cmd/analystd; kept free of the orchestrator's
// topology machinery since a title call needs neither tools nor a
// system-instruction persona.
func NewTitleGeneratorFromClient(client model.Client) TitleGenerator {
	return func(ctx context.Context, userText string) (string, error) {
		if client == nil {
			return "", fmt.Errorf("history: no title model configured")
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		req := &model.Request{
			SystemInstruction: "Write a concise 3-6 word title for this conversation. Reply with only the title, no punctuation.",
			Messages:          []model.Message{{Role: domain.RoleUser, Content: userText}},
		}
		var title strings.Builder
		for ev := range client.Stream(ctx, req) {
			switch ev.Kind {
			case model.EventTextDelta:
				title.WriteString(ev.TextDelta)
			case model.EventError:
				return "", ev.Err
			}
		}
		result := strings.TrimSpace(title.String())
		if result == "" {
			return "", fmt.Errorf("history: model produced an empty title")
		}
		return truncateTitle(result), nil
	}
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, createSchemaSQL)
	return err
}

func (s *Store) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func validateID(field, id string) error {
	if !idPattern.MatchString(id) {
		return apperr.Validation(fmt.Sprintf("%s must be 1-64 characters of letters, digits, '_' or '-'", field))
	}
	return nil
}

// EnsureConversation implements spec.md §4.7's ensure_conversation: when
// conversationID is empty or not found, a new Conversation is created
// with a best-effort generated title.
func (s *Store) EnsureConversation(ctx context.Context, conversationID, userID, firstUserText string) (*domain.Conversation, error) {
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}

	if conversationID != "" {
		if err := validateID("conversation_id", conversationID); err != nil {
			return nil, err
		}
		existing, err := s.getConversation(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	} else {
		conversationID = uuid.NewString()
	}

	title := s.generateTitle(ctx, firstUserText)
	now := time.Now()
	conv := &domain.Conversation{
		ConversationID: conversationID,
		UserID:         userID,
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := fmt.Sprintf(
		`INSERT INTO conversations (conversation_id, user_id, title, created_at, updated_at) VALUES (%s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
	)
	if _, err := s.db.ExecContext(ctx, query, conv.ConversationID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return nil, apperr.ToolTransient("failed to create conversation", err)
	}
	return conv, nil
}

func (s *Store) generateTitle(ctx context.Context, firstUserText string) string {
	fallback := truncateTitle(strings.TrimSpace(firstUserText))
	if fallback == "" {
		fallback = "New conversation"
	}
	if s.titler == nil {
		return fallback
	}
	title, err := s.titler(ctx, firstUserText)
	if err != nil {
		return fallback
	}
	return title
}

func truncateTitle(s string) string {
	if len(s) <= maxTitleLength {
		return s
	}
	return strings.TrimSpace(s[:maxTitleLength]) + "..."
}

func (s *Store) getConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	query := fmt.Sprintf(
		`SELECT conversation_id, user_id, title, created_at, updated_at FROM conversations WHERE conversation_id = %s`,
		s.placeholder(1),
	)
	var conv domain.Conversation
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(
		&conv.ConversationID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.ToolTransient("failed to read conversation", err)
	}
	return &conv, nil
}

// AppendMessages implements spec.md §4.7's append_messages: atomic for
// the given list, and bumps the conversation's updated_at so
// list_conversations ordering reflects recent activity.
func (s *Store) AppendMessages(ctx context.Context, conversationID string, msgs []domain.Message) error {
	if err := validateID("conversation_id", conversationID); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.ToolTransient("failed to begin transaction", err)
	}
	defer tx.Rollback()

	seqBase, err := s.nextSeq(ctx, tx, conversationID)
	if err != nil {
		return err
	}

	insertQuery := fmt.Sprintf(
		`INSERT INTO messages (message_id, conversation_id, role, content, citations_json, tool_events_json, chart_json, created_at, seq)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9),
	)

	for i, msg := range msgs {
		if msg.MessageID == "" {
			msg.MessageID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		citationsJSON, _ := json.Marshal(msg.Citations)
		toolEventsJSON, _ := json.Marshal(msg.ToolEvents)
		var chartJSON []byte
		if msg.Chart != nil {
			chartJSON, _ = json.Marshal(msg.Chart)
		}
		if _, err := tx.ExecContext(ctx, insertQuery,
			msg.MessageID, conversationID, string(msg.Role), msg.Content,
			string(citationsJSON), string(toolEventsJSON), string(chartJSON),
			msg.CreatedAt, seqBase+i,
		); err != nil {
			return apperr.ToolTransient("failed to append message", err)
		}
	}

	updateQuery := fmt.Sprintf(`UPDATE conversations SET updated_at = %s WHERE conversation_id = %s`, s.placeholder(1), s.placeholder(2))
	if _, err := tx.ExecContext(ctx, updateQuery, time.Now(), conversationID); err != nil {
		return apperr.ToolTransient("failed to touch conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.ToolTransient("failed to commit message append", err)
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context, tx *sql.Tx, conversationID string) (int, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(seq), -1) FROM messages WHERE conversation_id = %s`, s.placeholder(1))
	var maxSeq int
	if err := tx.QueryRowContext(ctx, query, conversationID).Scan(&maxSeq); err != nil {
		return 0, apperr.ToolTransient("failed to compute next message sequence", err)
	}
	return maxSeq + 1, nil
}

// Pagination bounds a list_conversations call.
type Pagination struct {
	Limit  int
	Offset int
}

// ListConversations implements list_conversations, ordered by
// updated_at descending.
func (s *Store) ListConversations(ctx context.Context, userID string, page Pagination) ([]domain.Conversation, error) {
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}
	limit := page.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(
		`SELECT conversation_id, user_id, title, created_at, updated_at FROM conversations
		 WHERE user_id = %s ORDER BY updated_at DESC LIMIT %s OFFSET %s`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3),
	)
	rows, err := s.db.QueryContext(ctx, query, userID, limit, page.Offset)
	if err != nil {
		return nil, apperr.ToolTransient("failed to list conversations", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(&conv.ConversationID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, apperr.ToolTransient("failed to scan conversation row", err)
		}
		out = append(out, conv)
	}
	return out, nil
}

// ListMessages implements list_messages, strictly ordered.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if err := validateID("conversation_id", conversationID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT message_id, conversation_id, role, content, citations_json, tool_events_json, chart_json, created_at
		 FROM messages WHERE conversation_id = %s ORDER BY seq ASC`,
		s.placeholder(1),
	)
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, apperr.ToolTransient("failed to list messages", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var citationsJSON, toolEventsJSON, chartJSON sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &role, &msg.Content, &citationsJSON, &toolEventsJSON, &chartJSON, &msg.CreatedAt); err != nil {
			return nil, apperr.ToolTransient("failed to scan message row", err)
		}
		msg.Role = domain.MessageRole(role)
		if citationsJSON.Valid && citationsJSON.String != "" {
			_ = json.Unmarshal([]byte(citationsJSON.String), &msg.Citations)
		}
		if toolEventsJSON.Valid && toolEventsJSON.String != "" {
			_ = json.Unmarshal([]byte(toolEventsJSON.String), &msg.ToolEvents)
		}
		if chartJSON.Valid && chartJSON.String != "" {
			var chart domain.ChartPayload
			if err := json.Unmarshal([]byte(chartJSON.String), &chart); err == nil {
				msg.Chart = &chart
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

// DeleteConversation removes one conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := validateID("conversation_id", conversationID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.ToolTransient("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM messages WHERE conversation_id = %s`, s.placeholder(1)), conversationID); err != nil {
		return apperr.ToolTransient("failed to delete messages", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM conversations WHERE conversation_id = %s`, s.placeholder(1)), conversationID); err != nil {
		return apperr.ToolTransient("failed to delete conversation", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.ToolTransient("failed to commit conversation delete", err)
	}
	return nil
}

// DeleteAll removes every conversation and message owned by userID.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	if err := validateID("user_id", userID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.ToolTransient("failed to begin transaction", err)
	}
	defer tx.Rollback()

	deleteMessages := fmt.Sprintf(
		`DELETE FROM messages WHERE conversation_id IN (SELECT conversation_id FROM conversations WHERE user_id = %s)`,
		s.placeholder(1),
	)
	if _, err := tx.ExecContext(ctx, deleteMessages, userID); err != nil {
		return apperr.ToolTransient("failed to delete messages", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM conversations WHERE user_id = %s`, s.placeholder(1)), userID); err != nil {
		return apperr.ToolTransient("failed to delete conversations", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.ToolTransient("failed to commit delete_all", err)
	}
	return nil
}
