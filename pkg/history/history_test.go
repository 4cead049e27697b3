package history

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/analystd/pkg/apperr"
	"github.com/kadirpekel/analystd/pkg/domain"
)

func newTestStore(t *testing.T, titler TitleGenerator) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := New(Config{DB: db, Dialect: "sqlite", Titler: titler})
	require.NoError(t, err)
	return s
}

func TestEnsureConversationCreatesNewWithFallbackTitle(t *testing.T) {
	s := newTestStore(t, nil)
	conv, err := s.EnsureConversation(context.Background(), "", "user-1", "What were last month's top products?")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ConversationID)
	assert.Equal(t, "What were last month's top products?", conv.Title)
}

func TestEnsureConversationReturnsExistingUnchanged(t *testing.T) {
	s := newTestStore(t, nil)
	first, err := s.EnsureConversation(context.Background(), "", "user-1", "hello")
	require.NoError(t, err)

	second, err := s.EnsureConversation(context.Background(), first.ConversationID, "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, first.Title, second.Title)
}

func TestEnsureConversationFallsBackToTruncationOnTitlerFailure(t *testing.T) {
	failing := func(ctx context.Context, userText string) (string, error) {
		return "", assert.AnError
	}
	s := newTestStore(t, failing)
	conv, err := s.EnsureConversation(context.Background(), "", "user-1", "short question")
	require.NoError(t, err)
	assert.Equal(t, "short question", conv.Title)
}

func TestEnsureConversationRejectsInvalidUserID(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.EnsureConversation(context.Background(), "", "has a space", "hi")
	require.Error(t, err)
	aerr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, aerr.Kind)
}

func TestAppendMessagesThenListMessagesIsStrictlyOrdered(t *testing.T) {
	s := newTestStore(t, nil)
	conv, err := s.EnsureConversation(context.Background(), "", "user-1", "hi")
	require.NoError(t, err)

	err = s.AppendMessages(context.Background(), conv.ConversationID, []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello there"},
	})
	require.NoError(t, err)

	err = s.AppendMessages(context.Background(), conv.ConversationID, []domain.Message{
		{Role: domain.RoleUser, Content: "follow up"},
	})
	require.NoError(t, err)

	msgs, err := s.ListMessages(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "hello there", msgs[1].Content)
	assert.Equal(t, "follow up", msgs[2].Content)
}

func TestListConversationsOrderedByUpdatedAtDescending(t *testing.T) {
	s := newTestStore(t, nil)
	first, err := s.EnsureConversation(context.Background(), "", "user-1", "first")
	require.NoError(t, err)
	_, err = s.EnsureConversation(context.Background(), "", "user-1", "second")
	require.NoError(t, err)

	require.NoError(t, s.AppendMessages(context.Background(), first.ConversationID, []domain.Message{
		{Role: domain.RoleUser, Content: "touch it"},
	}))

	convs, err := s.ListConversations(context.Background(), "user-1", Pagination{})
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ConversationID, convs[0].ConversationID)
}

func TestDeleteConversationRemovesMessagesToo(t *testing.T) {
	s := newTestStore(t, nil)
	conv, err := s.EnsureConversation(context.Background(), "", "user-1", "hi")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(context.Background(), conv.ConversationID, []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
	}))

	require.NoError(t, s.DeleteConversation(context.Background(), conv.ConversationID))

	msgs, err := s.ListMessages(context.Background(), conv.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	convs, err := s.ListConversations(context.Background(), "user-1", Pagination{})
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestDeleteAllRemovesEveryConversationForUser(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.EnsureConversation(context.Background(), "", "user-1", "one")
	require.NoError(t, err)
	_, err = s.EnsureConversation(context.Background(), "", "user-1", "two")
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll(context.Background(), "user-1"))

	convs, err := s.ListConversations(context.Background(), "user-1", Pagination{})
	require.NoError(t, err)
	assert.Empty(t, convs)
}
