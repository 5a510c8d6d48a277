// File path: internal/sqlite/store_test.go
package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicodishanthj/testcase_agent/internal/session"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenWithConfig(Config{Path: filepath.Join(t.TempDir(), "agent.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateConversation(ctx, "Login screen", "User can log in with email/password")
	require.NoError(t, err)
	assert.Regexp(t, `^conv_[0-9a-f]{12}$`, created.ConversationID)
	assert.Equal(t, "Login screen", created.Title)
	assert.False(t, created.CreatedAt.IsZero())

	loaded, err := store.GetConversation(ctx, created.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, created.ConversationID, loaded.ConversationID)
	assert.Equal(t, "User can log in with email/password", loaded.PBIRequirement)

	_, err = store.GetConversation(ctx, "conv_missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCreateConversationRequiresFields(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateConversation(context.Background(), " ", "req")
	assert.ErrorIs(t, err, session.ErrInvalid)
}

func TestEnsureConversationCreatesOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, inserted, err := store.EnsureConversation(ctx, "conv_client01", "Login screen", "Sign in with email")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "conv_client01", first.ConversationID)
	assert.Equal(t, "Login screen", first.Title)

	again, inserted, err := store.EnsureConversation(ctx, "conv_client01", "Other title", "Other requirement")
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Login screen", again.Title)

	_, err = store.AddMessage(ctx, "conv_client01", session.RoleUser, "hello")
	require.NoError(t, err)

	_, _, err = store.EnsureConversation(ctx, " ", "t", "r")
	assert.ErrorIs(t, err, session.ErrInvalid)
	_, _, err = store.EnsureConversation(ctx, "conv_client02", "", "r")
	assert.ErrorIs(t, err, session.ErrInvalid)
}

func TestAddMessageBumpsUpdatedAtAndOrdersHistory(t *testing.T) {
	store := newTestStore(t)
	clock := &stepClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "Login screen", "User can log in with email/password")
	require.NoError(t, err)

	_, err = store.AddMessage(ctx, conv.ConversationID, session.RoleUser, "Generate test cases")
	require.NoError(t, err)
	afterUser, err := store.GetConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.True(t, afterUser.UpdatedAt.After(conv.UpdatedAt))

	_, err = store.AddMessage(ctx, conv.ConversationID, session.RoleAssistant, "TC1: valid login ...")
	require.NoError(t, err)
	afterAssistant, err := store.GetConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.True(t, afterAssistant.UpdatedAt.After(afterUser.UpdatedAt))

	messages, err := store.Messages(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, session.RoleUser, messages[0].Role)
	assert.Equal(t, "Generate test cases", messages[0].Content)
	assert.Equal(t, session.RoleAssistant, messages[1].Role)
	assert.Less(t, messages[0].ID, messages[1].ID)
}

func TestAddMessageAdvancesUpdatedAtWithFrozenClock(t *testing.T) {
	store := newTestStore(t)
	frozen := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return frozen })
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "t", "r")
	require.NoError(t, err)
	previous := conv.UpdatedAt
	for i := 0; i < 3; i++ {
		_, err := store.AddMessage(ctx, conv.ConversationID, session.RoleUser, "again")
		require.NoError(t, err)
		current, err := store.GetConversation(ctx, conv.ConversationID)
		require.NoError(t, err)
		assert.True(t, current.UpdatedAt.After(previous), "updated_at must advance")
		previous = current.UpdatedAt
	}
	messages, err := store.Messages(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Less(t, messages[0].ID, messages[1].ID)
	assert.Less(t, messages[1].ID, messages[2].ID)
}

func TestAddMessageRejectsUnknownConversationAndRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddMessage(ctx, "conv_missing", session.RoleUser, "hello")
	assert.ErrorIs(t, err, session.ErrNotFound)

	conv, err := store.CreateConversation(ctx, "t", "r")
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, conv.ConversationID, "system", "hello")
	assert.ErrorIs(t, err, session.ErrInvalid)

	messages, err := store.Messages(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestListConversationsOrdersByUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	clock := &stepClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)
	ctx := context.Background()

	first, err := store.CreateConversation(ctx, "first", "r")
	require.NoError(t, err)
	second, err := store.CreateConversation(ctx, "second", "r")
	require.NoError(t, err)

	list, err := store.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ConversationID, list[0].ConversationID)

	_, err = store.AddMessage(ctx, first.ConversationID, session.RoleUser, "bump")
	require.NoError(t, err)
	list, err = store.ListConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, list[0].ConversationID)
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "t", "r")
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, conv.ConversationID, session.RoleUser, "hello")
	require.NoError(t, err)

	require.NoError(t, store.DeleteConversation(ctx, conv.ConversationID))

	_, err = store.GetConversation(ctx, conv.ConversationID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	var count int
	require.NoError(t, store.DB().GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conv.ConversationID))
	assert.Zero(t, count)

	assert.ErrorIs(t, store.DeleteConversation(ctx, conv.ConversationID), session.ErrNotFound)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}
