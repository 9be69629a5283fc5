package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/cipher"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// gatedChatStore blocks message loads until the gate is opened.
type gatedChatStore struct {
	repository.ChatStore
	gate chan struct{}
}

func (s *gatedChatStore) ListMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	select {
	case <-s.gate:
		return s.ChatStore.ListMessages(ctx, chatID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func nextUpdate(t *testing.T, session *ChatSession) ChatUpdate {
	t.Helper()
	select {
	case update, ok := <-session.Updates():
		require.True(t, ok, "session updates closed")
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat update")
	}
	return ChatUpdate{}
}

func TestChatSessionWatchdogFailsAfterTenSecondsThenRetries(t *testing.T) {
	env := newTestEnv(t)
	store := &gatedChatStore{ChatStore: env.chats, gate: make(chan struct{})}

	armed := make(chan time.Duration, 4)
	fire := make(chan time.Time, 1)
	after := func(d time.Duration) <-chan time.Time {
		armed <- d
		return fire
	}

	svc := NewChatSyncService(store, env.users, env.catalog, env.bus, env.cipher, ChatSyncOptions{After: after}, testLogger())
	session, err := svc.Open(context.Background(), models.DirectChatID("alice", "bob"), "alice")
	require.NoError(t, err)
	defer session.Close()

	require.Equal(t, ChatStateLoading, nextUpdate(t, session).State)
	require.Equal(t, 10*time.Second, <-armed)

	fire <- time.Now()
	failed := nextUpdate(t, session)
	require.Equal(t, ChatStateError, failed.State)
	require.ErrorIs(t, failed.Err, ErrChatTimeout)
	require.Equal(t, ChatStateError, session.State())

	close(store.gate)
	require.NoError(t, session.Retry())
	require.Equal(t, ChatStateLoading, nextUpdate(t, session).State)

	ready := nextUpdate(t, session)
	require.Equal(t, ChatStateReady, ready.State)
	require.NoError(t, ready.Err)
	require.Empty(t, ready.Messages)
	require.Equal(t, ChatStateReady, session.State())
	require.Len(t, armed, 1)
}

func TestChatSessionDecryptsOrdersAndHidesExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chatID := models.DirectChatID("alice", "bob")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sealed, err := env.cipher.Encrypt("hello bob")
	require.NoError(t, err)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	for _, message := range []models.ChatMessage{
		{ID: "m2", ChatID: chatID, SenderID: "bob", Ciphertext: "not-a-valid-payload", Timestamp: now.Add(-2 * time.Minute)},
		{ID: "m1", ChatID: chatID, SenderID: "alice", Ciphertext: sealed, Timestamp: now.Add(-3 * time.Minute), ExpiresAt: &future},
		{ID: "m0", ChatID: chatID, SenderID: "alice", Ciphertext: sealed, Timestamp: now.Add(-4 * time.Minute), ExpiresAt: &past},
		{ID: "m3", ChatID: chatID, SenderID: "bob", Ciphertext: sealed, Timestamp: now.Add(-time.Minute),
			ReplyTo: &models.ReplyRef{ID: "m2", SenderID: "bob", Ciphertext: "garbage"}},
	} {
		require.NoError(t, env.chats.SaveMessage(ctx, message))
	}

	svc := NewChatSyncService(env.chats, env.users, env.catalog, env.bus, env.cipher, ChatSyncOptions{
		Clock: func() time.Time { return now },
	}, testLogger())
	session, err := svc.Open(ctx, chatID, "bob")
	require.NoError(t, err)
	defer session.Close()

	require.Equal(t, ChatStateLoading, nextUpdate(t, session).State)
	ready := nextUpdate(t, session)
	require.Equal(t, ChatStateReady, ready.State)
	require.Len(t, ready.Messages, 3)

	require.Equal(t, "m1", ready.Messages[0].ID)
	require.Equal(t, "hello bob", ready.Messages[0].Text)
	require.True(t, ready.Messages[0].Decrypted)

	require.Equal(t, "m2", ready.Messages[1].ID)
	require.Equal(t, cipher.Placeholder, ready.Messages[1].Text)
	require.False(t, ready.Messages[1].Decrypted)

	require.Equal(t, "m3", ready.Messages[2].ID)
	require.NotNil(t, ready.Messages[2].ReplyTo)
	require.Equal(t, cipher.Placeholder, ready.Messages[2].ReplyTo.Text)

	require.NoError(t, env.chats.SaveMessage(ctx, models.ChatMessage{ID: "m4", ChatID: chatID, SenderID: "alice", Ciphertext: sealed, Timestamp: now}))
	require.NoError(t, env.bus.Publish(ctx, ChatTopic(chatID), []byte(`{"type":"message.created"}`)))

	changed := nextUpdate(t, session)
	require.Equal(t, ChatStateReady, changed.State)
	require.Len(t, changed.Messages, 4)
	require.Equal(t, "m4", changed.Messages[3].ID)
}

func TestChatSessionRetryAndClose(t *testing.T) {
	env := newTestEnv(t)
	svc := NewChatSyncService(env.chats, env.users, env.catalog, env.bus, env.cipher, ChatSyncOptions{}, testLogger())
	chatID := models.DirectChatID("alice", "bob")

	session, err := svc.Open(context.Background(), chatID, "alice")
	require.NoError(t, err)

	require.Equal(t, ChatStateLoading, nextUpdate(t, session).State)
	require.Equal(t, ChatStateReady, nextUpdate(t, session).State)
	require.ErrorIs(t, session.Retry(), ErrNotRetryable)

	session.Close()
	session.Close()
	require.Equal(t, ChatStateClosed, session.State())
	require.ErrorIs(t, session.Retry(), ErrSessionClosed)
	_, open := <-session.Updates()
	require.False(t, open)
	require.Eventually(t, func() bool { return env.bus.Subscribers(ChatTopic(chatID)) == 0 }, time.Second, 10*time.Millisecond)
}

func TestChatSyncOpenChecksAccess(t *testing.T) {
	env := newTestEnv(t)
	svc := NewChatSyncService(env.chats, env.users, env.catalog, env.bus, env.cipher, ChatSyncOptions{}, testLogger())
	ctx := context.Background()

	_, err := svc.Open(ctx, models.DirectChatID("alice", "bob"), "mallory")
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.Open(ctx, "nonsense", "alice")
	require.ErrorIs(t, err, ErrInvalidChat)

	_, err = svc.Open(ctx, models.GroupChatID("unknown-group"), "alice")
	require.ErrorIs(t, err, ErrUnknownGroup)

	env.createUser(t, models.User{ID: "alice"})
	_, err = svc.Open(ctx, models.GroupChatID("coding"), "alice")
	require.ErrorIs(t, err, ErrNotMember)

	feed, err := svc.WatchTyping(ctx, models.DirectChatID("alice", "bob"), "bob")
	require.NoError(t, err)
	require.Equal(t, TypingTopic(models.DirectChatID("alice", "bob")), feed.Topic())
}
