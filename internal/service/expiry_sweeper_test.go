package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

func TestExpirySweeperRemovesExpiredAndUntracksIdleChats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chatID := models.DirectChatID("alice", "bob")
	now := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	soon := now.Add(-time.Second)
	later := now.Add(time.Hour)
	for _, message := range []models.ChatMessage{
		{ID: "gone", ChatID: chatID, SenderID: "alice", Ciphertext: "x", Timestamp: now.Add(-time.Hour), ExpiresAt: &soon},
		{ID: "pending", ChatID: chatID, SenderID: "bob", Ciphertext: "y", Timestamp: now.Add(-time.Minute), ExpiresAt: &later},
		{ID: "kept", ChatID: chatID, SenderID: "bob", Ciphertext: "z", Timestamp: now.Add(-2 * time.Hour)},
	} {
		require.NoError(t, env.chats.SaveMessage(ctx, message))
	}

	events, cancel, err := env.bus.Subscribe(ctx, ChatTopic(chatID))
	require.NoError(t, err)
	defer cancel()

	sweeper := NewExpirySweeper(env.chats, env.bus, time.Minute, testLogger())
	sweeper.clock = func() time.Time { return now }

	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("expected deletion event")
	}

	tracked, err := env.chats.DisappearingChats(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{chatID}, tracked)

	sweeper.clock = func() time.Time { return later.Add(time.Second) }
	removed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	messages, err := env.chats.ListMessages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "kept", messages[0].ID)

	tracked, err = env.chats.DisappearingChats(ctx)
	require.NoError(t, err)
	require.Empty(t, tracked)

	removed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestExpirySweeperRunStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	sweeper := NewExpirySweeper(env.chats, env.bus, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
