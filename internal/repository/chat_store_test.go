package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

func TestChatStoreEnsureChatCreatesOnce(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewChatStore(client)
	ctx := context.Background()

	_, err := store.GetChat(ctx, "a_b")
	require.ErrorIs(t, err, ErrChatNotFound)

	chat, err := store.EnsureChat(ctx, models.Chat{ID: "a_b", Kind: models.ChatKindDirect, Participants: []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, chat.Participants)
	require.False(t, chat.Disappearing)

	require.NoError(t, store.SetDisappearing(ctx, "a_b", true))
	chat, err = store.EnsureChat(ctx, models.Chat{ID: "a_b", Kind: models.ChatKindDirect, Participants: []string{"a", "b"}})
	require.NoError(t, err)
	require.True(t, chat.Disappearing, "ensure must not reset an existing chat")

	inbox, err := store.ChatsForUser(ctx, "b")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, "a_b", inbox[0].ID)
}

func TestChatStoreMessagesAreOrderedAndIndexed(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewChatStore(client)
	ctx := context.Background()

	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	require.NoError(t, store.SaveMessage(ctx, models.ChatMessage{ID: "m2", ChatID: "a_b", SenderID: "a", Ciphertext: "x", Timestamp: now}))
	require.NoError(t, store.SaveMessage(ctx, models.ChatMessage{ID: "m1", ChatID: "a_b", SenderID: "b", Ciphertext: "y", Timestamp: now.Add(-time.Minute), ExpiresAt: &expires}))

	messages, err := store.ListMessages(ctx, "a_b")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "m1", messages[0].ID)
	require.Equal(t, "m2", messages[1].ID)

	indexed, err := store.DisappearingChats(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a_b"}, indexed)

	deleted, err := store.DeleteMessages(ctx, "a_b", "m1")
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = store.GetMessage(ctx, "a_b", "m1")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestChatStoreTypingAndUnread(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewChatStore(client)
	ctx := context.Background()

	require.NoError(t, store.AddTyping(ctx, "a_b", "a"))
	require.NoError(t, store.AddTyping(ctx, "a_b", "a"))
	typing, err := store.TypingUsers(ctx, "a_b")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, typing)
	require.NoError(t, store.RemoveTyping(ctx, "a_b", "a"))
	typing, err = store.TypingUsers(ctx, "a_b")
	require.NoError(t, err)
	require.Empty(t, typing)

	require.NoError(t, store.IncrementUnread(ctx, "b", "a"))
	require.NoError(t, store.IncrementUnread(ctx, "b", "a"))
	counts, err := store.UnreadCounts(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, int64(2), counts["a"])

	require.NoError(t, store.ResetUnread(ctx, "b", "a"))
	counts, err = store.UnreadCounts(ctx, "b")
	require.NoError(t, err)
	require.Empty(t, counts)
}

func TestChatStoreConsentMarkers(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewChatStore(client)
	ctx := context.Background()

	_, err := store.EnsureChat(ctx, models.Chat{ID: "a_b", Kind: models.ChatKindDirect, Participants: []string{"a", "b"}})
	require.NoError(t, err)

	ok, err := store.HasConsented(ctx, "a_b", "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.RecordConsent(ctx, "a_b", "a"))
	ok, err = store.HasConsented(ctx, "a_b", "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestChatStoreUpdateMessageRetriesOnConcurrentWrite(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewChatStore(client)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.SaveMessage(ctx, models.ChatMessage{ID: "m1", ChatID: "a_b", SenderID: "a", Ciphertext: "old", Timestamp: now, UnreadBy: []string{"b"}}))

	attempts := 0
	updated, err := store.UpdateMessage(ctx, "a_b", "m1", func(message *models.ChatMessage) (bool, error) {
		attempts++
		if attempts == 1 {
			edited := *message
			edited.Ciphertext = "new"
			require.NoError(t, store.SaveMessage(ctx, edited))
		}
		message.ReadBy = map[string]bool{"b": true}
		message.UnreadBy = nil
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, "new", updated.Ciphertext)

	stored, err := store.GetMessage(ctx, "a_b", "m1")
	require.NoError(t, err)
	require.Equal(t, "new", stored.Ciphertext, "the concurrent edit must survive")
	require.True(t, stored.ReadBy["b"])
}

func TestChatStoreUpdateMessageDoesNotResurrect(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewChatStore(client)
	ctx := context.Background()

	_, err := store.UpdateMessage(ctx, "a_b", "missing", func(*models.ChatMessage) (bool, error) {
		t.Fatal("mutator must not run for a missing message")
		return false, nil
	})
	require.ErrorIs(t, err, ErrMessageNotFound)

	require.NoError(t, store.SaveMessage(ctx, models.ChatMessage{ID: "m1", ChatID: "a_b", SenderID: "a", Ciphertext: "x", Timestamp: time.Now().UTC()}))
	_, err = store.UpdateMessage(ctx, "a_b", "m1", func(message *models.ChatMessage) (bool, error) {
		_, err := store.DeleteMessages(ctx, "a_b", "m1")
		require.NoError(t, err)
		message.Ciphertext = "edited"
		return true, nil
	})
	require.ErrorIs(t, err, ErrMessageNotFound)

	_, err = store.GetMessage(ctx, "a_b", "m1")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestChatStoreUpdateMessageGivesUpUnderContention(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewChatStore(client)
	ctx := context.Background()

	base := models.ChatMessage{ID: "m1", ChatID: "a_b", SenderID: "a", Ciphertext: "x", Timestamp: time.Now().UTC()}
	require.NoError(t, store.SaveMessage(ctx, base))

	_, err := store.UpdateMessage(ctx, "a_b", "m1", func(message *models.ChatMessage) (bool, error) {
		require.NoError(t, store.SaveMessage(ctx, base))
		message.Ciphertext = "lost"
		return true, nil
	})
	require.ErrorIs(t, err, ErrMessageContended)

	stored, err := store.GetMessage(ctx, "a_b", "m1")
	require.NoError(t, err)
	require.Equal(t, "x", stored.Ciphertext)
}
