package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

var (
	// ErrChatNotFound is returned when the chat document does not exist yet.
	ErrChatNotFound = errors.New("chat not found")
	// ErrMessageNotFound is returned when a message id is unknown within its chat.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageContended is returned when a message keeps changing while an update retries.
	ErrMessageContended = errors.New("message changed concurrently")
)

const (
	disappearingIndexKey = "chats:disappearing"
	maxUpdateAttempts    = 8
)

// MessageMutator edits a stored message in place and reports whether it changed.
type MessageMutator func(message *models.ChatMessage) (bool, error)

// ChatStore keeps chat documents, their messages, typing sets and unread counters in Redis.
type ChatStore interface {
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	EnsureChat(ctx context.Context, chat models.Chat) (models.Chat, error)
	SetDisappearing(ctx context.Context, chatID string, enabled bool) error
	HasConsented(ctx context.Context, chatID, userID string) (bool, error)
	RecordConsent(ctx context.Context, chatID, userID string) error
	UpdateLastMessage(ctx context.Context, chatID, senderID, ciphertext string, at time.Time) error

	SaveMessage(ctx context.Context, message models.ChatMessage) error
	GetMessage(ctx context.Context, chatID, messageID string) (models.ChatMessage, error)
	UpdateMessage(ctx context.Context, chatID, messageID string, mutate MessageMutator) (models.ChatMessage, error)
	ListMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error)
	DeleteMessages(ctx context.Context, chatID string, messageIDs ...string) (int64, error)

	AddTyping(ctx context.Context, chatID, userID string) error
	RemoveTyping(ctx context.Context, chatID, userID string) error
	TypingUsers(ctx context.Context, chatID string) ([]string, error)

	IncrementUnread(ctx context.Context, recipientID, field string) error
	ResetUnread(ctx context.Context, userID, field string) error
	UnreadCounts(ctx context.Context, userID string) (map[string]int64, error)

	ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	DisappearingChats(ctx context.Context) ([]string, error)
	UntrackDisappearing(ctx context.Context, chatID string) error
	PurgeUser(ctx context.Context, userID string) error
}

type redisChatStore struct {
	client *redis.Client
}

// NewChatStore constructs a Redis-backed chat store.
func NewChatStore(client *redis.Client) ChatStore {
	return &redisChatStore{client: client}
}

func chatKey(chatID string) string         { return "chats:" + chatID }
func chatTypingKey(chatID string) string   { return "chats:" + chatID + ":typing" }
func chatMessagesKey(chatID string) string { return "chats:" + chatID + ":messages" }
func unreadKey(userID string) string       { return "unreadCounts:" + userID }
func inboxKey(userID string) string        { return "users:" + userID + ":chats" }
func consentField(userID string) string    { return "consent:" + userID }

func (s *redisChatStore) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	fields, err := s.client.HGetAll(ctx, chatKey(chatID)).Result()
	if err != nil {
		return models.Chat{}, err
	}
	if len(fields) == 0 {
		return models.Chat{}, ErrChatNotFound
	}

	chat, err := decodeChat(chatID, fields)
	if err != nil {
		return models.Chat{}, err
	}

	typing, err := s.TypingUsers(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	chat.TypingUserIDs = typing
	return chat, nil
}

func decodeChat(chatID string, fields map[string]string) (models.Chat, error) {
	chat := models.Chat{
		ID:                  chatID,
		Kind:                fields["kind"],
		LastMessage:         fields["lastMessage"],
		LastMessageSenderID: fields["lastMessageSenderId"],
		Disappearing:        fields["disappearing"] == "1",
	}
	if raw := fields["participants"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &chat.Participants); err != nil {
			return models.Chat{}, fmt.Errorf("decode chat participants: %w", err)
		}
	}
	if raw := fields["lastMessageAt"]; raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return models.Chat{}, fmt.Errorf("decode chat timestamp: %w", err)
		}
		chat.LastMessageAt = &at
	}
	return chat, nil
}

// EnsureChat creates the chat document on first use; an existing document is left untouched.
func (s *redisChatStore) EnsureChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	participants, err := json.Marshal(chat.Participants)
	if err != nil {
		return models.Chat{}, err
	}

	key := chatKey(chat.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "id", chat.ID)
		pipe.HSetNX(ctx, key, "kind", chat.Kind)
		pipe.HSetNX(ctx, key, "participants", string(participants))
		pipe.HSetNX(ctx, key, "disappearing", "0")
		if chat.Kind == models.ChatKindDirect {
			for _, participant := range chat.Participants {
				pipe.SAdd(ctx, inboxKey(participant), chat.ID)
			}
		}
		return nil
	})
	if err != nil {
		return models.Chat{}, err
	}
	return s.GetChat(ctx, chat.ID)
}

func (s *redisChatStore) SetDisappearing(ctx context.Context, chatID string, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return s.client.HSet(ctx, chatKey(chatID), "disappearing", value).Err()
}

func (s *redisChatStore) HasConsented(ctx context.Context, chatID, userID string) (bool, error) {
	return s.client.HExists(ctx, chatKey(chatID), consentField(userID)).Result()
}

func (s *redisChatStore) RecordConsent(ctx context.Context, chatID, userID string) error {
	return s.client.HSet(ctx, chatKey(chatID), consentField(userID), time.Now().UTC().Format(time.RFC3339)).Err()
}

func (s *redisChatStore) UpdateLastMessage(ctx context.Context, chatID, senderID, ciphertext string, at time.Time) error {
	return s.client.HSet(ctx, chatKey(chatID),
		"lastMessage", ciphertext,
		"lastMessageSenderId", senderID,
		"lastMessageAt", at.UTC().Format(time.RFC3339Nano),
	).Err()
}

func (s *redisChatStore) SaveMessage(ctx context.Context, message models.ChatMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, chatMessagesKey(message.ChatID), message.ID, payload)
		if message.ExpiresAt != nil {
			pipe.SAdd(ctx, disappearingIndexKey, message.ChatID)
		}
		return nil
	})
	return err
}

func (s *redisChatStore) GetMessage(ctx context.Context, chatID, messageID string) (models.ChatMessage, error) {
	raw, err := s.client.HGet(ctx, chatMessagesKey(chatID), messageID).Result()
	if errors.Is(err, redis.Nil) {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	if err != nil {
		return models.ChatMessage{}, err
	}

	var message models.ChatMessage
	if err := json.Unmarshal([]byte(raw), &message); err != nil {
		return models.ChatMessage{}, fmt.Errorf("decode message %s: %w", messageID, err)
	}
	return message, nil
}

// UpdateMessage applies mutate to the current copy of a message under WATCH and
// writes it back in a MULTI block. The transaction is retried when the messages
// hash changes first. A message removed in the meantime is reported as missing
// and never written back.
func (s *redisChatStore) UpdateMessage(ctx context.Context, chatID, messageID string, mutate MessageMutator) (models.ChatMessage, error) {
	key := chatMessagesKey(chatID)
	var updated models.ChatMessage

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, messageID).Result()
		if errors.Is(err, redis.Nil) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}

		var message models.ChatMessage
		if err := json.Unmarshal([]byte(raw), &message); err != nil {
			return fmt.Errorf("decode message %s: %w", messageID, err)
		}
		changed, err := mutate(&message)
		if err != nil {
			return err
		}
		updated = message
		if !changed {
			return nil
		}

		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", messageID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, messageID, payload)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return models.ChatMessage{}, err
		}
		return updated, nil
	}
	return models.ChatMessage{}, ErrMessageContended
}

// ListMessages returns every stored message ordered oldest first. Undecodable entries are skipped.
func (s *redisChatStore) ListMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	entries, err := s.client.HGetAll(ctx, chatMessagesKey(chatID)).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(entries))
	for _, raw := range entries {
		var message models.ChatMessage
		if err := json.Unmarshal([]byte(raw), &message); err != nil {
			continue
		}
		messages = append(messages, message)
	}
	models.SortMessages(messages)
	return messages, nil
}

func (s *redisChatStore) DeleteMessages(ctx context.Context, chatID string, messageIDs ...string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	return s.client.HDel(ctx, chatMessagesKey(chatID), messageIDs...).Result()
}

func (s *redisChatStore) AddTyping(ctx context.Context, chatID, userID string) error {
	return s.client.SAdd(ctx, chatTypingKey(chatID), userID).Err()
}

func (s *redisChatStore) RemoveTyping(ctx context.Context, chatID, userID string) error {
	return s.client.SRem(ctx, chatTypingKey(chatID), userID).Err()
}

func (s *redisChatStore) TypingUsers(ctx context.Context, chatID string) ([]string, error) {
	return s.client.SMembers(ctx, chatTypingKey(chatID)).Result()
}

func (s *redisChatStore) IncrementUnread(ctx context.Context, recipientID, field string) error {
	return s.client.HIncrBy(ctx, unreadKey(recipientID), field, 1).Err()
}

func (s *redisChatStore) ResetUnread(ctx context.Context, userID, field string) error {
	return s.client.HDel(ctx, unreadKey(userID), field).Err()
}

func (s *redisChatStore) UnreadCounts(ctx context.Context, userID string) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, unreadKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(raw))
	for field, value := range raw {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[field] = parsed
	}
	return counts, nil
}

func (s *redisChatStore) ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	ids, err := s.client.SMembers(ctx, inboxKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.GetChat(ctx, id)
		if errors.Is(err, ErrChatNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (s *redisChatStore) DisappearingChats(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, disappearingIndexKey).Result()
}

func (s *redisChatStore) UntrackDisappearing(ctx context.Context, chatID string) error {
	return s.client.SRem(ctx, disappearingIndexKey, chatID).Err()
}

// PurgeUser drops the user's inbox index and unread counters.
func (s *redisChatStore) PurgeUser(ctx context.Context, userID string) error {
	return s.client.Del(ctx, inboxKey(userID), unreadKey(userID)).Err()
}
