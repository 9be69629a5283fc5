package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/observability"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// MessageCipher encrypts chat text with the shared message key.
type MessageCipher interface {
	Encrypt(plaintext string) (string, error)
	DecryptOrPlaceholder(ciphertext string) (string, bool)
}

// Chat change event types published on a chat topic.
const (
	chatEventMessageCreated = "message.created"
	chatEventMessageUpdated = "message.updated"
	chatEventMessageDeleted = "message.deleted"
	chatEventMessagesRead   = "messages.read"
	chatEventChatUpdated    = "chat.updated"
	chatEventTyping         = "typing"
)

type chatEvent struct {
	Type      string    `json:"type"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
}

// ChatTopic is the bus topic carrying message changes for a chat.
func ChatTopic(chatID string) string {
	return realtime.Topic("chats", chatID)
}

// TypingTopic is the bus topic carrying typing-set changes for a chat.
func TypingTopic(chatID string) string {
	return realtime.Topic("chats", chatID, "typing")
}

func publishChatEvent(ctx context.Context, bus realtime.Bus, logger zerolog.Logger, topic string, event chatEvent) {
	if bus == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to marshal chat event")
		return
	}
	if err := bus.Publish(ctx, topic, payload); err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("failed to publish chat event")
	}
}

// chatAccess resolves chat ids and checks who may use them.
type chatAccess struct {
	users   repository.UserRepository
	catalog *models.GroupCatalog
}

// resolve returns the chat descriptor for chatID if userID may read and write it.
func (a chatAccess) resolve(ctx context.Context, chatID, userID string) (models.Chat, error) {
	if groupID, ok := models.GroupIDFromChatID(chatID); ok {
		return a.group(ctx, groupID, userID)
	}

	first, second, ok := models.ParseDirectChatID(chatID)
	if !ok {
		return models.Chat{}, ErrInvalidChat
	}
	if userID != first && userID != second {
		return models.Chat{}, ErrNotParticipant
	}
	return models.Chat{ID: chatID, Kind: models.ChatKindDirect, Participants: []string{first, second}}, nil
}

func (a chatAccess) group(ctx context.Context, groupID, userID string) (models.Chat, error) {
	if _, ok := a.catalog.Lookup(groupID); !ok {
		return models.Chat{}, ErrUnknownGroup
	}
	user, err := a.users.Get(ctx, userID)
	if err != nil {
		if isMissingUser(err) {
			return models.Chat{}, ErrNotMember
		}
		return models.Chat{}, err
	}
	if !user.InGroup(groupID) {
		return models.Chat{}, ErrNotMember
	}
	return models.Chat{ID: models.GroupChatID(groupID), Kind: models.ChatKindGroup}, nil
}

// isMissingUser reports whether err means the user row does not exist.
func isMissingUser(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func counterpart(chat models.Chat, userID string) string {
	for _, participant := range chat.Participants {
		if participant != userID {
			return participant
		}
	}
	return ""
}

// unreadField names the unread counter a message from senderID increments for its recipients.
func unreadField(chat models.Chat, senderID string) string {
	if chat.Kind == models.ChatKindGroup {
		return chat.ID
	}
	return senderID
}

// readerField names the unread counter that readerID clears when reading chat.
func readerField(chat models.Chat, readerID string) string {
	if chat.Kind == models.ChatKindGroup {
		return chat.ID
	}
	return counterpart(chat, readerID)
}

// presentMessages drops expired messages and decrypts the rest.
func presentMessages(messages []models.ChatMessage, cipher MessageCipher, now time.Time) []dto.ChatMessageView {
	views := make([]dto.ChatMessageView, 0, len(messages))
	for _, message := range messages {
		if message.Expired(now) {
			continue
		}
		views = append(views, presentMessage(message, cipher))
	}
	return views
}

func presentMessage(message models.ChatMessage, cipher MessageCipher) dto.ChatMessageView {
	text, ok := cipher.DecryptOrPlaceholder(message.Ciphertext)
	if !ok {
		observability.ChatDecryptFailures().Inc()
	}
	view := dto.ChatMessageView{
		ID:        message.ID,
		ChatID:    message.ChatID,
		SenderID:  message.SenderID,
		Text:      text,
		Decrypted: ok,
		Timestamp: message.Timestamp,
		ReadBy:    message.ReadBy,
		UnreadBy:  message.UnreadBy,
		ExpiresAt: message.ExpiresAt,
		EditedAt:  message.EditedAt,
	}
	if view.ReadBy == nil {
		view.ReadBy = map[string]bool{}
	}
	if view.UnreadBy == nil {
		view.UnreadBy = []string{}
	}
	if message.ReplyTo != nil {
		replyText, _ := cipher.DecryptOrPlaceholder(message.ReplyTo.Ciphertext)
		view.ReplyTo = &dto.ReplyView{ID: message.ReplyTo.ID, SenderID: message.ReplyTo.SenderID, Text: replyText}
	}
	return view
}

// messageText trims chat text and rejects what clients cannot render. The text
// is stored encrypted and shown verbatim, so it is never HTML-escaped.
func messageText(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", ErrInvalidMessageText
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyMessage
	}
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return "", ErrInvalidMessageText
		}
	}
	return text, nil
}
