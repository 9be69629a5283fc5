package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// ChatService covers inbox listing, read receipts and message edits outside a live session.
type ChatService interface {
	Inbox(ctx context.Context, userID string) ([]dto.ChatSummary, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int64, error)
	MarkRead(ctx context.Context, chatID, userID string) (int, error)
	EditMessage(ctx context.Context, chatID, messageID, userID string, req dto.EditMessageRequest) (dto.ChatMessageView, error)
	DeleteMessage(ctx context.Context, chatID, messageID, userID string) error
}

type chatService struct {
	chats     repository.ChatStore
	users     repository.UserRepository
	access    chatAccess
	bus       realtime.Bus
	cipher    MessageCipher
	validator *validator.Validate
	clock     func() time.Time
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewChatService constructs the chat maintenance service.
func NewChatService(chats repository.ChatStore, users repository.UserRepository, catalog *models.GroupCatalog, bus realtime.Bus, cipher MessageCipher, validate *validator.Validate, logger zerolog.Logger) ChatService {
	return &chatService{
		chats:     chats,
		users:     users,
		access:    chatAccess{users: users, catalog: catalog},
		bus:       bus,
		cipher:    cipher,
		validator: validate,
		clock:     time.Now,
		logger:    logger.With().Str("component", "chat_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/chat"),
	}
}

// Inbox lists the user's direct chats and joined group rooms, most recent first.
func (s *chatService) Inbox(ctx context.Context, userID string) ([]dto.ChatSummary, error) {
	ctx, span := s.tracer.Start(ctx, "chat.inbox", trace.WithAttributes(attribute.String("chat.viewer_id", userID)))
	defer span.End()

	chats, err := s.chats.ChatsForUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil && !isMissingUser(err) {
		span.RecordError(err)
		return nil, err
	}
	for _, groupID := range user.Groups {
		chatID := models.GroupChatID(groupID)
		chat, err := s.chats.GetChat(ctx, chatID)
		if errors.Is(err, repository.ErrChatNotFound) {
			chat = models.Chat{ID: chatID, Kind: models.ChatKindGroup}
		} else if err != nil {
			span.RecordError(err)
			return nil, err
		}
		chats = append(chats, chat)
	}

	counts, err := s.chats.UnreadCounts(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	summaries := make([]dto.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := dto.ChatSummary{
			ID:                  chat.ID,
			Kind:                chat.Kind,
			Participants:        chat.Participants,
			LastMessageSenderID: chat.LastMessageSenderID,
			LastMessageAt:       chat.LastMessageAt,
			Disappearing:        chat.Disappearing,
			TypingUserIDs:       chat.TypingUserIDs,
			Unread:              counts[readerField(chat, userID)],
		}
		if chat.LastMessage != "" {
			summary.LastMessage, _ = s.cipher.DecryptOrPlaceholder(chat.LastMessage)
		}
		if summary.Participants == nil {
			summary.Participants = []string{}
		}
		if summary.TypingUserIDs == nil {
			summary.TypingUserIDs = []string{}
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessageAt, summaries[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return summaries[i].ID < summaries[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return summaries, nil
}

func (s *chatService) UnreadCounts(ctx context.Context, userID string) (map[string]int64, error) {
	return s.chats.UnreadCounts(ctx, userID)
}

// MarkRead records the user as having read every message in the chat and clears their unread counter.
// It returns the number of messages that changed.
func (s *chatService) MarkRead(ctx context.Context, chatID, userID string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "chat.mark_read", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.viewer_id", userID),
	))
	defer span.End()

	chat, err := s.access.resolve(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}

	messages, err := s.chats.ListMessages(ctx, chatID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	changed := 0
	for _, listed := range messages {
		if listed.SenderID == userID || listed.ReadBy[userID] {
			continue
		}
		_, err := s.chats.UpdateMessage(ctx, chatID, listed.ID, func(message *models.ChatMessage) (bool, error) {
			if message.ReadBy[userID] {
				return false, nil
			}
			if message.ReadBy == nil {
				message.ReadBy = map[string]bool{}
			}
			message.ReadBy[userID] = true
			message.UnreadBy = removeString(message.UnreadBy, userID)
			return true, nil
		})
		if errors.Is(err, repository.ErrMessageNotFound) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return changed, storeError(err)
		}
		changed++
	}

	if err := s.chats.ResetUnread(ctx, userID, readerField(chat, userID)); err != nil {
		span.RecordError(err)
		return changed, err
	}

	if changed > 0 {
		publishChatEvent(ctx, s.bus, s.logger, ChatTopic(chatID), chatEvent{
			Type:   chatEventMessagesRead,
			ChatID: chatID,
			UserID: userID,
		})
	}
	return changed, nil
}

func (s *chatService) EditMessage(ctx context.Context, chatID, messageID, userID string, req dto.EditMessageRequest) (dto.ChatMessageView, error) {
	ctx, span := s.tracer.Start(ctx, "chat.edit_message", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.message_id", messageID),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.ChatMessageView{}, err
	}
	text, err := messageText(req.Text)
	if err != nil {
		return dto.ChatMessageView{}, err
	}

	if _, err := s.ownedMessage(ctx, chatID, messageID, userID); err != nil {
		return dto.ChatMessageView{}, err
	}

	ciphertext, err := s.cipher.Encrypt(text)
	if err != nil {
		span.RecordError(err)
		return dto.ChatMessageView{}, err
	}
	editedAt := s.clock().UTC()

	message, err := s.chats.UpdateMessage(ctx, chatID, messageID, func(message *models.ChatMessage) (bool, error) {
		message.Ciphertext = ciphertext
		message.EditedAt = &editedAt
		return true, nil
	})
	if err != nil {
		span.RecordError(err)
		return dto.ChatMessageView{}, storeError(err)
	}

	publishChatEvent(ctx, s.bus, s.logger, ChatTopic(chatID), chatEvent{
		Type:      chatEventMessageUpdated,
		ChatID:    chatID,
		MessageID: messageID,
		UserID:    userID,
	})
	return presentMessage(message, s.cipher), nil
}

func (s *chatService) DeleteMessage(ctx context.Context, chatID, messageID, userID string) error {
	ctx, span := s.tracer.Start(ctx, "chat.delete_message", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.message_id", messageID),
	))
	defer span.End()

	if _, err := s.ownedMessage(ctx, chatID, messageID, userID); err != nil {
		return err
	}
	if _, err := s.chats.DeleteMessages(ctx, chatID, messageID); err != nil {
		span.RecordError(err)
		return err
	}

	publishChatEvent(ctx, s.bus, s.logger, ChatTopic(chatID), chatEvent{
		Type:      chatEventMessageDeleted,
		ChatID:    chatID,
		MessageID: messageID,
		UserID:    userID,
	})
	return nil
}

func (s *chatService) ownedMessage(ctx context.Context, chatID, messageID, userID string) (models.ChatMessage, error) {
	if _, err := s.access.resolve(ctx, chatID, userID); err != nil {
		return models.ChatMessage{}, err
	}
	message, err := s.chats.GetMessage(ctx, chatID, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return models.ChatMessage{}, ErrMessageNotFound
		}
		return models.ChatMessage{}, err
	}
	if message.SenderID != userID {
		return models.ChatMessage{}, ErrNotMessageOwner
	}
	return message, nil
}

// storeError maps chat store sentinels onto their API errors.
func storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrMessageNotFound):
		return ErrMessageNotFound
	case errors.Is(err, repository.ErrMessageContended):
		return ErrMessageBusy
	default:
		return err
	}
}

func removeString(values []string, target string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value != target {
			out = append(out, value)
		}
	}
	return out
}
