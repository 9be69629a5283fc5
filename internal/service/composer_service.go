package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/observability"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

const (
	// DefaultTypingTimeout is how long a typing marker survives without new input.
	DefaultTypingTimeout = 3 * time.Second
	// DefaultMessageTTL is the lifetime of messages sent while disappearing mode is on.
	DefaultMessageTTL = 24 * time.Hour
)

// ActivityRecorder records a day of activity for streak tracking.
type ActivityRecorder interface {
	Record(ctx context.Context, userID string) (dto.StreakResponse, error)
}

// PushNotifier delivers a push message to a user's registered device.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string) error
}

// ComposerOptions tunes composer timing.
type ComposerOptions struct {
	TypingTimeout time.Duration
	MessageTTL    time.Duration
	Clock         func() time.Time
}

// ComposerService opens per-screen composers for direct and group chats.
type ComposerService interface {
	OpenDirect(ctx context.Context, userID, counterpartID string) (*Composer, error)
	OpenGroup(ctx context.Context, userID, groupID string) (*Composer, error)
	Open(ctx context.Context, chatID, userID string) (*Composer, error)
}

type composerService struct {
	chats     repository.ChatStore
	users     repository.UserRepository
	mirror    repository.MembershipMirror
	access    chatAccess
	bus       realtime.Bus
	cipher    MessageCipher
	streaks   ActivityRecorder
	push      PushNotifier
	validator *validator.Validate
	opts      ComposerOptions
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewComposerService constructs the composer service. streaks and push may be nil.
func NewComposerService(
	chats repository.ChatStore,
	users repository.UserRepository,
	mirror repository.MembershipMirror,
	catalog *models.GroupCatalog,
	bus realtime.Bus,
	cipher MessageCipher,
	streaks ActivityRecorder,
	push PushNotifier,
	validate *validator.Validate,
	opts ComposerOptions,
	logger zerolog.Logger,
) ComposerService {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = DefaultTypingTimeout
	}
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = DefaultMessageTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &composerService{
		chats:     chats,
		users:     users,
		mirror:    mirror,
		access:    chatAccess{users: users, catalog: catalog},
		bus:       bus,
		cipher:    cipher,
		streaks:   streaks,
		push:      push,
		validator: validate,
		opts:      opts,
		logger:    logger.With().Str("component", "composer_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/composer"),
	}
}

func (s *composerService) OpenDirect(ctx context.Context, userID, counterpartID string) (*Composer, error) {
	userID = strings.TrimSpace(userID)
	counterpartID = strings.TrimSpace(counterpartID)
	if userID == "" || counterpartID == "" || strings.Contains(userID, "_") || strings.Contains(counterpartID, "_") {
		return nil, ErrInvalidChat
	}
	if userID == counterpartID {
		return nil, ErrSelfChat
	}
	return s.Open(ctx, models.DirectChatID(userID, counterpartID), userID)
}

func (s *composerService) OpenGroup(ctx context.Context, userID, groupID string) (*Composer, error) {
	return s.Open(ctx, models.GroupChatID(groupID), userID)
}

// Open returns a composer for an existing chat id after checking access.
func (s *composerService) Open(ctx context.Context, chatID, userID string) (*Composer, error) {
	chat, err := s.access.resolve(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return &Composer{
		svc:    s,
		chat:   chat,
		userID: userID,
		logger: s.logger.With().Str("chat_id", chat.ID).Str("user_id", userID).Logger(),
	}, nil
}

// Composer is one user's input surface for one chat. It serialises sends and owns the typing marker.
type Composer struct {
	svc    *composerService
	chat   models.Chat
	userID string
	logger zerolog.Logger

	mu          sync.Mutex
	sending     bool
	closed      bool
	typing      bool
	typingTimer *time.Timer
	typingGen   uint64

	// markMu serialises typing marker writes; marked is what the store holds.
	markMu sync.Mutex
	marked bool
}

// ChatID returns the chat this composer writes to.
func (c *Composer) ChatID() string { return c.chat.ID }

// SendRequest is the input of Composer.Send.
type SendRequest struct {
	Text      string `validate:"required,max=4000"`
	ReplyToID string `validate:"omitempty,max=64"`
}

// Send encrypts and stores a message, then fans it out to the chat's recipients.
func (c *Composer) Send(ctx context.Context, req SendRequest) (dto.ChatMessageView, error) {
	if err := c.beginSend(); err != nil {
		return dto.ChatMessageView{}, err
	}
	defer c.endSend()

	s := c.svc
	attrs := []attribute.KeyValue{
		attribute.String("chat.id", c.chat.ID),
		attribute.String("chat.kind", c.chat.Kind),
		attribute.String("chat.sender_id", c.userID),
	}
	ctx, span := s.tracer.Start(ctx, "composer.send", trace.WithAttributes(attrs...))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.ChatMessageView{}, err
	}
	text, err := messageText(req.Text)
	if err != nil {
		return dto.ChatMessageView{}, err
	}

	recipients, err := c.recipients(ctx)
	if err != nil {
		span.RecordError(err)
		return dto.ChatMessageView{}, err
	}

	ciphertext, err := s.cipher.Encrypt(text)
	if err != nil {
		span.RecordError(err)
		return dto.ChatMessageView{}, err
	}

	chat, err := s.chats.EnsureChat(ctx, c.chat)
	if err != nil {
		span.RecordError(err)
		return dto.ChatMessageView{}, err
	}

	now := s.opts.Clock().UTC()
	message := models.ChatMessage{
		ID:         uuid.NewString(),
		ChatID:     chat.ID,
		SenderID:   c.userID,
		Ciphertext: ciphertext,
		Timestamp:  now,
		ReadBy:     map[string]bool{c.userID: true},
		UnreadBy:   recipients,
	}
	if chat.Disappearing {
		expires := now.Add(s.opts.MessageTTL)
		message.ExpiresAt = &expires
	}

	if replyID := strings.TrimSpace(req.ReplyToID); replyID != "" {
		target, err := s.chats.GetMessage(ctx, chat.ID, replyID)
		if err != nil {
			if errors.Is(err, repository.ErrMessageNotFound) {
				return dto.ChatMessageView{}, ErrReplyTargetMissing
			}
			span.RecordError(err)
			return dto.ChatMessageView{}, err
		}
		message.ReplyTo = &models.ReplyRef{ID: target.ID, SenderID: target.SenderID, Ciphertext: target.Ciphertext}
	}

	if err := s.chats.SaveMessage(ctx, message); err != nil {
		span.RecordError(err)
		return dto.ChatMessageView{}, err
	}
	if err := s.chats.UpdateLastMessage(ctx, chat.ID, c.userID, ciphertext, now); err != nil {
		c.logger.Warn().Err(err).Msg("failed to update chat last message")
	}

	field := unreadField(c.chat, c.userID)
	for _, recipient := range recipients {
		if err := s.chats.IncrementUnread(ctx, recipient, field); err != nil {
			c.logger.Warn().Err(err).Str("recipient_id", recipient).Msg("failed to increment unread counter")
		}
	}

	publishChatEvent(ctx, s.bus, c.logger, ChatTopic(chat.ID), chatEvent{
		Type:      chatEventMessageCreated,
		ChatID:    chat.ID,
		MessageID: message.ID,
		UserID:    c.userID,
		At:        now,
	})
	observability.ChatMessagesSent().WithLabelValues(c.chat.Kind).Inc()

	c.stopTyping(ctx)
	c.afterSend(ctx, text, recipients)

	return presentMessage(message, s.cipher), nil
}

func (c *Composer) beginSend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrComposerClosed
	}
	if c.sending {
		return ErrSendInFlight
	}
	c.sending = true
	return nil
}

func (c *Composer) endSend() {
	c.mu.Lock()
	c.sending = false
	c.mu.Unlock()
}

// recipients enforces block state and membership, then lists who should see the message as unread.
func (c *Composer) recipients(ctx context.Context) ([]string, error) {
	s := c.svc
	if c.chat.Kind == models.ChatKindGroup {
		groupID, _ := models.GroupIDFromChatID(c.chat.ID)
		if _, err := s.access.group(ctx, groupID, c.userID); err != nil {
			return nil, err
		}
		members, err := s.mirror.Members(ctx, groupID)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(members))
		for _, member := range members {
			if member != c.userID {
				out = append(out, member)
			}
		}
		return out, nil
	}

	other := counterpart(c.chat, c.userID)
	users, err := s.users.GetMany(ctx, []string{c.userID, other})
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if (user.ID == c.userID && user.HasBlocked(other)) || (user.ID == other && user.HasBlocked(c.userID)) {
			return nil, ErrChatBlocked
		}
	}
	return []string{other}, nil
}

func (c *Composer) afterSend(ctx context.Context, text string, recipients []string) {
	s := c.svc
	if s.streaks != nil {
		if _, err := s.streaks.Record(ctx, c.userID); err != nil {
			c.logger.Warn().Err(err).Msg("failed to record streak")
		}
	}
	if s.push == nil {
		return
	}

	title := "New message"
	if c.chat.Kind == models.ChatKindGroup {
		groupID, _ := models.GroupIDFromChatID(c.chat.ID)
		if group, ok := s.access.catalog.Lookup(groupID); ok {
			title = group.Name
		}
	} else if sender, err := s.users.Get(ctx, c.userID); err == nil && sender.DisplayName != "" {
		title = sender.DisplayName
	}
	data := map[string]string{"chatId": c.chat.ID, "senderId": c.userID}
	for _, recipient := range recipients {
		if err := s.push.Notify(ctx, recipient, title, text, data); err != nil {
			c.logger.Debug().Err(err).Str("recipient_id", recipient).Msg("chat push skipped")
		}
	}
}

// Input reports the current draft. Non-empty text marks the user as typing until
// the typing timeout elapses without further input; empty text clears it at once.
func (c *Composer) Input(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		c.stopTyping(ctx)
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrComposerClosed
	}
	c.typingGen++
	gen := c.typingGen
	c.typing = true
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.svc.opts.TypingTimeout, func() {
		c.expireTyping(gen)
	})
	c.mu.Unlock()

	return c.syncTyping(ctx, false)
}

func (c *Composer) expireTyping(gen uint64) {
	c.mu.Lock()
	if gen != c.typingGen || !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.typingTimer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.syncTyping(ctx, false); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear typing marker")
	}
}

func (c *Composer) stopTyping(ctx context.Context) {
	c.mu.Lock()
	c.typingGen++
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typing = false
	c.mu.Unlock()

	if err := c.syncTyping(ctx, true); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear typing marker")
	}
}

// syncTyping brings the stored marker in line with the latest typing state.
// The state is read under markMu, so a removal decided before a newer Input
// finds typing set again and leaves the marker alone. force removes the
// marker even when this composer never wrote it.
func (c *Composer) syncTyping(ctx context.Context, force bool) error {
	c.markMu.Lock()
	defer c.markMu.Unlock()

	c.mu.Lock()
	want := c.typing
	c.mu.Unlock()

	switch {
	case want && !c.marked:
		if err := c.svc.chats.AddTyping(ctx, c.chat.ID, c.userID); err != nil {
			return err
		}
		c.marked = true
	case !want && (c.marked || force):
		if err := c.svc.chats.RemoveTyping(ctx, c.chat.ID, c.userID); err != nil {
			return err
		}
		c.marked = false
	default:
		return nil
	}
	c.publishTyping(ctx)
	return nil
}

func (c *Composer) publishTyping(ctx context.Context) {
	publishChatEvent(ctx, c.svc.bus, c.logger, TypingTopic(c.chat.ID), chatEvent{
		Type:   chatEventTyping,
		ChatID: c.chat.ID,
		UserID: c.userID,
	})
}

// SetDisappearing toggles disappearing messages for the chat. A user's first
// enable requires acknowledged to be true; the acknowledgement is remembered.
func (c *Composer) SetDisappearing(ctx context.Context, enabled, acknowledged bool) (models.Chat, error) {
	s := c.svc
	ctx, span := s.tracer.Start(ctx, "composer.set_disappearing", trace.WithAttributes(
		attribute.String("chat.id", c.chat.ID),
		attribute.Bool("chat.disappearing", enabled),
	))
	defer span.End()

	chat, err := s.chats.EnsureChat(ctx, c.chat)
	if err != nil {
		span.RecordError(err)
		return models.Chat{}, err
	}

	if enabled {
		consented, err := s.chats.HasConsented(ctx, chat.ID, c.userID)
		if err != nil {
			return models.Chat{}, err
		}
		if !consented {
			if !acknowledged {
				return models.Chat{}, ErrDisappearingConsentRequired
			}
			if err := s.chats.RecordConsent(ctx, chat.ID, c.userID); err != nil {
				return models.Chat{}, err
			}
		}
	}

	if err := s.chats.SetDisappearing(ctx, chat.ID, enabled); err != nil {
		span.RecordError(err)
		return models.Chat{}, err
	}
	chat.Disappearing = enabled

	publishChatEvent(ctx, s.bus, c.logger, ChatTopic(chat.ID), chatEvent{
		Type:   chatEventChatUpdated,
		ChatID: chat.ID,
		UserID: c.userID,
	})
	return chat, nil
}

// Close clears the typing marker and rejects further use.
func (c *Composer) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.stopTyping(ctx)
}

