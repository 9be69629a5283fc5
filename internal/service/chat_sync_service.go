package service

import (
	"context"
	"sync"
	"time"

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

// DefaultChatWatchdog bounds the wait for a chat's first snapshot.
const DefaultChatWatchdog = 10 * time.Second

const chatUpdateBuffer = 8

// ChatState is the lifecycle state of a chat session.
type ChatState string

const (
	ChatStateLoading ChatState = "loading"
	ChatStateReady   ChatState = "ready"
	ChatStateError   ChatState = "error"
	ChatStateClosed  ChatState = "closed"
)

// ChatUpdate is one observation published by a chat session.
type ChatUpdate struct {
	State    ChatState
	Messages []dto.ChatMessageView
	Err      error
}

// ChatSyncOptions tunes chat sessions.
type ChatSyncOptions struct {
	Watchdog time.Duration
	Clock    func() time.Time
	// After arms the watchdog; it defaults to time.After.
	After func(time.Duration) <-chan time.Time
}

// ChatSyncService opens live, decrypted views of a chat's messages.
type ChatSyncService interface {
	Open(ctx context.Context, chatID, viewerID string) (*ChatSession, error)
	WatchTyping(ctx context.Context, chatID, viewerID string) (*realtime.Feed[[]string], error)
}

type chatSyncService struct {
	chats  repository.ChatStore
	access chatAccess
	bus    realtime.Bus
	cipher MessageCipher
	opts   ChatSyncOptions
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewChatSyncService constructs the chat synchronisation service.
func NewChatSyncService(chats repository.ChatStore, users repository.UserRepository, catalog *models.GroupCatalog, bus realtime.Bus, cipher MessageCipher, opts ChatSyncOptions, logger zerolog.Logger) ChatSyncService {
	if opts.Watchdog <= 0 {
		opts.Watchdog = DefaultChatWatchdog
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	return &chatSyncService{
		chats:  chats,
		access: chatAccess{users: users, catalog: catalog},
		bus:    bus,
		cipher: cipher,
		opts:   opts,
		logger: logger.With().Str("component", "chat_sync_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/chat_sync"),
	}
}

// Open checks access and starts a session in the Loading state. The caller must Close it.
func (s *chatSyncService) Open(ctx context.Context, chatID, viewerID string) (*ChatSession, error) {
	_, span := s.tracer.Start(ctx, "chat_sync.open", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.viewer_id", viewerID),
	))
	defer span.End()

	if _, err := s.access.resolve(ctx, chatID, viewerID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	feed := realtime.NewFeed(s.bus, ChatTopic(chatID), func(ctx context.Context) ([]models.ChatMessage, error) {
		return s.chats.ListMessages(ctx, chatID)
	})

	session := newChatSession(chatID, viewerID, feed, s.cipher, s.opts, s.logger)
	session.start(ctx)
	return session, nil
}

// WatchTyping returns a stopped feed of the chat's typing user ids.
func (s *chatSyncService) WatchTyping(ctx context.Context, chatID, viewerID string) (*realtime.Feed[[]string], error) {
	if _, err := s.access.resolve(ctx, chatID, viewerID); err != nil {
		return nil, err
	}
	return realtime.NewFeed(s.bus, TypingTopic(chatID), func(ctx context.Context) ([]string, error) {
		return s.chats.TypingUsers(ctx, chatID)
	}), nil
}

// ChatSession drives one viewer's live message list through Loading, Ready and Error.
// Ready holds until Close; Error returns to Loading on Retry.
type ChatSession struct {
	chatID   string
	viewerID string
	feed     *realtime.Feed[[]models.ChatMessage]
	cipher   MessageCipher
	opts     ChatSyncOptions
	logger   zerolog.Logger

	updates chan ChatUpdate
	retry   chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once

	mu    sync.RWMutex
	state ChatState
}

func newChatSession(chatID, viewerID string, feed *realtime.Feed[[]models.ChatMessage], cipher MessageCipher, opts ChatSyncOptions, logger zerolog.Logger) *ChatSession {
	return &ChatSession{
		chatID:   chatID,
		viewerID: viewerID,
		feed:     feed,
		cipher:   cipher,
		opts:     opts,
		logger:   logger.With().Str("chat_id", chatID).Str("viewer_id", viewerID).Logger(),
		updates:  make(chan ChatUpdate, chatUpdateBuffer),
		retry:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		state:    ChatStateLoading,
	}
}

func (s *ChatSession) start(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.cancel = cancel
	observability.ChatSessionsActive().Inc()
	go s.run(ctx)
}

// ChatID returns the chat this session watches.
func (s *ChatSession) ChatID() string { return s.chatID }

// Updates delivers state changes and message lists; it is closed after Close.
func (s *ChatSession) Updates() <-chan ChatUpdate { return s.updates }

// State returns the current lifecycle state.
func (s *ChatSession) State() ChatState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Retry restarts the subscription from the Error state.
func (s *ChatSession) Retry() error {
	switch s.State() {
	case ChatStateClosed:
		return ErrSessionClosed
	case ChatStateError:
	default:
		return ErrNotRetryable
	}
	select {
	case s.retry <- struct{}{}:
	default:
	}
	return nil
}

// Close tears down the subscription and waits for the session to stop.
func (s *ChatSession) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		observability.ChatSessionsActive().Dec()
	})
}

func (s *ChatSession) setState(state ChatState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *ChatSession) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.updates)
	defer s.setState(ChatStateClosed)
	defer s.feed.Stop()

	var (
		snapshots <-chan realtime.Snapshot[[]models.ChatMessage]
		watchdog  <-chan time.Time
	)

	fail := func(err error) {
		s.feed.Stop()
		snapshots, watchdog = nil, nil
		s.setState(ChatStateError)
		s.logger.Warn().Err(err).Msg("chat session failed")
		s.emit(ctx, ChatUpdate{State: ChatStateError, Err: err})
	}

	begin := func() {
		s.setState(ChatStateLoading)
		s.emit(ctx, ChatUpdate{State: ChatStateLoading})

		ch, err := s.feed.Start(ctx)
		if err != nil {
			fail(err)
			return
		}
		snapshots = ch
		watchdog = s.opts.After(s.opts.Watchdog)
	}

	begin()
	for {
		select {
		case <-ctx.Done():
			return

		case <-s.retry:
			if s.State() == ChatStateError {
				s.logger.Debug().Msg("retrying chat subscription")
				begin()
			}

		case <-watchdog:
			watchdog = nil
			if s.State() == ChatStateLoading {
				observability.ChatWatchdogTimeouts().Inc()
				fail(ErrChatTimeout)
			}

		case snapshot, ok := <-snapshots:
			if !ok {
				snapshots = nil
				if ctx.Err() != nil {
					return
				}
				if s.State() == ChatStateLoading {
					fail(ErrSubscriptionEnded)
				}
				continue
			}

			if snapshot.Err != nil {
				if s.State() == ChatStateLoading {
					fail(snapshot.Err)
					continue
				}
				s.logger.Warn().Err(snapshot.Err).Msg("chat reload failed")
				s.emit(ctx, ChatUpdate{State: ChatStateReady, Err: snapshot.Err})
				continue
			}

			if s.State() == ChatStateLoading {
				watchdog = nil
				s.setState(ChatStateReady)
			}
			s.emit(ctx, ChatUpdate{
				State:    ChatStateReady,
				Messages: presentMessages(snapshot.Value, s.cipher, s.opts.Clock()),
			})
		}
	}
}

func (s *ChatSession) emit(ctx context.Context, update ChatUpdate) {
	select {
	case s.updates <- update:
	case <-ctx.Done():
	}
}
