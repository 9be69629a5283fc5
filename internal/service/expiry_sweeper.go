package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/observability"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// DefaultSweepInterval is how often expired disappearing messages are purged.
const DefaultSweepInterval = time.Minute

// ExpirySweeper deletes disappearing messages once they pass their expiry.
// Readers already hide expired messages; the sweeper reclaims storage.
type ExpirySweeper struct {
	chats    repository.ChatStore
	bus      realtime.Bus
	interval time.Duration
	clock    func() time.Time
	logger   zerolog.Logger
}

// NewExpirySweeper constructs a sweeper; a non-positive interval uses DefaultSweepInterval.
func NewExpirySweeper(chats repository.ChatStore, bus realtime.Bus, interval time.Duration, logger zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &ExpirySweeper{
		chats:    chats,
		bus:      bus,
		interval: interval,
		clock:    time.Now,
		logger:   logger.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

// Sweep removes expired messages from every tracked chat and returns how many were deleted.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	chatIDs, err := s.chats.DisappearingChats(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock()
	total := 0
	for _, chatID := range chatIDs {
		removed, err := s.sweepChat(ctx, chatID, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to sweep chat")
			continue
		}
		total += removed
	}
	if total > 0 {
		s.logger.Info().Int("removed", total).Msg("expired messages removed")
	}
	return total, nil
}

func (s *ExpirySweeper) sweepChat(ctx context.Context, chatID string, now time.Time) (int, error) {
	messages, err := s.chats.ListMessages(ctx, chatID)
	if err != nil {
		return 0, err
	}

	var expired []string
	pending := false
	for _, message := range messages {
		switch {
		case message.Expired(now):
			expired = append(expired, message.ID)
		case message.ExpiresAt != nil:
			pending = true
		}
	}

	if len(expired) > 0 {
		removed, err := s.chats.DeleteMessages(ctx, chatID, expired...)
		if err != nil {
			return 0, err
		}
		observability.ChatMessagesExpired().Add(float64(removed))
		publishChatEvent(ctx, s.bus, s.logger, ChatTopic(chatID), chatEvent{
			Type:   chatEventMessageDeleted,
			ChatID: chatID,
			At:     now,
		})
	}

	if !pending {
		if err := s.chats.UntrackDisappearing(ctx, chatID); err != nil {
			return len(expired), err
		}
	}
	return len(expired), nil
}
