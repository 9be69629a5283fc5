package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// PresenceService keeps the short-lived online marker fresh.
type PresenceService interface {
	Heartbeat(ctx context.Context, userID string) (dto.PresenceResponse, error)
	Offline(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (dto.PresenceResponse, error)
}

type presenceService struct {
	store  repository.PresenceStore
	users  repository.UserRepository
	ttl    time.Duration
	clock  func() time.Time
	logger zerolog.Logger
}

// NewPresenceService constructs the presence service.
func NewPresenceService(store repository.PresenceStore, users repository.UserRepository, ttl time.Duration, logger zerolog.Logger) PresenceService {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &presenceService{
		store:  store,
		users:  users,
		ttl:    ttl,
		clock:  time.Now,
		logger: logger.With().Str("component", "presence_service").Logger(),
	}
}

// Heartbeat refreshes the marker. The relational copy is best-effort.
func (s *presenceService) Heartbeat(ctx context.Context, userID string) (dto.PresenceResponse, error) {
	if err := s.store.Touch(ctx, userID, s.ttl); err != nil {
		return dto.PresenceResponse{}, err
	}
	now := s.clock().UTC()
	if err := s.users.SetPresence(ctx, userID, true, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to persist presence")
	}
	return dto.PresenceResponse{UserID: userID, Online: true, LastSeenAt: &now}, nil
}

func (s *presenceService) Offline(ctx context.Context, userID string) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return err
	}
	if err := s.users.SetPresence(ctx, userID, false, s.clock().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to persist presence")
	}
	return nil
}

// Status trusts the TTL marker over the relational flag, which goes stale when clients vanish.
func (s *presenceService) Status(ctx context.Context, userID string) (dto.PresenceResponse, error) {
	online, err := s.store.Online(ctx, userID)
	if err != nil {
		return dto.PresenceResponse{}, err
	}
	response := dto.PresenceResponse{UserID: userID, Online: online}

	user, err := s.users.Get(ctx, userID)
	switch {
	case isMissingUser(err):
		return response, nil
	case err != nil:
		return dto.PresenceResponse{}, err
	}
	response.LastSeenAt = user.LastSeenAt
	return response, nil
}
