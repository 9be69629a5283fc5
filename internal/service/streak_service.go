package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// StreakService tracks consecutive days of activity.
type StreakService interface {
	Record(ctx context.Context, userID string) (dto.StreakResponse, error)
	Get(ctx context.Context, userID string) (dto.StreakResponse, error)
}

type streakService struct {
	repo   repository.StreakRepository
	clock  func() time.Time
	logger zerolog.Logger
}

// NewStreakService constructs the streak service.
func NewStreakService(repo repository.StreakRepository, logger zerolog.Logger) StreakService {
	return &streakService{
		repo:   repo,
		clock:  time.Now,
		logger: logger.With().Str("component", "streak_service").Logger(),
	}
}

// Record counts today as active. The same day is a no-op, the next day extends
// the streak and any longer gap restarts it at one.
func (s *streakService) Record(ctx context.Context, userID string) (dto.StreakResponse, error) {
	streak, err := s.repo.Get(ctx, userID)
	if err != nil && !isMissingUser(err) {
		return dto.StreakResponse{}, err
	}
	streak.UserID = userID

	today := truncateDay(s.clock())
	last := truncateDay(streak.LastActiveOn)

	switch {
	case streak.CurrentStreak > 0 && last.Equal(today):
		return newStreakResponse(streak), nil
	case streak.CurrentStreak > 0 && last.AddDate(0, 0, 1).Equal(today):
		streak.CurrentStreak++
	default:
		streak.CurrentStreak = 1
	}
	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}
	streak.LastActiveOn = today

	if err := s.repo.Upsert(ctx, &streak); err != nil {
		return dto.StreakResponse{}, err
	}
	return newStreakResponse(streak), nil
}

// Get reports the streak, treating one missed day as a broken streak.
func (s *streakService) Get(ctx context.Context, userID string) (dto.StreakResponse, error) {
	streak, err := s.repo.Get(ctx, userID)
	if isMissingUser(err) {
		return dto.StreakResponse{UserID: userID}, nil
	}
	if err != nil {
		return dto.StreakResponse{}, err
	}

	today := truncateDay(s.clock())
	if truncateDay(streak.LastActiveOn).AddDate(0, 0, 1).Before(today) {
		streak.CurrentStreak = 0
	}
	return newStreakResponse(streak), nil
}

func newStreakResponse(streak models.Streak) dto.StreakResponse {
	response := dto.StreakResponse{
		UserID:        streak.UserID,
		CurrentStreak: streak.CurrentStreak,
		LongestStreak: streak.LongestStreak,
	}
	if !streak.LastActiveOn.IsZero() {
		day := streak.LastActiveOn
		response.LastActiveOn = &day
	}
	return response
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
