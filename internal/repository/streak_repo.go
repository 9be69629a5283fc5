package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

// StreakRepository stores daily activity streaks.
type StreakRepository interface {
	Get(ctx context.Context, userID string) (models.Streak, error)
	Upsert(ctx context.Context, streak *models.Streak) error
	Delete(ctx context.Context, userID string) error
}

type streakRepository struct {
	db *gorm.DB
}

// NewStreakRepository constructs a GORM-backed streak repository.
func NewStreakRepository(db *gorm.DB) StreakRepository {
	return &streakRepository{db: db}
}

func (r *streakRepository) Get(ctx context.Context, userID string) (models.Streak, error) {
	var streak models.Streak
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&streak).Error; err != nil {
		return models.Streak{}, err
	}
	return streak, nil
}

func (r *streakRepository) Upsert(ctx context.Context, streak *models.Streak) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_streak", "longest_streak", "last_active_on", "updated_at"}),
	}).Create(streak).Error
}

func (r *streakRepository) Delete(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Streak{}).Error
}
