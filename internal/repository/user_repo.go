package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

// ErrDuplicate indicates a unique constraint rejected the write.
var ErrDuplicate = errors.New("record already exists")

// ListMutator rewrites a JSON list column inside a transaction.
type ListMutator func(current []string) ([]string, error)

// UserRepository provides access to user rows in the relational store.
type UserRepository interface {
	Get(ctx context.Context, id string) (models.User, error)
	GetMany(ctx context.Context, ids []string) ([]models.User, error)
	Ensure(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	Save(ctx context.Context, user *models.User) error
	SetPushToken(ctx context.Context, id string, token *string) error
	SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
	UpdateGroups(ctx context.Context, id string, mutate ListMutator) ([]string, error)
	UpdateBlocked(ctx context.Context, id string, mutate ListMutator) ([]string, error)
	EachMembership(ctx context.Context, fn func(userID string, groups []string) error) error
	Delete(ctx context.Context, id string) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a GORM-backed user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Get(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) GetMany(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Ensure(ctx context.Context, id string) (models.User, error) {
	user := models.User{ID: id}
	if err := r.db.WithContext(ctx).Where(models.User{ID: id}).FirstOrCreate(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).First(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) Save(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) SetPushToken(ctx context.Context, id string, token *string) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("push_token", token)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_online":    online,
		"last_seen_at": lastSeen,
	}).Error
}

func (r *userRepository) UpdateGroups(ctx context.Context, id string, mutate ListMutator) ([]string, error) {
	return r.updateList(ctx, id, "groups", func(u *models.User) *datatypes.JSONSlice[string] { return &u.Groups }, mutate)
}

func (r *userRepository) UpdateBlocked(ctx context.Context, id string, mutate ListMutator) ([]string, error) {
	return r.updateList(ctx, id, "blocked_user_ids", func(u *models.User) *datatypes.JSONSlice[string] { return &u.BlockedUserIDs }, mutate)
}

func (r *userRepository) updateList(ctx context.Context, id, column string, field func(*models.User) *datatypes.JSONSlice[string], mutate ListMutator) ([]string, error) {
	var updated []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return err
		}

		current := append([]string(nil), *field(&user)...)
		next, err := mutate(current)
		if err != nil {
			return err
		}

		if next == nil {
			next = []string{}
		}
		updated = next
		return tx.Model(&models.User{}).Where("id = ?", id).Update(column, datatypes.NewJSONSlice(next)).Error
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *userRepository) EachMembership(ctx context.Context, fn func(userID string, groups []string) error) error {
	var batch []models.User
	result := r.db.WithContext(ctx).Select("id", "groups").FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
		for _, user := range batch {
			if err := fn(user.ID, user.Groups); err != nil {
				return err
			}
		}
		return nil
	})
	return result.Error
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
