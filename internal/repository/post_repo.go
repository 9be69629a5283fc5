package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/campus-connect-api/internal/apperror"
	"github.com/noah-isme/campus-connect-api/internal/models"
)

// PostFilter narrows post listings.
type PostFilter struct {
	AuthorID string
	SavedBy  string
	Limit    int
	Offset   int
}

// PostRepository persists posts, comments, likes and saves with their denormalized counters.
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id uint) (models.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error)
	UpdatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id uint) error

	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id uint) (models.Comment, error)
	ListComments(ctx context.Context, postID uint) ([]models.Comment, error)
	DeleteComment(ctx context.Context, comment models.Comment) (int, error)

	CreateLike(ctx context.Context, postID uint, userID string) error
	DeleteLike(ctx context.Context, postID uint, userID string) (bool, error)
	CreateSave(ctx context.Context, postID uint, userID string) error
	DeleteSave(ctx context.Context, postID uint, userID string) (bool, error)
	Engagement(ctx context.Context, userID string, postIDs []uint) (liked map[uint]bool, saved map[uint]bool, err error)

	DeleteUserContent(ctx context.Context, userID string) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository constructs a GORM-backed post repository.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) CreatePost(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetPost(ctx context.Context, id uint) (models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return models.Post{}, err
	}
	return post, nil
}

func (r *postRepository) ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Model(&models.Post{})
	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if filter.SavedBy != "" {
		query = query.Where("id IN (?)", r.db.Model(&models.Save{}).Select("post_id").Where("user_id = ?", filter.SavedBy))
	}

	var posts []models.Post
	if err := query.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) UpdatePost(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Model(post).Select("content", "image_url", "updated_at").Updates(post).Error
}

func (r *postRepository) DeletePost(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deletePostTx(tx, id)
	})
}

func deletePostTx(tx *gorm.DB, id uint) error {
	for _, model := range []interface{}{&models.Comment{}, &models.Like{}, &models.Save{}} {
		if err := tx.Where("post_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	result := tx.Delete(&models.Post{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *postRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return adjustCounter(tx, comment.PostID, "comment_count", 1)
	})
}

func (r *postRepository) GetComment(ctx context.Context, id uint) (models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

func (r *postRepository) ListComments(ctx context.Context, postID uint) ([]models.Comment, error) {
	var comments []models.Comment
	if err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// DeleteComment removes the comment and its replies, returning how many rows were removed.
func (r *postRepository) DeleteComment(ctx context.Context, comment models.Comment) (int, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		replies := tx.Where("parent_comment_id = ?", comment.ID).Delete(&models.Comment{})
		if replies.Error != nil {
			return replies.Error
		}
		root := tx.Delete(&models.Comment{}, comment.ID)
		if root.Error != nil {
			return root.Error
		}
		if root.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		removed = replies.RowsAffected + root.RowsAffected
		return adjustCounter(tx, comment.PostID, "comment_count", -int(removed))
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (r *postRepository) CreateLike(ctx context.Context, postID uint, userID string) error {
	return r.createEngagement(ctx, &models.Like{PostID: postID, UserID: userID}, postID, "like_count")
}

func (r *postRepository) DeleteLike(ctx context.Context, postID uint, userID string) (bool, error) {
	return r.deleteEngagement(ctx, &models.Like{}, postID, userID, "like_count")
}

func (r *postRepository) CreateSave(ctx context.Context, postID uint, userID string) error {
	return r.createEngagement(ctx, &models.Save{PostID: postID, UserID: userID}, postID, "")
}

func (r *postRepository) DeleteSave(ctx context.Context, postID uint, userID string) (bool, error) {
	return r.deleteEngagement(ctx, &models.Save{}, postID, userID, "")
}

func (r *postRepository) createEngagement(ctx context.Context, row interface{}, postID uint, counter string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		if counter == "" {
			return nil
		}
		return adjustCounter(tx, postID, counter, 1)
	})
	if apperror.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *postRepository) deleteEngagement(ctx context.Context, model interface{}, postID uint, userID, counter string) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(model)
		if result.Error != nil {
			return result.Error
		}
		removed = result.RowsAffected > 0
		if !removed || counter == "" {
			return nil
		}
		return adjustCounter(tx, postID, counter, -1)
	})
	return removed, err
}

func (r *postRepository) Engagement(ctx context.Context, userID string, postIDs []uint) (map[uint]bool, map[uint]bool, error) {
	liked := make(map[uint]bool, len(postIDs))
	saved := make(map[uint]bool, len(postIDs))
	if userID == "" || len(postIDs) == 0 {
		return liked, saved, nil
	}

	var likedIDs []uint
	if err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &likedIDs).Error; err != nil {
		return nil, nil, err
	}
	var savedIDs []uint
	if err := r.db.WithContext(ctx).Model(&models.Save{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &savedIDs).Error; err != nil {
		return nil, nil, err
	}

	for _, id := range likedIDs {
		liked[id] = true
	}
	for _, id := range savedIDs {
		saved[id] = true
	}
	return liked, saved, nil
}

// DeleteUserContent removes everything a user authored or applied, keeping other posts' counters consistent.
func (r *postRepository) DeleteUserContent(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var postIDs []uint
		if err := tx.Model(&models.Post{}).Where("author_id = ?", userID).Pluck("id", &postIDs).Error; err != nil {
			return err
		}
		for _, id := range postIDs {
			if err := deletePostTx(tx, id); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var likes []models.Like
		if err := tx.Where("user_id = ?", userID).Find(&likes).Error; err != nil {
			return err
		}
		for _, like := range likes {
			if err := adjustCounter(tx, like.PostID, "like_count", -1); err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Save{}).Error; err != nil {
			return err
		}

		var comments []models.Comment
		if err := tx.Where("author_id = ?", userID).Find(&comments).Error; err != nil {
			return err
		}
		for _, comment := range comments {
			replies := tx.Where("parent_comment_id = ? AND author_id <> ?", comment.ID, userID).Delete(&models.Comment{})
			if replies.Error != nil {
				return replies.Error
			}
			if err := adjustCounter(tx, comment.PostID, "comment_count", -int(replies.RowsAffected)-1); err != nil {
				return err
			}
		}
		return tx.Where("author_id = ?", userID).Delete(&models.Comment{}).Error
	})
}

func adjustCounter(tx *gorm.DB, postID uint, column string, delta int) error {
	if delta == 0 {
		return nil
	}
	expr := gorm.Expr(column+" + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN "+column+" + ? < 0 THEN 0 ELSE "+column+" + ? END", delta, delta)
	}
	return tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn(column, expr).Error
}
