package models

import "time"

// Post is a feed entry with denormalized engagement counters.
type Post struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AuthorID     string    `gorm:"size:64;index;not null" json:"author_id"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	ImageURL     string    `gorm:"size:512" json:"image_url"`
	LikeCount    int       `gorm:"not null;default:0" json:"like_count"`
	CommentCount int       `gorm:"not null;default:0" json:"comment_count"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Comment belongs to a post; ParentCommentID points at a root comment only.
type Comment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PostID          uint      `gorm:"index;not null" json:"post_id"`
	AuthorID        string    `gorm:"size:64;index;not null" json:"author_id"`
	ParentCommentID *uint     `gorm:"index" json:"parent_comment_id"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Like records a user's like on a post.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"uniqueIndex:idx_likes_post_user;not null" json:"post_id"`
	UserID    string    `gorm:"size:64;uniqueIndex:idx_likes_post_user;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Save records a bookmarked post.
type Save struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"uniqueIndex:idx_saves_post_user;not null" json:"post_id"`
	UserID    string    `gorm:"size:64;uniqueIndex:idx_saves_post_user;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Streak tracks consecutive days of activity for a user.
type Streak struct {
	UserID        string    `gorm:"primaryKey;size:64" json:"user_id"`
	CurrentStreak int       `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak int       `gorm:"not null;default:0" json:"longest_streak"`
	LastActiveOn  time.Time `json:"last_active_on"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RelationalModels lists the models migrated into the relational store.
func RelationalModels() []interface{} {
	return []interface{}{&User{}, &Post{}, &Comment{}, &Like{}, &Save{}, &Streak{}, &Notification{}}
}
