package dto

import (
	"time"

	"github.com/noah-isme/campus-connect-api/internal/models"
)

// Post change tables and operations carried by PostEvent.
const (
	PostTablePosts    = "posts"
	PostTableComments = "comments"
	PostTableLikes    = "likes"

	PostEventInsert = "INSERT"
	PostEventUpdate = "UPDATE"
	PostEventDelete = "DELETE"
)

// PostEvent announces a change scoped to one post.
type PostEvent struct {
	Table  string `json:"table"`
	Type   string `json:"type"`
	PostID uint   `json:"post_id"`
}

// PostCreateRequest creates a feed post.
type PostCreateRequest struct {
	Content  string `json:"content" validate:"required,min=1,max=5000"`
	ImageURL string `json:"image_url" validate:"omitempty,url,max=512"`
}

// PostUpdateRequest edits a post owned by the caller.
type PostUpdateRequest struct {
	Content  *string `json:"content" validate:"omitempty,min=1,max=5000"`
	ImageURL *string `json:"image_url" validate:"omitempty,max=512"`
}

// PostListQuery filters feed listings.
type PostListQuery struct {
	AuthorID string `query:"author_id" validate:"omitempty,max=64"`
	Saved    bool   `query:"saved"`
	Limit    int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset   int    `query:"offset" validate:"omitempty,min=0"`
}

// PostResponse is a post as seen by a specific viewer.
type PostResponse struct {
	ID           uint      `json:"id"`
	AuthorID     string    `json:"author_id"`
	Content      string    `json:"content"`
	ImageURL     string    `json:"image_url,omitempty"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	Liked        bool      `json:"liked"`
	Saved        bool      `json:"saved"`
	ShareURL     string    `json:"share_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewPostResponse converts a post model to DTO.
func NewPostResponse(model models.Post, liked, saved bool) PostResponse {
	return PostResponse{
		ID:           model.ID,
		AuthorID:     model.AuthorID,
		Content:      model.Content,
		ImageURL:     model.ImageURL,
		LikeCount:    model.LikeCount,
		CommentCount: model.CommentCount,
		Liked:        liked,
		Saved:        saved,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// CommentCreateRequest adds a comment or a reply.
type CommentCreateRequest struct {
	Content         string `json:"content" validate:"required,min=1,max=2000"`
	ParentCommentID *uint  `json:"parent_comment_id"`
}

// CommentResponse is a root comment with its replies, or a reply.
type CommentResponse struct {
	ID              uint              `json:"id"`
	PostID          uint              `json:"post_id"`
	AuthorID        string            `json:"author_id"`
	ParentCommentID *uint             `json:"parent_comment_id,omitempty"`
	Content         string            `json:"content"`
	CreatedAt       time.Time         `json:"created_at"`
	Replies         []CommentResponse `json:"replies,omitempty"`
}

// NewCommentResponse converts a comment model to DTO.
func NewCommentResponse(model models.Comment) CommentResponse {
	return CommentResponse{
		ID:              model.ID,
		PostID:          model.PostID,
		AuthorID:        model.AuthorID,
		ParentCommentID: model.ParentCommentID,
		Content:         model.Content,
		CreatedAt:       model.CreatedAt,
	}
}

// NewCommentThread nests replies under their root comments, preserving order.
func NewCommentThread(comments []models.Comment) []CommentResponse {
	roots := make([]CommentResponse, 0, len(comments))
	index := make(map[uint]int, len(comments))
	for _, comment := range comments {
		if comment.ParentCommentID == nil {
			index[comment.ID] = len(roots)
			roots = append(roots, NewCommentResponse(comment))
		}
	}
	for _, comment := range comments {
		if comment.ParentCommentID == nil {
			continue
		}
		if pos, ok := index[*comment.ParentCommentID]; ok {
			roots[pos].Replies = append(roots[pos].Replies, NewCommentResponse(comment))
		}
	}
	return roots
}

// EngagementResponse reports the caller's like/save state after a toggle.
type EngagementResponse struct {
	PostID    uint `json:"post_id"`
	Liked     bool `json:"liked"`
	Saved     bool `json:"saved"`
	LikeCount int  `json:"like_count"`
}

// PostSnapshot is one observation of a post's live state.
type PostSnapshot struct {
	Post     PostResponse      `json:"post"`
	Comments []CommentResponse `json:"comments"`
}
