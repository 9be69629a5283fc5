package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/realtime"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// Notification types raised by feed activity.
const (
	NotificationTypePostLiked     = "post_liked"
	NotificationTypePostCommented = "post_commented"
)

// ShareLinker builds public links to posts.
type ShareLinker interface {
	PostURL(postID uint) string
}

// NotificationPublisher raises in-app notifications.
type NotificationPublisher interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// PostWatcher exposes a post's live state as a restartable feed.
type PostWatcher interface {
	Watch(ctx context.Context, viewerID string, postID uint) (*realtime.Feed[dto.PostSnapshot], error)
}

// FeedService manages posts, comments, likes and saves.
type FeedService interface {
	PostWatcher
	List(ctx context.Context, viewerID string, query dto.PostListQuery) ([]dto.PostResponse, error)
	Get(ctx context.Context, viewerID string, postID uint) (dto.PostResponse, error)
	Create(ctx context.Context, authorID string, req dto.PostCreateRequest) (dto.PostResponse, error)
	Update(ctx context.Context, userID string, postID uint, req dto.PostUpdateRequest) (dto.PostResponse, error)
	Delete(ctx context.Context, userID string, postID uint) error
	Comments(ctx context.Context, postID uint) ([]dto.CommentResponse, error)
	AddComment(ctx context.Context, userID string, postID uint, req dto.CommentCreateRequest) (dto.CommentResponse, error)
	DeleteComment(ctx context.Context, userID string, commentID uint) error
	Like(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error)
	Unlike(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error)
	Save(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error)
	Unsave(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error)
}

type feedService struct {
	posts         repository.PostRepository
	bus           realtime.Bus
	notifications NotificationPublisher
	streaks       ActivityRecorder
	links         ShareLinker
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewFeedService constructs the feed service. notifications, streaks and links may be nil.
func NewFeedService(posts repository.PostRepository, bus realtime.Bus, notifications NotificationPublisher, streaks ActivityRecorder, links ShareLinker, validate *validator.Validate, logger zerolog.Logger) FeedService {
	return &feedService{
		posts:         posts,
		bus:           bus,
		notifications: notifications,
		streaks:       streaks,
		links:         links,
		validator:     validate,
		sanitizer:     bluemonday.UGCPolicy(),
		logger:        logger.With().Str("component", "feed_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/feed"),
	}
}

// PostTopic is the bus topic carrying changes to one post.
func PostTopic(postID uint) string {
	return realtime.Topic("posts", fmt.Sprint(postID))
}

func (s *feedService) List(ctx context.Context, viewerID string, query dto.PostListQuery) ([]dto.PostResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}
	filter := repository.PostFilter{AuthorID: query.AuthorID, Limit: query.Limit, Offset: query.Offset}
	if query.Saved {
		filter.SavedBy = viewerID
	}

	posts, err := s.posts.ListPosts(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}
	liked, saved, err := s.posts.Engagement(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]dto.PostResponse, 0, len(posts))
	for _, post := range posts {
		out = append(out, s.present(post, liked[post.ID], saved[post.ID]))
	}
	return out, nil
}

func (s *feedService) Get(ctx context.Context, viewerID string, postID uint) (dto.PostResponse, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return dto.PostResponse{}, err
	}
	liked, saved, err := s.posts.Engagement(ctx, viewerID, []uint{postID})
	if err != nil {
		return dto.PostResponse{}, err
	}
	return s.present(post, liked[postID], saved[postID]), nil
}

func (s *feedService) Create(ctx context.Context, authorID string, req dto.PostCreateRequest) (dto.PostResponse, error) {
	ctx, span := s.tracer.Start(ctx, "feed.create_post", trace.WithAttributes(attribute.String("post.author_id", authorID)))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.PostResponse{}, err
	}
	content := strings.TrimSpace(s.sanitizer.Sanitize(req.Content))
	if content == "" {
		return dto.PostResponse{}, ErrEmptyMessage
	}

	post := models.Post{AuthorID: authorID, Content: content, ImageURL: strings.TrimSpace(req.ImageURL)}
	if err := s.posts.CreatePost(ctx, &post); err != nil {
		span.RecordError(err)
		return dto.PostResponse{}, err
	}

	s.publish(ctx, dto.PostEvent{Table: dto.PostTablePosts, Type: dto.PostEventInsert, PostID: post.ID})
	s.recordActivity(ctx, authorID)
	return s.present(post, false, false), nil
}

func (s *feedService) Update(ctx context.Context, userID string, postID uint, req dto.PostUpdateRequest) (dto.PostResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PostResponse{}, err
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return dto.PostResponse{}, err
	}
	if post.AuthorID != userID {
		return dto.PostResponse{}, ErrNotPostOwner
	}

	if req.Content != nil {
		content := strings.TrimSpace(s.sanitizer.Sanitize(*req.Content))
		if content == "" {
			return dto.PostResponse{}, ErrEmptyMessage
		}
		post.Content = content
	}
	if req.ImageURL != nil {
		post.ImageURL = strings.TrimSpace(*req.ImageURL)
	}

	if err := s.posts.UpdatePost(ctx, &post); err != nil {
		return dto.PostResponse{}, err
	}
	s.publish(ctx, dto.PostEvent{Table: dto.PostTablePosts, Type: dto.PostEventUpdate, PostID: post.ID})
	return s.Get(ctx, userID, post.ID)
}

func (s *feedService) Delete(ctx context.Context, userID string, postID uint) error {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != userID {
		return ErrNotPostOwner
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		return err
	}
	s.publish(ctx, dto.PostEvent{Table: dto.PostTablePosts, Type: dto.PostEventDelete, PostID: postID})
	return nil
}

func (s *feedService) Comments(ctx context.Context, postID uint) ([]dto.CommentResponse, error) {
	if _, err := s.loadPost(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.posts.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	return dto.NewCommentThread(comments), nil
}

// AddComment stores a comment. Replies to replies attach to the root comment so threads stay one level deep.
func (s *feedService) AddComment(ctx context.Context, userID string, postID uint, req dto.CommentCreateRequest) (dto.CommentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "feed.add_comment", trace.WithAttributes(
		attribute.Int64("post.id", int64(postID)),
		attribute.String("comment.author_id", userID),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.CommentResponse{}, err
	}
	content := strings.TrimSpace(s.sanitizer.Sanitize(req.Content))
	if content == "" {
		return dto.CommentResponse{}, ErrEmptyMessage
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return dto.CommentResponse{}, err
	}

	comment := models.Comment{PostID: postID, AuthorID: userID, Content: content}
	if req.ParentCommentID != nil {
		parent, err := s.posts.GetComment(ctx, *req.ParentCommentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.CommentResponse{}, ErrCommentNotFound
			}
			return dto.CommentResponse{}, err
		}
		if parent.PostID != postID {
			return dto.CommentResponse{}, ErrCommentParentMismatch
		}
		rootID := parent.ID
		if parent.ParentCommentID != nil {
			rootID = *parent.ParentCommentID
		}
		comment.ParentCommentID = &rootID
	}

	if err := s.posts.CreateComment(ctx, &comment); err != nil {
		span.RecordError(err)
		return dto.CommentResponse{}, err
	}

	s.publish(ctx, dto.PostEvent{Table: dto.PostTableComments, Type: dto.PostEventInsert, PostID: postID})
	s.recordActivity(ctx, userID)
	s.notifyAuthor(ctx, post, userID, NotificationTypePostCommented, "Someone commented on your post")
	return dto.NewCommentResponse(comment), nil
}

func (s *feedService) DeleteComment(ctx context.Context, userID string, commentID uint) error {
	comment, err := s.posts.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		return err
	}
	if comment.AuthorID != userID {
		return ErrNotPostOwner
	}
	if _, err := s.posts.DeleteComment(ctx, comment); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		return err
	}
	s.publish(ctx, dto.PostEvent{Table: dto.PostTableComments, Type: dto.PostEventDelete, PostID: comment.PostID})
	return nil
}

// Like is idempotent: liking twice reports liked without counting again.
func (s *feedService) Like(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return dto.EngagementResponse{}, err
	}

	err = s.posts.CreateLike(ctx, postID, userID)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
	case err != nil:
		return dto.EngagementResponse{}, err
	default:
		s.publish(ctx, dto.PostEvent{Table: dto.PostTableLikes, Type: dto.PostEventInsert, PostID: postID})
		s.notifyAuthor(ctx, post, userID, NotificationTypePostLiked, "Someone liked your post")
	}
	return s.engagement(ctx, userID, postID)
}

func (s *feedService) Unlike(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error) {
	if _, err := s.loadPost(ctx, postID); err != nil {
		return dto.EngagementResponse{}, err
	}
	removed, err := s.posts.DeleteLike(ctx, postID, userID)
	if err != nil {
		return dto.EngagementResponse{}, err
	}
	if removed {
		s.publish(ctx, dto.PostEvent{Table: dto.PostTableLikes, Type: dto.PostEventDelete, PostID: postID})
	}
	return s.engagement(ctx, userID, postID)
}

func (s *feedService) Save(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error) {
	if _, err := s.loadPost(ctx, postID); err != nil {
		return dto.EngagementResponse{}, err
	}
	if err := s.posts.CreateSave(ctx, postID, userID); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return dto.EngagementResponse{}, err
	}
	return s.engagement(ctx, userID, postID)
}

func (s *feedService) Unsave(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error) {
	if _, err := s.loadPost(ctx, postID); err != nil {
		return dto.EngagementResponse{}, err
	}
	if _, err := s.posts.DeleteSave(ctx, postID, userID); err != nil {
		return dto.EngagementResponse{}, err
	}
	return s.engagement(ctx, userID, postID)
}

// Watch returns a stopped feed that reloads the post and its comments on every change.
func (s *feedService) Watch(ctx context.Context, viewerID string, postID uint) (*realtime.Feed[dto.PostSnapshot], error) {
	if _, err := s.loadPost(ctx, postID); err != nil {
		return nil, err
	}
	return realtime.NewFeed(s.bus, PostTopic(postID), func(ctx context.Context) (dto.PostSnapshot, error) {
		post, err := s.Get(ctx, viewerID, postID)
		if err != nil {
			return dto.PostSnapshot{}, err
		}
		comments, err := s.posts.ListComments(ctx, postID)
		if err != nil {
			return dto.PostSnapshot{}, err
		}
		return dto.PostSnapshot{Post: post, Comments: dto.NewCommentThread(comments)}, nil
	}), nil
}

func (s *feedService) engagement(ctx context.Context, userID string, postID uint) (dto.EngagementResponse, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return dto.EngagementResponse{}, err
	}
	liked, saved, err := s.posts.Engagement(ctx, userID, []uint{postID})
	if err != nil {
		return dto.EngagementResponse{}, err
	}
	return dto.EngagementResponse{
		PostID:    postID,
		Liked:     liked[postID],
		Saved:     saved[postID],
		LikeCount: post.LikeCount,
	}, nil
}

func (s *feedService) loadPost(ctx context.Context, postID uint) (models.Post, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Post{}, ErrPostNotFound
		}
		return models.Post{}, err
	}
	return post, nil
}

func (s *feedService) present(post models.Post, liked, saved bool) dto.PostResponse {
	response := dto.NewPostResponse(post, liked, saved)
	if s.links != nil {
		response.ShareURL = s.links.PostURL(post.ID)
	}
	return response
}

func (s *feedService) publish(ctx context.Context, event dto.PostEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal post event")
		return
	}
	if err := s.bus.Publish(ctx, PostTopic(event.PostID), payload); err != nil {
		s.logger.Warn().Err(err).Uint("post_id", event.PostID).Msg("failed to publish post event")
	}
}

func (s *feedService) recordActivity(ctx context.Context, userID string) {
	if s.streaks == nil {
		return
	}
	if _, err := s.streaks.Record(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to record streak")
	}
}

func (s *feedService) notifyAuthor(ctx context.Context, post models.Post, actorID, kind, message string) {
	if s.notifications == nil || post.AuthorID == actorID {
		return
	}
	_, err := s.notifications.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  post.AuthorID,
		Type:    kind,
		Message: message,
		Data:    map[string]string{"postId": fmt.Sprint(post.ID), "actorId": actorID},
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("post_id", post.ID).Msg("failed to notify post author")
	}
}
