package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/handler"
	"github.com/noah-isme/campus-connect-api/internal/service"
)

type mockFeedService struct {
	service.FeedService
	query   dto.PostListQuery
	created dto.PostCreateRequest
	likes   map[uint]bool
}

func (m *mockFeedService) List(_ context.Context, _ string, query dto.PostListQuery) ([]dto.PostResponse, error) {
	m.query = query
	return []dto.PostResponse{{ID: 1, AuthorID: "bob"}}, nil
}

func (m *mockFeedService) Create(_ context.Context, authorID string, req dto.PostCreateRequest) (dto.PostResponse, error) {
	m.created = req
	return dto.PostResponse{ID: 2, AuthorID: authorID, Content: req.Content}, nil
}

func (m *mockFeedService) Get(_ context.Context, _ string, postID uint) (dto.PostResponse, error) {
	if postID != 1 {
		return dto.PostResponse{}, service.ErrPostNotFound
	}
	return dto.PostResponse{ID: 1}, nil
}

func (m *mockFeedService) Like(_ context.Context, _ string, postID uint) (dto.EngagementResponse, error) {
	if m.likes == nil {
		m.likes = map[uint]bool{}
	}
	m.likes[postID] = true
	return dto.EngagementResponse{PostID: postID, Liked: true, LikeCount: 1}, nil
}

func (m *mockFeedService) Unlike(_ context.Context, _ string, postID uint) (dto.EngagementResponse, error) {
	delete(m.likes, postID)
	return dto.EngagementResponse{PostID: postID}, nil
}

func (m *mockFeedService) DeleteComment(_ context.Context, userID string, _ uint) error {
	if userID != "alice" {
		return service.ErrNotPostOwner
	}
	return nil
}

func newPostApp(svc service.FeedService) *fiber.App {
	app := fiber.New()
	h := handler.NewPostHandler(svc, testLogger())
	h.Register(app.Group("/posts", asUser()))
	h.RegisterComments(app.Group("/comments", asUser()))
	return app
}

func TestPostHandlerListParsesQuery(t *testing.T) {
	svc := &mockFeedService{}
	req := httptest.NewRequest(http.MethodGet, "/posts?author_id=bob&saved=true&limit=10", nil)
	req.Header.Set("X-Test-User", "alice")

	resp, err := newPostApp(svc).Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, dto.PostListQuery{AuthorID: "bob", Saved: true, Limit: 10}, svc.query)

	var body struct {
		Data []dto.PostResponse `json:"data"`
		Meta map[string]int     `json:"meta"`
	}
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data, 1)
	require.Equal(t, 1, body.Meta["count"])
}

func TestPostHandlerCreateAndGet(t *testing.T) {
	svc := &mockFeedService{}
	app := newPostApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"content":"hello campus"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "alice")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "hello campus", svc.created.Content)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/posts/1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/posts/99", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/posts/abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPostHandlerLikeToggle(t *testing.T) {
	svc := &mockFeedService{}
	app := newPostApp(svc)

	req := httptest.NewRequest(http.MethodPut, "/posts/1/like", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var liked struct {
		Data dto.EngagementResponse `json:"data"`
	}
	decodeResponse(t, resp, &liked)
	require.True(t, liked.Data.Liked)
	require.True(t, svc.likes[1])

	req = httptest.NewRequest(http.MethodDelete, "/posts/1/like", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.False(t, svc.likes[1])
}

func TestPostHandlerDeleteCommentOwnership(t *testing.T) {
	app := newPostApp(&mockFeedService{})

	req := httptest.NewRequest(http.MethodDelete, "/comments/3", nil)
	req.Header.Set("X-Test-User", "bob")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodDelete, "/comments/3", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
