package handler_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/deeplink"
	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/handler"
)

func TestResolveDeepLink(t *testing.T) {
	app := fiber.New()
	app.Get("/deeplinks/resolve", handler.ResolveDeepLink(deeplink.NewResolver("campusconnect", "campus.example.com")))

	resolve := func(raw string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, "/deeplinks/resolve?url="+url.QueryEscape(raw), nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := resolve("https://campus.example.com/post/42")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var post struct {
		Data dto.DeepLinkResponse `json:"data"`
	}
	decodeResponse(t, resp, &post)
	require.Equal(t, deeplink.KindPost, post.Data.Kind)
	require.Equal(t, uint(42), post.Data.PostID)

	resp = resolve("campusconnect://reset-password#access_token=abc&type=recovery")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var reset struct {
		Data dto.DeepLinkResponse `json:"data"`
	}
	decodeResponse(t, resp, &reset)
	require.Equal(t, deeplink.KindResetPassword, reset.Data.Kind)
	require.Equal(t, "abc", reset.Data.Params["access_token"])

	resp = resolve("https://evil.example.com/post/42")
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}
