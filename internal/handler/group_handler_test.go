package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/handler"
	"github.com/noah-isme/campus-connect-api/internal/service"
)

type mockMembershipService struct {
	joined     []string
	left       []string
	reconciled int
}

func (m *mockMembershipService) Groups(_ context.Context, userID string) ([]dto.GroupResponse, error) {
	return []dto.GroupResponse{{ID: "coding", Name: "Coding Club", Joined: userID == "alice"}}, nil
}

func (m *mockMembershipService) Join(_ context.Context, userID, groupID string) (dto.MembershipResponse, error) {
	if groupID != "coding" {
		return dto.MembershipResponse{}, service.ErrUnknownGroup
	}
	m.joined = append(m.joined, userID+":"+groupID)
	return dto.MembershipResponse{Groups: []string{groupID}}, nil
}

func (m *mockMembershipService) Leave(_ context.Context, userID, groupID string) (dto.MembershipResponse, error) {
	if len(m.joined) == 0 {
		return dto.MembershipResponse{}, service.ErrNotMember
	}
	m.left = append(m.left, userID+":"+groupID)
	return dto.MembershipResponse{Groups: []string{}}, nil
}

func (m *mockMembershipService) Reconcile(context.Context) (dto.ReconcileReport, error) {
	m.reconciled++
	return dto.ReconcileReport{Users: 3, Groups: 2}, nil
}

func newGroupApp(svc service.MembershipService) *fiber.App {
	app := fiber.New()
	h := handler.NewGroupHandler(svc, testLogger())
	h.Register(app.Group("/groups", asUser()))
	h.RegisterAdmin(app.Group("/admin/groups", asUser()))
	return app
}

func TestGroupHandlerJoinAndLeave(t *testing.T) {
	svc := &mockMembershipService{}
	app := newGroupApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/groups/coding/leave", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/groups/coding/join", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/groups/coding/leave", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, []string{"alice:coding"}, svc.joined)
	require.Equal(t, []string{"alice:coding"}, svc.left)
}

func TestGroupHandlerUnknownGroup(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/groups/chess/join", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err := newGroupApp(&mockMembershipService{}).Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", decodeAPI(t, resp).Error.Kind)
}

func TestGroupHandlerListAndReconcile(t *testing.T) {
	svc := &mockMembershipService{}
	app := newGroupApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	req.Header.Set("X-Test-User", "alice")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var listed struct {
		Data []dto.GroupResponse `json:"data"`
	}
	decodeResponse(t, resp, &listed)
	require.Len(t, listed.Data, 1)
	require.True(t, listed.Data[0].Joined)

	req = httptest.NewRequest(http.MethodPost, "/admin/groups/reconcile", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report struct {
		Data dto.ReconcileReport `json:"data"`
	}
	decodeResponse(t, resp, &report)
	require.Equal(t, dto.ReconcileReport{Users: 3, Groups: 2}, report.Data)
	require.Equal(t, 1, svc.reconciled)
}
