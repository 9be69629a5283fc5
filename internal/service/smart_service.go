package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-connect-api/internal/apperror"
	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// Smart-service actions.
const (
	ActionDeleteAccount        = "delete_account"
	ActionClearPushToken       = "clear_push_token"
	ActionReconcileMemberships = "reconcile_memberships"
)

// RoleAdmin is the token role allowed to run administrative actions.
const RoleAdmin = "admin"

const smartServiceSchemaURL = "https://campus-connect.local/schemas/smart_service.json"

//go:embed schemas/smart_service.schema.json
var smartServiceSchema []byte

// SmartService executes action-discriminated requests validated against a JSON Schema.
type SmartService interface {
	Execute(ctx context.Context, userID, role string, body []byte) (dto.SmartServiceResponse, error)
}

// AccountStores groups the stores touched when an account is removed.
type AccountStores struct {
	Users         repository.UserRepository
	Posts         repository.PostRepository
	Notifications repository.NotificationRepository
	Streaks       repository.StreakRepository
	Chats         repository.ChatStore
	Mirror        repository.MembershipMirror
	Presence      repository.PresenceStore
}

type smartService struct {
	stores     AccountStores
	push       PushService
	membership MembershipService
	schema     *jsonschema.Schema
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewSmartService compiles the request schema and constructs the service.
func NewSmartService(stores AccountStores, push PushService, membership MembershipService, logger zerolog.Logger) (SmartService, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(smartServiceSchemaURL, bytes.NewReader(smartServiceSchema)); err != nil {
		return nil, fmt.Errorf("failed to load smart-service schema: %w", err)
	}
	schema, err := compiler.Compile(smartServiceSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile smart-service schema: %w", err)
	}

	return &smartService{
		stores:     stores,
		push:       push,
		membership: membership,
		schema:     schema,
		logger:     logger.With().Str("component", "smart_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/smart"),
	}, nil
}

func (s *smartService) Execute(ctx context.Context, userID, role string, body []byte) (dto.SmartServiceResponse, error) {
	var document interface{}
	if err := json.Unmarshal(body, &document); err != nil {
		return dto.SmartServiceResponse{}, apperror.Wrap(apperror.KindValidation, err, "request body must be JSON")
	}
	if err := s.schema.Validate(document); err != nil {
		return dto.SmartServiceResponse{}, apperror.Wrap(apperror.KindValidation, err, ErrInvalidAction.Error())
	}

	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return dto.SmartServiceResponse{}, ErrInvalidAction
	}

	ctx, span := s.tracer.Start(ctx, "smart_service.execute", trace.WithAttributes(
		attribute.String("smart_service.action", envelope.Action),
		attribute.String("smart_service.user_id", userID),
	))
	defer span.End()

	var (
		result interface{}
		err    error
	)
	switch envelope.Action {
	case ActionDeleteAccount:
		result, err = s.deleteAccount(ctx, userID)
	case ActionClearPushToken:
		err = s.push.Unregister(ctx, userID)
	case ActionReconcileMemberships:
		if !strings.EqualFold(role, RoleAdmin) {
			return dto.SmartServiceResponse{}, ErrAdminRequired
		}
		result, err = s.membership.Reconcile(ctx)
	default:
		err = ErrInvalidAction
	}
	if err != nil {
		span.RecordError(err)
		return dto.SmartServiceResponse{}, err
	}

	s.logger.Info().Str("action", envelope.Action).Str("user_id", userID).Msg("smart-service action executed")
	return dto.SmartServiceResponse{Action: envelope.Action, Result: result}, nil
}

// deleteAccount removes relational data first; real-time leftovers are best-effort and only hide stale indexes.
func (s *smartService) deleteAccount(ctx context.Context, userID string) (map[string]bool, error) {
	st := s.stores
	user, err := st.Users.Get(ctx, userID)
	if err != nil {
		if isMissingUser(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	groups := append([]string(nil), user.Groups...)

	saga := NewSaga(ActionDeleteAccount, s.logger,
		SagaStep{Name: "content", Action: func(ctx context.Context) error { return st.Posts.DeleteUserContent(ctx, userID) }},
		SagaStep{Name: "notifications", Action: func(ctx context.Context) error { return st.Notifications.DeleteByUser(ctx, userID) }},
		SagaStep{Name: "streak", Action: func(ctx context.Context) error { return st.Streaks.Delete(ctx, userID) }},
		SagaStep{Name: "user", Action: func(ctx context.Context) error { return st.Users.Delete(ctx, userID) }},
		SagaStep{Name: "chats", BestEffort: true, Action: func(ctx context.Context) error { return st.Chats.PurgeUser(ctx, userID) }},
		SagaStep{Name: "mirror", BestEffort: true, Action: func(ctx context.Context) error {
			for _, groupID := range groups {
				if err := st.Mirror.Remove(ctx, groupID, userID); err != nil {
					return err
				}
			}
			return st.Mirror.ReplaceUser(ctx, userID, nil)
		}},
		SagaStep{Name: "presence", BestEffort: true, Action: func(ctx context.Context) error { return st.Presence.Clear(ctx, userID) }},
	)

	result, err := saga.Run(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true, "partial": len(result.Skipped) > 0}, nil
}
