package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/campus-connect-api/internal/apperror"
	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// SessionService resolves the signed-in user and edits their profile.
type SessionService interface {
	Current(ctx context.Context, userID string) (dto.SessionResponse, error)
	UpdateProfile(ctx context.Context, userID string, req dto.ProfileUpdateRequest) (dto.UserResponse, error)
	SetProfileImage(ctx context.Context, userID, url string) (dto.UserResponse, error)
}

type sessionService struct {
	users     repository.UserRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewSessionService constructs the session service.
func NewSessionService(users repository.UserRepository, validate *validator.Validate, logger zerolog.Logger) SessionService {
	return &sessionService{
		users:     users,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "session_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/session"),
	}
}

// Current upserts the user row for an authenticated subject and reports onboarding progress.
func (s *sessionService) Current(ctx context.Context, userID string) (dto.SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "session.current", trace.WithAttributes(attribute.String("session.user_id", userID)))
	defer span.End()

	user, err := s.users.Ensure(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}

	return dto.SessionResponse{
		User:            dto.NewUserResponse(user),
		HasUsername:     user.Username != "",
		HasCollege:      user.College != "",
		HasInterests:    len(user.Interests) > 0,
		ProfileComplete: user.ProfileComplete(),
	}, nil
}

func (s *sessionService) UpdateProfile(ctx context.Context, userID string, req dto.ProfileUpdateRequest) (dto.UserResponse, error) {
	ctx, span := s.tracer.Start(ctx, "session.update_profile", trace.WithAttributes(attribute.String("session.user_id", userID)))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.users.Ensure(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return dto.UserResponse{}, err
	}

	if req.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*req.Username))
		existing, err := s.users.FindByUsername(ctx, username)
		switch {
		case err == nil && existing.ID != userID:
			return dto.UserResponse{}, ErrUsernameTaken
		case err != nil && !isMissingUser(err):
			return dto.UserResponse{}, err
		}
		user.Username = username
	}
	if req.DisplayName != nil {
		user.DisplayName = s.clean(*req.DisplayName)
	}
	if req.Bio != nil {
		user.Bio = s.clean(*req.Bio)
	}
	if req.College != nil {
		user.College = s.clean(*req.College)
	}
	if req.Branch != nil {
		user.Branch = s.clean(*req.Branch)
	}
	if req.PassoutYear != nil {
		user.PassoutYear = *req.PassoutYear
	}
	if req.Interests != nil {
		interests := make([]string, 0, len(req.Interests))
		seen := make(map[string]struct{}, len(req.Interests))
		for _, interest := range req.Interests {
			clean := s.clean(interest)
			if clean == "" {
				continue
			}
			if _, dup := seen[strings.ToLower(clean)]; dup {
				continue
			}
			seen[strings.ToLower(clean)] = struct{}{}
			interests = append(interests, clean)
		}
		user.Interests = datatypes.NewJSONSlice(interests)
	}

	if err := s.users.Save(ctx, &user); err != nil {
		span.RecordError(err)
		if apperror.IsUniqueViolation(err) {
			return dto.UserResponse{}, ErrUsernameTaken
		}
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *sessionService) SetProfileImage(ctx context.Context, userID, url string) (dto.UserResponse, error) {
	user, err := s.users.Ensure(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, err
	}
	user.ProfileImage = url
	if err := s.users.Save(ctx, &user); err != nil {
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *sessionService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}
