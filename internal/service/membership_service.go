package service

import (
	"context"
	"slices"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-connect-api/internal/dto"
	"github.com/noah-isme/campus-connect-api/internal/models"
	"github.com/noah-isme/campus-connect-api/internal/observability"
	"github.com/noah-isme/campus-connect-api/internal/repository"
)

// MembershipService joins and leaves catalog groups. The relational user row is
// authoritative; the real-time mirror is repaired by Reconcile when it drifts.
type MembershipService interface {
	Groups(ctx context.Context, userID string) ([]dto.GroupResponse, error)
	Join(ctx context.Context, userID, groupID string) (dto.MembershipResponse, error)
	Leave(ctx context.Context, userID, groupID string) (dto.MembershipResponse, error)
	Reconcile(ctx context.Context) (dto.ReconcileReport, error)
}

type membershipService struct {
	users   repository.UserRepository
	mirror  repository.MembershipMirror
	catalog *models.GroupCatalog
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewMembershipService constructs the group membership service.
func NewMembershipService(users repository.UserRepository, mirror repository.MembershipMirror, catalog *models.GroupCatalog, logger zerolog.Logger) MembershipService {
	return &membershipService{
		users:   users,
		mirror:  mirror,
		catalog: catalog,
		logger:  logger.With().Str("component", "membership_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/campus-connect-api/internal/service/membership"),
	}
}

func (s *membershipService) Groups(ctx context.Context, userID string) ([]dto.GroupResponse, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil && !isMissingUser(err) {
		return nil, err
	}

	groups := s.catalog.All()
	out := make([]dto.GroupResponse, 0, len(groups))
	for _, group := range groups {
		out = append(out, dto.GroupResponse{
			ID:     group.ID,
			Name:   group.Name,
			Image:  group.Image,
			Joined: user.InGroup(group.ID),
		})
	}
	return out, nil
}

func (s *membershipService) Join(ctx context.Context, userID, groupID string) (dto.MembershipResponse, error) {
	ctx, span := s.tracer.Start(ctx, "membership.join", trace.WithAttributes(
		attribute.String("membership.user_id", userID),
		attribute.String("membership.group_id", groupID),
	))
	defer span.End()

	if _, ok := s.catalog.Lookup(groupID); !ok {
		return dto.MembershipResponse{}, ErrUnknownGroup
	}

	var (
		groups []string
		added  bool
	)
	saga := NewSaga("join_group", s.logger,
		SagaStep{
			Name: "relational",
			Action: func(ctx context.Context) error {
				updated, err := s.users.UpdateGroups(ctx, userID, func(current []string) ([]string, error) {
					if slices.Contains(current, groupID) {
						return current, nil
					}
					added = true
					return append(current, groupID), nil
				})
				groups = updated
				return err
			},
			Compensate: func(ctx context.Context) error {
				if !added {
					return nil
				}
				_, err := s.users.UpdateGroups(ctx, userID, func(current []string) ([]string, error) {
					return removeString(current, groupID), nil
				})
				return err
			},
		},
		SagaStep{
			Name:       "mirror",
			BestEffort: true,
			Action: func(ctx context.Context) error {
				return s.mirror.Add(ctx, groupID, userID)
			},
		},
	).OnSkip(s.countMirrorFailure)

	if _, err := saga.Run(ctx); err != nil {
		span.RecordError(err)
		if isMissingUser(err) {
			return dto.MembershipResponse{}, ErrUserNotFound
		}
		return dto.MembershipResponse{}, err
	}
	return dto.MembershipResponse{Groups: groups}, nil
}

// Leave removes the user from a group they belong to. A mirror failure is logged and does not fail the leave.
func (s *membershipService) Leave(ctx context.Context, userID, groupID string) (dto.MembershipResponse, error) {
	ctx, span := s.tracer.Start(ctx, "membership.leave", trace.WithAttributes(
		attribute.String("membership.user_id", userID),
		attribute.String("membership.group_id", groupID),
	))
	defer span.End()

	if _, ok := s.catalog.Lookup(groupID); !ok {
		return dto.MembershipResponse{}, ErrUnknownGroup
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if isMissingUser(err) {
			return dto.MembershipResponse{}, ErrNotMember
		}
		return dto.MembershipResponse{}, err
	}
	if !user.InGroup(groupID) {
		return dto.MembershipResponse{}, ErrNotMember
	}

	var groups []string
	saga := NewSaga("leave_group", s.logger,
		SagaStep{
			Name: "relational",
			Action: func(ctx context.Context) error {
				updated, err := s.users.UpdateGroups(ctx, userID, func(current []string) ([]string, error) {
					if !slices.Contains(current, groupID) {
						return nil, ErrNotMember
					}
					return removeString(current, groupID), nil
				})
				groups = updated
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := s.users.UpdateGroups(ctx, userID, func(current []string) ([]string, error) {
					if slices.Contains(current, groupID) {
						return current, nil
					}
					return append(current, groupID), nil
				})
				return err
			},
		},
		SagaStep{
			Name:       "mirror",
			BestEffort: true,
			Action: func(ctx context.Context) error {
				return s.mirror.Remove(ctx, groupID, userID)
			},
		},
	).OnSkip(s.countMirrorFailure)

	if _, err := saga.Run(ctx); err != nil {
		span.RecordError(err)
		return dto.MembershipResponse{}, err
	}
	return dto.MembershipResponse{Groups: groups}, nil
}

func (s *membershipService) countMirrorFailure(step string) {
	observability.MembershipMirrorFailures().WithLabelValues(step).Inc()
}

// Reconcile rebuilds the mirror from the relational membership lists.
func (s *membershipService) Reconcile(ctx context.Context) (dto.ReconcileReport, error) {
	ctx, span := s.tracer.Start(ctx, "membership.reconcile")
	defer span.End()

	members := make(map[string][]string)
	for _, group := range s.catalog.All() {
		members[group.ID] = nil
	}

	users := 0
	err := s.users.EachMembership(ctx, func(userID string, groups []string) error {
		users++
		known := make([]string, 0, len(groups))
		for _, groupID := range groups {
			if _, ok := s.catalog.Lookup(groupID); !ok {
				continue
			}
			known = append(known, groupID)
			members[groupID] = append(members[groupID], userID)
		}
		return s.mirror.ReplaceUser(ctx, userID, known)
	})
	if err != nil {
		span.RecordError(err)
		observability.MembershipReconcileRuns().WithLabelValues("error").Inc()
		return dto.ReconcileReport{}, err
	}

	groupIDs := make([]string, 0, len(members))
	for groupID := range members {
		groupIDs = append(groupIDs, groupID)
	}
	sort.Strings(groupIDs)
	for _, groupID := range groupIDs {
		if err := s.mirror.ReplaceGroup(ctx, groupID, members[groupID]); err != nil {
			span.RecordError(err)
			observability.MembershipReconcileRuns().WithLabelValues("error").Inc()
			return dto.ReconcileReport{}, err
		}
	}

	observability.MembershipReconcileRuns().WithLabelValues("ok").Inc()
	report := dto.ReconcileReport{Users: users, Groups: len(groupIDs)}
	s.logger.Info().Int("users", report.Users).Int("groups", report.Groups).Msg("membership mirror reconciled")
	return report, nil
}
