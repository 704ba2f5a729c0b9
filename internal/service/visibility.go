package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/metrics"
	"github.com/aidar/groupmap/internal/repository"
)

const defaultRosterConcurrency = 4

// VisibilityService resolves who a viewer can see: the members of every
// group the viewer belongs to.
type VisibilityService struct {
	userRepo       repository.UserRepository
	groupRepo      repository.GroupRepository
	membershipRepo repository.MembershipRepository
	concurrency    int
}

// NewVisibilityService creates a new VisibilityService. concurrency bounds
// how many member lists are fetched at once; zero means the default.
func NewVisibilityService(
	userRepo repository.UserRepository,
	groupRepo repository.GroupRepository,
	membershipRepo repository.MembershipRepository,
	concurrency int,
) *VisibilityService {
	if concurrency <= 0 {
		concurrency = defaultRosterConcurrency
	}
	return &VisibilityService{
		userRepo:       userRepo,
		groupRepo:      groupRepo,
		membershipRepo: membershipRepo,
		concurrency:    concurrency,
	}
}

// GroupsFor returns the viewer's groups in the order they were joined.
func (s *VisibilityService) GroupsFor(ctx context.Context, viewer string) ([]domain.Group, error) {
	return s.groupRepo.ListByMember(ctx, viewer)
}

// MembersOf returns the members of a group with their positions. An unknown
// group has no members.
func (s *VisibilityService) MembersOf(ctx context.Context, groupID uuid.UUID) ([]domain.PositionedUser, error) {
	return s.membershipRepo.ListMembers(ctx, groupID)
}

// VisibleRoster returns one roster per group of the viewer, in GroupsFor
// order. The first store error aborts the whole fetch.
func (s *VisibilityService) VisibleRoster(ctx context.Context, viewer string) ([]domain.GroupRoster, error) {
	start := time.Now()
	defer func() {
		metrics.RosterFetchDuration.Observe(time.Since(start).Seconds())
	}()

	groups, err := s.GroupsFor(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	rosters := make([]domain.GroupRoster, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, group := range groups {
		g.Go(func() error {
			members, err := s.MembersOf(gctx, group.ID)
			if err != nil {
				return fmt.Errorf("list members of %s: %w", group.ID, err)
			}
			rosters[i] = domain.GroupRoster{Group: group, Members: members}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return rosters, nil
}

// User returns a profile the viewer may see: their own, or that of someone
// sharing at least one group with them.
func (s *VisibilityService) User(ctx context.Context, viewer, userID string) (*domain.PositionedUser, error) {
	if viewer != userID {
		shared, err := s.membershipRepo.SharesGroup(ctx, viewer, userID)
		if err != nil {
			return nil, err
		}
		if !shared {
			return nil, fmt.Errorf("%w: no shared group with %s", domain.ErrForbidden, userID)
		}
	}

	return s.userRepo.GetByID(ctx, userID)
}
