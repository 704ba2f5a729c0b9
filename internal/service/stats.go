package service

import (
	"context"
	"fmt"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/repository"
)

// StatsService handles statistics queries
type StatsService struct {
	statsRepo      repository.StatsRepository
	membershipRepo repository.MembershipRepository
}

// NewStatsService creates a new StatsService
func NewStatsService(statsRepo repository.StatsRepository, membershipRepo repository.MembershipRepository) *StatsService {
	return &StatsService{
		statsRepo:      statsRepo,
		membershipRepo: membershipRepo,
	}
}

// GetStats returns overall statistics
func (s *StatsService) GetStats(ctx context.Context) (*domain.Stats, error) {
	return s.statsRepo.Overall(ctx)
}

// GetUserStats returns statistics for userID. The caller sees their own
// counters and those of users they share a group with; anyone else is
// domain.ErrForbidden, whether or not userID exists.
func (s *StatsService) GetUserStats(ctx context.Context, caller, userID string) (*domain.UserStats, error) {
	if caller != userID {
		shared, err := s.membershipRepo.SharesGroup(ctx, caller, userID)
		if err != nil {
			return nil, err
		}
		if !shared {
			return nil, fmt.Errorf("%w: no shared group with %s", domain.ErrForbidden, userID)
		}
	}

	return s.statsRepo.ForUser(ctx, userID)
}
