package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/metrics"
	"github.com/aidar/groupmap/internal/repository"
)

// PresenceDedup skips identical presence reports inside a short window.
type PresenceDedup interface {
	Seen(ctx context.Context, userID string, update domain.ProfileUpdate) (bool, error)
	Forget(ctx context.Context, userID string, update domain.ProfileUpdate) error
}

// PresenceService records a user's profile and last known position.
type PresenceService struct {
	userRepo repository.UserRepository
	dedup    PresenceDedup
	logger   *slog.Logger
}

// NewPresenceService creates a new PresenceService. dedup may be nil.
func NewPresenceService(userRepo repository.UserRepository, dedup PresenceDedup, logger *slog.Logger) *PresenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceService{
		userRepo: userRepo,
		dedup:    dedup,
		logger:   logger,
	}
}

// Upsert creates the user on first report and otherwise overwrites the
// supplied fields, leaving omitted ones unchanged. Repeating the same payload
// leaves the same stored state.
func (s *PresenceService) Upsert(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.PositionedUser, error) {
	if strings.TrimSpace(userID) == "" {
		metrics.PresenceUpsertsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if err := update.Validate(); err != nil {
		metrics.PresenceUpsertsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return nil, err
	}

	if user, ok := s.duplicate(ctx, userID, update); ok {
		metrics.PresenceUpsertsTotal.WithLabelValues(metrics.ResultDuplicate).Inc()
		return user, nil
	}

	user, err := s.userRepo.Upsert(ctx, userID, update)
	if err != nil {
		metrics.PresenceUpsertsTotal.WithLabelValues(metrics.ResultError).Inc()
		if s.dedup != nil {
			if ferr := s.dedup.Forget(context.WithoutCancel(ctx), userID, update); ferr != nil {
				s.logger.Warn("presence dedup forget failed", "user_id", userID, "error", ferr)
			}
		}
		return nil, fmt.Errorf("upsert presence: %w", err)
	}

	metrics.PresenceUpsertsTotal.WithLabelValues(metrics.ResultApplied).Inc()
	return user, nil
}

// duplicate returns the stored row when the payload was applied recently.
// Dedup failures never block the write.
func (s *PresenceService) duplicate(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.PositionedUser, bool) {
	if s.dedup == nil {
		return nil, false
	}

	seen, err := s.dedup.Seen(ctx, userID, update)
	if err != nil {
		s.logger.Warn("presence dedup check failed", "user_id", userID, "error", err)
		return nil, false
	}
	if !seen {
		return nil, false
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Warn("presence dedup lookup failed", "user_id", userID, "error", err)
		}
		return nil, false
	}
	return user, true
}
