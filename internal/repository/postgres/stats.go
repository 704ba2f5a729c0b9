package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/groupmap/internal/domain"
)

// StatsRepository реализует repository.StatsRepository для PostgreSQL
type StatsRepository struct {
	db *pgxpool.Pool
}

// NewStatsRepository создает новый экземпляр StatsRepository
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// Overall counts users, located users, groups and memberships in one round trip.
func (r *StatsRepository) Overall(ctx context.Context) (*domain.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE longitude IS NOT NULL),
			(SELECT COUNT(*) FROM groups),
			(SELECT COUNT(*) FROM group_members)
	`

	var stats domain.Stats
	if err := r.db.QueryRow(ctx, query).Scan(
		&stats.Users,
		&stats.LocatedUsers,
		&stats.Groups,
		&stats.Memberships,
	); err != nil {
		return nil, storeError(err)
	}

	return &stats, nil
}

// ForUser returns per-user counters. An identity with neither a profile nor a
// membership is domain.ErrUserNotFound.
func (r *StatsRepository) ForUser(ctx context.Context, userID string) (*domain.UserStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM group_members WHERE user_id = $1),
			(SELECT COUNT(*) FROM groups WHERE leader_id = $1),
			u.longitude IS NOT NULL
		FROM (SELECT $1::text AS id) AS q
		LEFT JOIN users u ON u.id = q.id
		WHERE u.id IS NOT NULL
		   OR EXISTS(SELECT 1 FROM group_members WHERE user_id = $1)
	`

	stats := domain.UserStats{UserID: userID}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&stats.GroupsJoined,
		&stats.GroupsLed,
		&stats.HasLocation,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storeError(err)
	}

	return &stats, nil
}
