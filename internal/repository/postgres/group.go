package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/groupmap/internal/domain"
)

// GroupRepository реализует repository.GroupRepository для PostgreSQL
type GroupRepository struct {
	db *pgxpool.Pool
}

// NewGroupRepository создает новый экземпляр GroupRepository
func NewGroupRepository(db *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts the group and the leader's membership in one transaction.
// CreatedAt is filled from the database.
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return storeError(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	insertGroup := `
		INSERT INTO groups (id, name, leader_id, invite_token)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, insertGroup, group.ID, group.Name, group.LeaderID, group.InviteToken).Scan(&group.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return fmt.Errorf("%w: group or invite token already exists", domain.ErrConflict)
		}
		return storeError(err)
	}

	insertLeader := `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`
	if _, err := tx.Exec(ctx, insertLeader, group.ID, group.LeaderID); err != nil {
		return storeError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeError(err)
	}
	return nil
}

// GetByID получает группу по ID
func (r *GroupRepository) GetByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	query := `
		SELECT id, name, leader_id, invite_token, created_at
		FROM groups
		WHERE id = $1
	`
	return r.getOne(ctx, query, groupID)
}

// GetByInviteToken получает группу по пригласительному токену
func (r *GroupRepository) GetByInviteToken(ctx context.Context, token string) (*domain.Group, error) {
	query := `
		SELECT id, name, leader_id, invite_token, created_at
		FROM groups
		WHERE invite_token = $1
	`
	group, err := r.getOne(ctx, query, token)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return nil, domain.ErrInviteNotFound
	}
	return group, err
}

func (r *GroupRepository) getOne(ctx context.Context, query string, arg any) (*domain.Group, error) {
	var group domain.Group
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&group.ID,
		&group.Name,
		&group.LeaderID,
		&group.InviteToken,
		&group.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, storeError(err)
	}
	return &group, nil
}

// Delete removes the group if leaderID leads it at the time of the delete;
// memberships go with it through ON DELETE CASCADE. The leadership check and
// the delete are a single statement, so a concurrent leader change wins.
func (r *GroupRepository) Delete(ctx context.Context, groupID uuid.UUID, leaderID string) error {
	query := `
		WITH target AS (
			SELECT id FROM groups WHERE id = $1
		), deleted AS (
			DELETE FROM groups WHERE id = $1 AND leader_id = $2
			RETURNING id
		)
		SELECT EXISTS(SELECT 1 FROM target), EXISTS(SELECT 1 FROM deleted)
	`

	var found, deleted bool
	if err := r.db.QueryRow(ctx, query, groupID, leaderID).Scan(&found, &deleted); err != nil {
		return storeError(err)
	}

	switch {
	case deleted:
		return nil
	case found:
		return fmt.Errorf("%w: only the leader can delete the group", domain.ErrForbidden)
	default:
		return domain.ErrGroupNotFound
	}
}

// ListByMember returns the groups userID belongs to, ordered by join time.
func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]domain.Group, error) {
	query := `
		SELECT g.id, g.name, g.leader_id, g.invite_token, g.created_at
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY gm.joined_at, g.id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	groups := []domain.Group{}
	for rows.Next() {
		var group domain.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.LeaderID, &group.InviteToken, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}

	return groups, nil
}
