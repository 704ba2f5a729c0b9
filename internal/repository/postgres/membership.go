package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/groupmap/internal/domain"
	"github.com/aidar/groupmap/internal/repository"
)

// MembershipRepository реализует repository.MembershipRepository для PostgreSQL
type MembershipRepository struct {
	db *pgxpool.Pool
}

// NewMembershipRepository создает новый экземпляр MembershipRepository
func NewMembershipRepository(db *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Add inserts exactly one membership row. The primary key turns a repeated
// join into domain.ErrAlreadyMember, even under concurrent requests.
func (r *MembershipRepository) Add(ctx context.Context, groupID uuid.UUID, userID string) (*domain.Membership, error) {
	query := `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		RETURNING group_id, user_id, joined_at
	`

	var m domain.Membership
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.JoinedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case codeUniqueViolation:
			return nil, domain.ErrAlreadyMember
		case codeForeignKeyViolation:
			return nil, domain.ErrGroupNotFound
		}
		return nil, storeError(err)
	}
	return &m, nil
}

// Leave removes userID from the group inside one transaction that also keeps
// the leader invariant: a departing leader hands over to successor's pick,
// and a leader leaving an otherwise empty group deletes it.
func (r *MembershipRepository) Leave(ctx context.Context, groupID uuid.UUID, userID string, successor repository.SuccessorFunc) (*domain.LeaveResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	// Lock the group row so concurrent leaves serialize on leadership.
	var leaderID string
	err = tx.QueryRow(ctx, `SELECT leader_id FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&leaderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotMember
		}
		return nil, storeError(err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return nil, storeError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrNotMember
	}

	result := &domain.LeaveResult{GroupID: groupID, Outcome: domain.LeaveRemoved}

	if leaderID == userID {
		remaining, err := listMemberships(ctx, tx, groupID)
		if err != nil {
			return nil, err
		}

		next, ok := "", false
		if successor != nil {
			next, ok = successor(remaining)
		}

		if ok {
			if _, err := tx.Exec(ctx, `UPDATE groups SET leader_id = $2 WHERE id = $1`, groupID, next); err != nil {
				return nil, storeError(err)
			}
			result.Outcome = domain.LeaveLeaderChanged
			result.NewLeader = next
		} else {
			if _, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID); err != nil {
				return nil, storeError(err)
			}
			result.Outcome = domain.LeaveGroupDissolved
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError(err)
	}
	return result, nil
}

func listMemberships(ctx context.Context, tx pgx.Tx, groupID uuid.UUID) ([]domain.Membership, error) {
	query := `
		SELECT group_id, user_id, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, user_id
	`

	rows, err := tx.Query(ctx, query, groupID)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	var memberships []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}
	return memberships, nil
}

// IsMember проверяет членство пользователя в группе
func (r *MembershipRepository) IsMember(ctx context.Context, groupID uuid.UUID, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&exists); err != nil {
		return false, storeError(err)
	}
	return exists, nil
}

// ListMembers returns every member of the group with their current position.
// Members without a users row come back with only the id set and no location.
// An unknown group yields an empty slice.
func (r *MembershipRepository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]domain.PositionedUser, error) {
	query := `
		SELECT gm.user_id,
		       COALESCE(u.display_name, ''),
		       COALESCE(u.avatar_url, ''),
		       COALESCE(u.email, ''),
		       u.longitude,
		       u.latitude
		FROM group_members gm
		LEFT JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at, gm.user_id
	`

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	members := []domain.PositionedUser{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}
	return members, nil
}

// SharesGroup проверяет, состоят ли два пользователя хотя бы в одной общей группе
func (r *MembershipRepository) SharesGroup(ctx context.Context, userA, userB string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM group_members a
			JOIN group_members b ON b.group_id = a.group_id
			WHERE a.user_id = $1 AND b.user_id = $2
		)
	`

	var shared bool
	if err := r.db.QueryRow(ctx, query, userA, userB).Scan(&shared); err != nil {
		return false, storeError(err)
	}
	return shared, nil
}
