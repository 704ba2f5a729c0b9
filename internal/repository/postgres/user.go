package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/groupmap/internal/domain"
)

// UserRepository реализует repository.UserRepository для PostgreSQL
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository создает новый экземпляр UserRepository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// upsertUserQuery writes every supplied field in one statement, so two racing
// upserts for the same id leave exactly one of the submitted states.
// The location is skipped when the payload carries a reported_at older than
// the stored one; payloads without reported_at always win (last write wins).
const upsertUserQuery = `
	INSERT INTO users (id, display_name, avatar_url, email, longitude, latitude, location_reported_at)
	VALUES ($1, COALESCE($2::text, ''), COALESCE($3::text, ''), COALESCE($4::text, ''),
	        $5::double precision, $6::double precision, $7::timestamptz)
	ON CONFLICT (id) DO UPDATE
	SET display_name = COALESCE($2::text, users.display_name),
	    avatar_url   = COALESCE($3::text, users.avatar_url),
	    email        = COALESCE($4::text, users.email),
	    longitude = CASE
	        WHEN $5::double precision IS NULL OR ($7::timestamptz IS NOT NULL
	             AND users.location_reported_at IS NOT NULL
	             AND $7::timestamptz < users.location_reported_at)
	        THEN users.longitude ELSE EXCLUDED.longitude END,
	    latitude = CASE
	        WHEN $5::double precision IS NULL OR ($7::timestamptz IS NOT NULL
	             AND users.location_reported_at IS NOT NULL
	             AND $7::timestamptz < users.location_reported_at)
	        THEN users.latitude ELSE EXCLUDED.latitude END,
	    location_reported_at = CASE
	        WHEN $5::double precision IS NULL OR ($7::timestamptz IS NOT NULL
	             AND users.location_reported_at IS NOT NULL
	             AND $7::timestamptz < users.location_reported_at)
	        THEN users.location_reported_at ELSE EXCLUDED.location_reported_at END,
	    updated_at = NOW()
	RETURNING id, display_name, avatar_url, email, longitude, latitude
`

// Upsert создает пользователя или обновляет переданные поля существующего
func (r *UserRepository) Upsert(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.PositionedUser, error) {
	var lng, lat *float64
	if update.Location != nil {
		lng, lat = &update.Location.Longitude, &update.Location.Latitude
	}

	row := r.db.QueryRow(ctx, upsertUserQuery,
		userID,
		update.DisplayName,
		update.AvatarURL,
		update.Email,
		lng,
		lat,
		update.ReportedAt,
	)

	user, err := scanUser(row)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*domain.PositionedUser, error) {
	query := `
		SELECT id, display_name, avatar_url, email, longitude, latitude
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storeError(err)
	}
	return user, nil
}

// scanUser reads id, display_name, avatar_url, email, longitude, latitude.
// A NULL coordinate pair becomes a nil Location, never (0, 0).
func scanUser(row pgx.Row) (*domain.PositionedUser, error) {
	var (
		user     domain.PositionedUser
		lng, lat *float64
	)
	if err := row.Scan(&user.ID, &user.DisplayName, &user.AvatarURL, &user.Email, &lng, &lat); err != nil {
		return nil, err
	}
	user.Location = location(lng, lat)
	return &user, nil
}

func location(lng, lat *float64) *domain.Location {
	if lng == nil || lat == nil {
		return nil
	}
	return &domain.Location{Longitude: *lng, Latitude: *lat}
}
