package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tastemap/api/internal/models"
)

var (
	ErrVenueNotFound = errors.New("venue not found")

	// ErrNotPending reports a lost resolution race: the venue exists but is
	// no longer in the pending state.
	ErrNotPending = errors.New("venue not pending")
)

const venueColumns = `
	id, name, address, category, description, photo_key, submitted_by,
	status, resolution_reason, resolved_by, resolved_at, created_at, updated_at
`

type VenueRepository struct {
	pool *pgxpool.Pool
}

func NewVenueRepository(pool *pgxpool.Pool) *VenueRepository {
	return &VenueRepository{pool: pool}
}

func (r *VenueRepository) Create(ctx context.Context, venue models.Venue) error {
	const query = `
		INSERT INTO venues (
			id, name, address, category, description, photo_key, submitted_by,
			status, resolution_reason, resolved_by, resolved_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		venue.ID,
		venue.Name,
		venue.Address,
		venue.Category,
		venue.Description,
		venue.PhotoKey,
		venue.SubmittedBy,
		venue.Status,
		venue.ResolutionReason,
		venue.ResolvedBy,
		venue.ResolvedAt,
	)
	return err
}

func (r *VenueRepository) GetByID(ctx context.Context, id string) (models.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// ResolvePending moves a pending venue to a terminal status. The status check
// is part of the UPDATE itself, so two concurrent resolvers cannot both win:
// the loser sees ErrNotPending (or ErrVenueNotFound if the row is gone).
func (r *VenueRepository) ResolvePending(ctx context.Context, id string, status models.VenueStatus, reason *string, resolvedBy string) (models.Venue, error) {
	query := `
		UPDATE venues
		SET status = $2,
		    resolution_reason = $3,
		    resolved_by = $4,
		    resolved_at = $5,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + venueColumns

	now := time.Now()
	venue, err := r.scanOne(r.pool.QueryRow(ctx, query, id, status, reason, resolvedBy, now))
	if err == nil {
		return venue, nil
	}
	if !errors.Is(err, ErrVenueNotFound) {
		return models.Venue{}, err
	}

	// No pending row matched: distinguish missing from already resolved.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return models.Venue{}, getErr
	}
	return models.Venue{}, ErrNotPending
}

// Delete removes the venue and reports the status it had, so callers know
// whether the pending set shrank.
func (r *VenueRepository) Delete(ctx context.Context, id string) (models.VenueStatus, error) {
	const query = `DELETE FROM venues WHERE id = $1 RETURNING status`

	var status models.VenueStatus
	if err := r.pool.QueryRow(ctx, query, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrVenueNotFound
		}
		return "", err
	}
	return status, nil
}

func (r *VenueRepository) CountPending(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM venues WHERE status = 'pending'`

	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *VenueRepository) ListPending(ctx context.Context, limit, offset int) ([]models.Venue, error) {
	query := `
		SELECT ` + venueColumns + `
		FROM venues
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`
	return r.list(ctx, query, limit, offset)
}

func (r *VenueRepository) ListApproved(ctx context.Context, limit, offset int) ([]models.Venue, error) {
	query := `
		SELECT ` + venueColumns + `
		FROM venues
		WHERE status = 'approved'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.list(ctx, query, limit, offset)
}

func (r *VenueRepository) ListBySubmitter(ctx context.Context, accountID string, limit, offset int) ([]models.Venue, error) {
	query := `
		SELECT ` + venueColumns + `
		FROM venues
		WHERE submitted_by = $3
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.list(ctx, query, limit, offset, accountID)
}

func (r *VenueRepository) SetPhotoKey(ctx context.Context, id string, key string) error {
	const query = `UPDATE venues SET photo_key = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVenueNotFound
	}
	return nil
}

func (r *VenueRepository) list(ctx context.Context, query string, args ...any) ([]models.Venue, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []models.Venue
	for rows.Next() {
		venue, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, venue)
	}
	return venues, rows.Err()
}

func (r *VenueRepository) scanOne(row pgx.Row) (models.Venue, error) {
	var venue models.Venue
	if err := row.Scan(
		&venue.ID,
		&venue.Name,
		&venue.Address,
		&venue.Category,
		&venue.Description,
		&venue.PhotoKey,
		&venue.SubmittedBy,
		&venue.Status,
		&venue.ResolutionReason,
		&venue.ResolvedBy,
		&venue.ResolvedAt,
		&venue.CreatedAt,
		&venue.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Venue{}, ErrVenueNotFound
		}
		return models.Venue{}, err
	}
	return venue, nil
}
