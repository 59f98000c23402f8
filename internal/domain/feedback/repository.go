package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/doorwayhq/doorway-api/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the append-only correction/confirmation log. Writes are
// INSERT-only; "latest wins" ordering lives on the read side so concurrent
// writers never conflict.
type Repository interface {
	InsertCorrection(ctx context.Context, placeID string, entrance types.GeoPoint, accessible bool) (*types.Correction, error)
	InsertConfirmation(ctx context.Context, placeID, fingerprint string) (*types.Confirmation, error)
	LatestCorrection(ctx context.Context, placeID string) (*types.Correction, error)
	ConfirmationStats(ctx context.Context, placeID string) (types.ConfirmationStats, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
	db     DB
}

func NewRepository(db DB, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		db:     db,
	}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func (r *RepositoryImpl) InsertCorrection(ctx context.Context, placeID string, entrance types.GeoPoint, accessible bool) (*types.Correction, error) {
	query := `
        INSERT INTO entrance_corrections (place_id, lat, lon, accessible)
        VALUES ($1, $2, $3, $4)
        RETURNING id, submitted_at
    `
	correction := &types.Correction{
		PlaceID:    placeID,
		Entrance:   entrance,
		Accessible: accessible,
	}
	err := r.db.QueryRow(ctx, query, placeID, entrance.Lat, entrance.Lon, accessible).
		Scan(&correction.ID, &correction.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert correction: %w", err)
	}
	return correction, nil
}

func (r *RepositoryImpl) InsertConfirmation(ctx context.Context, placeID, fingerprint string) (*types.Confirmation, error) {
	query := `
        INSERT INTO entrance_confirmations (place_id, fingerprint)
        VALUES ($1, $2)
        RETURNING id, submitted_at
    `
	confirmation := &types.Confirmation{
		PlaceID:     placeID,
		Fingerprint: fingerprint,
	}
	err := r.db.QueryRow(ctx, query, placeID, fingerprint).
		Scan(&confirmation.ID, &confirmation.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert confirmation: %w", err)
	}
	return confirmation, nil
}

// LatestCorrection returns the most recent correction for a place, or nil
// when none exists. Readers sort by timestamp, never by log order.
func (r *RepositoryImpl) LatestCorrection(ctx context.Context, placeID string) (*types.Correction, error) {
	query, args, err := psql.
		Select("id", "place_id", "lat", "lon", "accessible", "submitted_at").
		From("entrance_corrections").
		Where(squirrel.Eq{"place_id": placeID}).
		OrderBy("submitted_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build latest correction query: %w", err)
	}

	var correction types.Correction
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&correction.ID,
		&correction.PlaceID,
		&correction.Entrance.Lat,
		&correction.Entrance.Lon,
		&correction.Accessible,
		&correction.SubmittedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest correction: %w", err)
	}
	return &correction, nil
}

func (r *RepositoryImpl) ConfirmationStats(ctx context.Context, placeID string) (types.ConfirmationStats, error) {
	query, args, err := psql.
		Select("COUNT(*)", "MAX(submitted_at)").
		From("entrance_confirmations").
		Where(squirrel.Eq{"place_id": placeID}).
		ToSql()
	if err != nil {
		return types.ConfirmationStats{}, fmt.Errorf("failed to build confirmation stats query: %w", err)
	}

	var (
		count int64
		last  *time.Time
	)
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count, &last); err != nil {
		return types.ConfirmationStats{}, fmt.Errorf("failed to read confirmation stats: %w", err)
	}
	return types.ConfirmationStats{Count: int(count), LastConfirmedAt: last}, nil
}
