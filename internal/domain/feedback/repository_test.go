package feedback

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doorwayhq/doorway-api/internal/types"
)

func newMockRepo(t *testing.T) (*RepositoryImpl, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock, slog.Default()), mock
}

func TestInsertCorrection(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO entrance_corrections").
		WithArgs("place-1", 47.6001, -122.2998, true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "submitted_at"}).AddRow(int64(7), now))

	correction, err := repo.InsertCorrection(context.Background(), "place-1",
		types.GeoPoint{Lat: 47.6001, Lon: -122.2998}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), correction.ID)
	assert.Equal(t, "place-1", correction.PlaceID)
	assert.True(t, correction.Accessible)
	assert.Equal(t, now, correction.SubmittedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConfirmation(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO entrance_confirmations").
		WithArgs("place-1", "fp-abc").
		WillReturnRows(pgxmock.NewRows([]string{"id", "submitted_at"}).AddRow(int64(3), now))

	confirmation, err := repo.InsertConfirmation(context.Background(), "place-1", "fp-abc")
	require.NoError(t, err)
	assert.Equal(t, int64(3), confirmation.ID)
	assert.Equal(t, "fp-abc", confirmation.Fingerprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestCorrectionOrdersByTimestamp(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, place_id, lat, lon, accessible, submitted_at FROM entrance_corrections").
		WithArgs("place-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "place_id", "lat", "lon", "accessible", "submitted_at"}).
			AddRow(int64(9), "place-1", 47.6, -122.3, false, now))

	correction, err := repo.LatestCorrection(context.Background(), "place-1")
	require.NoError(t, err)
	require.NotNil(t, correction)
	assert.Equal(t, int64(9), correction.ID)
	assert.InDelta(t, 47.6, correction.Entrance.Lat, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestCorrectionNone(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, place_id, lat, lon, accessible, submitted_at FROM entrance_corrections").
		WithArgs("place-2").
		WillReturnRows(pgxmock.NewRows([]string{"id", "place_id", "lat", "lon", "accessible", "submitted_at"}))

	correction, err := repo.LatestCorrection(context.Background(), "place-2")
	require.NoError(t, err)
	assert.Nil(t, correction, "no correction is a normal outcome, not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmationStats(t *testing.T) {
	repo, mock := newMockRepo(t)
	last := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\), MAX\(submitted_at\) FROM entrance_confirmations`).
		WithArgs("place-1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "max"}).AddRow(int64(4), &last))

	stats, err := repo.ConfirmationStats(context.Background(), "place-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Count)
	require.NotNil(t, stats.LastConfirmedAt)
	assert.Equal(t, last, *stats.LastConfirmedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmationStatsEmpty(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), MAX\(submitted_at\) FROM entrance_confirmations`).
		WithArgs("place-3").
		WillReturnRows(pgxmock.NewRows([]string{"count", "max"}).AddRow(int64(0), nil))

	stats, err := repo.ConfirmationStats(context.Background(), "place-3")
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
	assert.Nil(t, stats.LastConfirmedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
