package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/store"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

// Mirrors modules/analytics/repository/analytics_repository_test.go's use
// of pgxmock: mock the pool, assert on the query shape, assert on the
// decoded result.
func TestPostgresStore_GetListingByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := store.NewPostgresStoreWithPool(mock, "local-fnv-v1")

	now := time.Now().UTC().Truncate(time.Second)
	rows := pgxmock.NewRows([]string{
		"id", "external_id", "title", "hiring_entity", "full_text", "first_seen_at",
		"search_keyword", "role_type", "seniority", "technology_tags", "archetype_scores",
		"primary_archetype", "embedding", "embedding_model", "intelligence_only", "classified",
		"classify_attempts", "created_at", "updated_at",
	}).AddRow(
		"listing-1", "ext-1", "Platform Engineer", "Acme", "build things", now,
		"", "ic", "senior", []byte(`[]`), []byte(`{"builder":0.8}`),
		"builder", []byte{}, "local-fnv-v1", false, true, 0, now, now,
	)

	mock.ExpectQuery("SELECT .* FROM listings WHERE id = \\$1").WithArgs("listing-1").WillReturnRows(rows)

	got, err := s.GetListingByID(context.Background(), "listing-1")
	require.NoError(t, err)
	require.Equal(t, domain.Builder, got.PrimaryArchetype)
	require.Equal(t, 0.8, got.ArchetypeScores[domain.Builder])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetListingByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := store.NewPostgresStoreWithPool(mock, "local-fnv-v1")
	mock.ExpectQuery("SELECT .* FROM listings WHERE id = \\$1").WithArgs("missing").WillReturnError(pgxNoRows())

	_, err = s.GetListingByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestPostgresStore_OpenBatch_UniqueViolationMapsToAlreadyOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := store.NewPostgresStoreWithPool(mock, "local-fnv-v1")
	mock.ExpectExec("INSERT INTO batches").WillReturnError(uniqueViolationErr())

	_, err = s.OpenBatch(context.Background(), domain.Builder, time.Now())
	require.ErrorIs(t, err, domain.ErrBatchAlreadyOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}
