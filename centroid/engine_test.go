package centroid_test

import (
	"context"
	"testing"
	"time"

	"github.com/kazimov/jobtrail/centroid"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	ports.Store
	listings []*domain.Listing
	prev     *domain.MarketCentroid
}

func (m *mockStore) ListListings(ctx context.Context, f ports.ListingFilter) ([]*domain.Listing, error) {
	var out []*domain.Listing
	for _, l := range m.listings {
		if l.PrimaryArchetype != f.Archetype {
			continue
		}
		if l.FirstSeenAt.Before(f.SeenAfter) || l.FirstSeenAt.After(f.SeenBefore) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *mockStore) GetLatestCentroid(ctx context.Context, archetype domain.Archetype) (*domain.MarketCentroid, error) {
	if m.prev == nil {
		return nil, domain.ErrCentroidInsufficientData
	}
	return m.prev, nil
}

func (m *mockStore) UpsertResumeVariant(ctx context.Context, v *domain.ResumeVariant) error { return nil }

func mkListing(archetype domain.Archetype, seenAt time.Time, vec domain.Vector) *domain.Listing {
	return &domain.Listing{ID: seenAt.String(), PrimaryArchetype: archetype, FirstSeenAt: seenAt, Embedding: domain.Embedding{Vector: vec, ModelVersion: "v1"}}
}

func TestComputeWindow_InsufficientDataBelowFive(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{}
	for i := 0; i < 4; i++ {
		store.listings = append(store.listings, mkListing(domain.Builder, now.AddDate(0, 0, -1), domain.Vector{1, 0}))
	}
	e := centroid.New(store, centroid.DefaultConfig(), nil)

	_, err := e.ComputeWindow(context.Background(), domain.Builder, now)
	require.ErrorIs(t, err, domain.ErrCentroidInsufficientData)
}

func TestComputeWindow_ExactlyFiveProducesCentroid(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{}
	for i := 0; i < 5; i++ {
		store.listings = append(store.listings, mkListing(domain.Builder, now.AddDate(0, 0, -1), domain.Vector{1, 0}))
	}
	e := centroid.New(store, centroid.DefaultConfig(), nil)

	c, err := e.ComputeWindow(context.Background(), domain.Builder, now)
	require.NoError(t, err)
	require.Equal(t, 5, c.JDCount)
	require.False(t, c.HasPrevious)
}

func TestComputeWindow_ShiftFromPrevious(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &mockStore{prev: &domain.MarketCentroid{Vector: domain.Vector{1, 0}}}
	for i := 0; i < 5; i++ {
		store.listings = append(store.listings, mkListing(domain.Builder, now.AddDate(0, 0, -1), domain.Vector{0, 1}))
	}
	e := centroid.New(store, centroid.DefaultConfig(), nil)

	c, err := e.ComputeWindow(context.Background(), domain.Builder, now)
	require.NoError(t, err)
	require.True(t, c.HasPrevious)
	require.InDelta(t, 1.0, c.ShiftFromPrev, 1e-9) // orthogonal vectors: cosine 0, distance 1
}
