package batch_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kazimov/jobtrail/batch"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
	"github.com/kazimov/jobtrail/selector"
	"github.com/stretchr/testify/require"
)

// mockStore implements only what Coordinator needs; embedding the
// interface keeps unused methods from requiring stub bodies, mirroring
// the teacher's hand-rolled Mock*Repository test pattern.
type mockStore struct {
	ports.Store
	openBatch   *domain.Batch
	applications map[string]*domain.Application
	batchCounts map[string]int
}

func newMockStore() *mockStore {
	return &mockStore{applications: map[string]*domain.Application{}, batchCounts: map[string]int{}}
}

func (m *mockStore) OpenBatch(ctx context.Context, archetype domain.Archetype, now time.Time) (*domain.Batch, error) {
	if m.openBatch != nil && m.openBatch.ClosedAt.IsZero() {
		return nil, domain.ErrBatchAlreadyOpen
	}
	m.openBatch = &domain.Batch{ID: uuid.NewString(), Archetype: archetype, OpenedAt: now}
	return m.openBatch, nil
}

func (m *mockStore) CloseBatch(ctx context.Context, batchID string, now time.Time) error {
	if m.openBatch != nil && m.openBatch.ID == batchID {
		m.openBatch.ClosedAt = now
	}
	return nil
}

func (m *mockStore) GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (*domain.Application, error) {
	for _, a := range m.applications {
		if a.ListingID == listingID && a.BatchID == batchID {
			return a, nil
		}
	}
	return nil, domain.ErrApplicationNotFound
}

func (m *mockStore) InsertApplication(ctx context.Context, a *domain.Application) error {
	m.applications[a.ID] = a
	return nil
}

func (m *mockStore) IncrementBatchCount(ctx context.Context, batchID string) error {
	m.batchCounts[batchID]++
	if m.openBatch != nil && m.openBatch.ID == batchID {
		m.openBatch.AppCount++
	}
	return nil
}

type mockSubmitter struct{ fail bool }

func (s *mockSubmitter) Submit(ctx context.Context, plan ports.ApplicationPlan) ports.SubmissionOutcome {
	if s.fail {
		return ports.SubmissionOutcome{Success: false, Transient: true}
	}
	return ports.SubmissionOutcome{Success: true}
}

func TestOpenBatch_ProfileMismatchRejected(t *testing.T) {
	c := batch.New(newMockStore(), &mockSubmitter{})
	_, err := c.OpenBatch(context.Background(), domain.Builder, domain.Fixer)
	require.ErrorIs(t, err, domain.ErrBatchProfileMismatch)
}

func TestOpenBatch_SecondOpenFailsWhileFirstOpen(t *testing.T) {
	store := newMockStore()
	c := batch.New(store, &mockSubmitter{})

	_, err := c.OpenBatch(context.Background(), domain.Builder, domain.Builder)
	require.NoError(t, err)

	_, err = c.OpenBatch(context.Background(), domain.Fixer, domain.Fixer)
	require.ErrorIs(t, err, domain.ErrBatchAlreadyOpen)
}

func TestEmit_RecordsApplicationOnSuccessAndAdvancesCount(t *testing.T) {
	store := newMockStore()
	c := batch.New(store, &mockSubmitter{})

	b, err := c.OpenBatch(context.Background(), domain.Builder, domain.Builder)
	require.NoError(t, err)

	listing := &domain.Listing{ID: "listing-1", HiringEntity: "Acme", Title: "Engineer"}
	c.Enqueue(listing, selector.Decision{Archetype: domain.Builder, CombinedScore: 0.4})

	variant := &domain.ResumeVariant{Archetype: domain.Builder, CurrentVersionID: "v3"}
	results, err := c.Emit(context.Background(), b, variant)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Submitted)
	require.Equal(t, "v3", results[0].Application.VersionIdentifier)
	require.Equal(t, domain.Builder, results[0].Application.ProfileState)
	require.Equal(t, 1, store.batchCounts[b.ID])
}

func TestEmit_SubmitterFailureDoesNotAdvanceCount(t *testing.T) {
	store := newMockStore()
	c := batch.New(store, &mockSubmitter{fail: true})

	b, err := c.OpenBatch(context.Background(), domain.Builder, domain.Builder)
	require.NoError(t, err)

	listing := &domain.Listing{ID: "listing-1", HiringEntity: "Acme", Title: "Engineer"}
	c.Enqueue(listing, selector.Decision{Archetype: domain.Builder, CombinedScore: 0.4})

	variant := &domain.ResumeVariant{Archetype: domain.Builder, CurrentVersionID: "v3"}
	results, err := c.Emit(context.Background(), b, variant)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].Submitted)
	require.True(t, results[0].Application.SubmissionFailed)
	require.Equal(t, 0, store.batchCounts[b.ID])
}

func TestEnqueue_IntelligenceOnlySkipsQueue(t *testing.T) {
	c := batch.New(newMockStore(), &mockSubmitter{})
	listing := &domain.Listing{ID: "listing-1", IntelligenceOnly: true}
	c.Enqueue(listing, selector.Decision{Archetype: domain.Builder, IntelligenceOnly: true})

	summary := c.ListQueue()
	require.Equal(t, 1, summary.IntelligenceOnly)
	require.Equal(t, 0, summary.PerArchetype[domain.Builder].Count)
}
