package matcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/matcher"
	"github.com/kazimov/jobtrail/ports"
	"github.com/stretchr/testify/require"
)

type callLogFakeStore struct {
	ports.Store
	apps     []*domain.Application
	listings map[string]*domain.Listing
	updated  *domain.Application
	inserted *domain.CallLog
}

func (f *callLogFakeStore) ListOpenApplications(ctx context.Context, since time.Time) ([]*domain.Application, error) {
	return f.apps, nil
}

func (f *callLogFakeStore) GetListingByID(ctx context.Context, id string) (*domain.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return l, nil
}

func (f *callLogFakeStore) UpdateApplicationOutcome(ctx context.Context, a *domain.Application) error {
	f.updated = a
	return nil
}

func (f *callLogFakeStore) InsertCallLog(ctx context.Context, c *domain.CallLog) error {
	f.inserted = c
	return nil
}

func TestMatchCallLog_AutoMatchUpdatesOutcome(t *testing.T) {
	submitted := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &callLogFakeStore{
		apps: []*domain.Application{
			{ID: "app-1", ListingID: "listing-1", SubmittedAt: submitted, Outcome: domain.StageSubmitted},
		},
		listings: map[string]*domain.Listing{
			"listing-1": {ID: "listing-1", HiringEntity: "Woolworths", Title: "Senior Data Engineer"},
		},
	}
	m := matcher.New(store, matcher.DefaultConfig())

	log, err := m.MatchCallLog(context.Background(), ports.CallLogEntry{
		Phone:        "+61-400-000-000",
		HiringEntity: "Woolworths",
		Title:        "Senior Data Engineer",
		Outcome:      "they want to schedule an interview next week",
		CallDate:     submitted.AddDate(0, 0, 8),
	})

	require.NoError(t, err)
	require.Equal(t, "app-1", log.MatchedApplicationID)
	require.False(t, log.RequiresManualReview)
	require.NotNil(t, store.updated)
	require.Equal(t, domain.StageInterview, store.updated.Outcome)
	require.NotNil(t, store.inserted)
}

func TestMatchCallLog_AmbiguousRequiresManualReview(t *testing.T) {
	submitted := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &callLogFakeStore{
		apps: []*domain.Application{
			{ID: "app-1", ListingID: "listing-1", SubmittedAt: submitted},
			{ID: "app-2", ListingID: "listing-2", SubmittedAt: submitted},
		},
		listings: map[string]*domain.Listing{
			"listing-1": {ID: "listing-1", HiringEntity: "Acme Corp Pty", Title: "Senior Data Engineer"},
			"listing-2": {ID: "listing-2", HiringEntity: "Acme Holdings", Title: "Senior Data Engineer"},
		},
	}
	m := matcher.New(store, matcher.DefaultConfig())

	log, err := m.MatchCallLog(context.Background(), ports.CallLogEntry{
		Phone:        "+61-400-000-001",
		HiringEntity: "Acme",
		Title:        "Senior Data Engineer",
		CallDate:     submitted.AddDate(0, 0, 40), // outside the 30-day bonus window for both
	})

	require.NoError(t, err)
	require.Empty(t, log.MatchedApplicationID)
	require.True(t, log.RequiresManualReview)
	require.NotEmpty(t, log.CandidateApplicationIDs)
	require.LessOrEqual(t, len(log.CandidateApplicationIDs), 3)
	require.Nil(t, store.updated, "an ambiguous call log must not mutate any application")
}

func TestMatchCallLog_NoCandidatesIsUnmatched(t *testing.T) {
	store := &callLogFakeStore{listings: map[string]*domain.Listing{}}
	m := matcher.New(store, matcher.DefaultConfig())

	log, err := m.MatchCallLog(context.Background(), ports.CallLogEntry{
		Phone:        "+61-400-000-002",
		HiringEntity: "Totally Unrelated Inc",
		Title:        "Senior Data Engineer",
		CallDate:     time.Now(),
	})

	require.NoError(t, err)
	require.Empty(t, log.MatchedApplicationID)
	require.False(t, log.RequiresManualReview)
}
