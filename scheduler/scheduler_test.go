package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kazimov/jobtrail/batch"
	"github.com/kazimov/jobtrail/centroid"
	"github.com/kazimov/jobtrail/classifier"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/internal/adapters/embedding"
	"github.com/kazimov/jobtrail/matcher"
	"github.com/kazimov/jobtrail/ports"
	"github.com/kazimov/jobtrail/rewrite"
	"github.com/kazimov/jobtrail/scheduler"
	"github.com/kazimov/jobtrail/selector"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLock struct {
	mu     sync.Mutex
	holder map[string]string
}

func newFakeLock() *fakeLock { return &fakeLock{holder: map[string]string{}} }

func (f *fakeLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.holder[name]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	f.holder[name] = token
	return token, true, nil
}

func (f *fakeLock) Release(ctx context.Context, name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holder[name] == token {
		delete(f.holder, name)
	}
	return nil
}

type fakeStore struct {
	ports.Store
	listings  map[string]*domain.Listing
	intelOnly map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{listings: map[string]*domain.Listing{}, intelOnly: map[string]bool{}}
}

func (f *fakeStore) InsertListing(ctx context.Context, l *domain.Listing) error {
	l.ID = uuid.NewString()
	f.listings[l.ID] = l
	return nil
}

func (f *fakeStore) UpdateListingClassification(ctx context.Context, l *domain.Listing) error {
	f.listings[l.ID] = l
	return nil
}

func (f *fakeStore) SetIntelligenceOnly(ctx context.Context, listingID string, value bool) error {
	f.intelOnly[listingID] = value
	return nil
}

func TestOnListingInsert_ClassifiesAndEnqueues(t *testing.T) {
	store := newFakeStore()
	embedder := embedding.NewLocal(32)
	cls, err := classifier.New(context.Background(), classifier.DefaultSeedDictionary(), embedder)
	require.NoError(t, err)

	coord := batch.New(store, nil)
	m := matcher.New(store, matcher.DefaultConfig())
	ce := centroid.New(store, centroid.DefaultConfig(), nil)
	rt := rewrite.New(store, rewrite.DefaultConfig())

	s := scheduler.New(store, cls, coord, m, ce, rt, nil, newFakeLock(), nil, selector.DefaultConfig(), scheduler.DefaultConfig(), zap.NewNop())

	scraped := ports.ScrapedListing{
		ExternalID: "ext-1", Title: "Platform Engineer", HiringEntity: "Acme",
		FullText:   "Design and implement a new cloud-native data platform from the ground up.",
		FirstSeenAt: time.Now(),
	}
	variant := &domain.ResumeVariant{Archetype: domain.Builder, AlignmentScore: 0.9, CurrentVersionID: "v1"}

	err = s.OnListingInsert(context.Background(), scraped, map[domain.Archetype]*domain.ResumeVariant{domain.Builder: variant})
	require.NoError(t, err)

	require.Len(t, store.listings, 1)
	summary := coord.ListQueue()
	require.Equal(t, 1, summary.PerArchetype[domain.Builder].Count)
}

func TestWithLock_SkipsWhenAlreadyHeld(t *testing.T) {
	lock := newFakeLock()
	token, ok, err := lock.TryAcquire(context.Background(), "job:inbox_poll", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer lock.Release(context.Background(), "job:inbox_poll", token)

	_, ok2, err := lock.TryAcquire(context.Background(), "job:inbox_poll", time.Minute)
	require.NoError(t, err)
	require.False(t, ok2, "a second acquire of the same kind while one is in flight must be skipped")

	s := scheduler.New(newFakeStore(), nil, nil, nil, nil, nil, nil, lock, nil, selector.DefaultConfig(), scheduler.DefaultConfig(), zap.NewNop())
	require.NoError(t, s.RunInboxPoll(context.Background()), "RunInboxPoll must skip its tick while job:inbox_poll is held")
}
