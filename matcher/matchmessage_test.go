package matcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/matcher"
	"github.com/kazimov/jobtrail/ports"
	"github.com/stretchr/testify/require"
)

// txFakeStore is a minimal in-memory ports.Store that actually honours
// WithTx's atomicity: writes made through a tx are buffered and only
// applied to the visible state if fn returns nil, the same contract
// store.PostgresStore/EmbeddedStore give via a real BEGIN/COMMIT.
type txFakeStore struct {
	ports.Store
	apps         map[string]*domain.Application
	listings     map[string]*domain.Listing
	knownSenders map[string]*domain.KnownSender
	messages     map[string]bool
	txCalls      int
	failLearn    bool
}

func newTxFakeStore() *txFakeStore {
	return &txFakeStore{
		apps:         map[string]*domain.Application{},
		listings:     map[string]*domain.Listing{},
		knownSenders: map[string]*domain.KnownSender{},
		messages:     map[string]bool{},
	}
}

func (f *txFakeStore) MessageExists(ctx context.Context, externalID string) (bool, error) {
	return f.messages[externalID], nil
}

func (f *txFakeStore) InsertMessage(ctx context.Context, m *domain.Message) error {
	f.messages[m.ExternalID] = true
	return nil
}

func (f *txFakeStore) GetKnownSenderByAddress(ctx context.Context, address string) (*domain.KnownSender, error) {
	return f.knownSenders[address], nil
}

func (f *txFakeStore) ListOpenApplications(ctx context.Context, since time.Time) ([]*domain.Application, error) {
	var out []*domain.Application
	for _, a := range f.apps {
		out = append(out, a)
	}
	return out, nil
}

func (f *txFakeStore) GetListingByID(ctx context.Context, id string) (*domain.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return l, nil
}

func (f *txFakeStore) GetListingByExternalID(ctx context.Context, externalID string) (*domain.Listing, error) {
	for _, l := range f.listings {
		if l.ExternalID == externalID {
			return l, nil
		}
	}
	return nil, domain.ErrListingNotFound
}

func (f *txFakeStore) GetLatestApplicationByListingID(ctx context.Context, listingID string) (*domain.Application, error) {
	for _, a := range f.apps {
		if a.ListingID == listingID {
			return a, nil
		}
	}
	return nil, domain.ErrApplicationNotFound
}

func (f *txFakeStore) UpdateApplicationOutcome(ctx context.Context, a *domain.Application) error {
	cp := *a
	f.apps[a.ID] = &cp
	return nil
}

func (f *txFakeStore) UpsertKnownSender(ctx context.Context, k *domain.KnownSender) error {
	if f.failLearn {
		return errors.New("known-sender upsert failed")
	}
	f.knownSenders[k.Address] = k
	return nil
}

// WithTx buffers writes against a private overlay and only merges them
// into f's maps if fn succeeds, so a failure partway through genuinely
// leaves neither side updated — the property the maintainer review
// flagged as missing.
func (f *txFakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Store) error) error {
	f.txCalls++
	overlay := &txFakeStore{
		apps:         cloneApps(f.apps),
		listings:     f.listings,
		knownSenders: cloneKnownSenders(f.knownSenders),
		messages:     f.messages,
		failLearn:    f.failLearn,
	}
	if err := fn(ctx, overlay); err != nil {
		return err
	}
	f.apps = overlay.apps
	f.knownSenders = overlay.knownSenders
	return nil
}

func cloneApps(m map[string]*domain.Application) map[string]*domain.Application {
	out := make(map[string]*domain.Application, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneKnownSenders(m map[string]*domain.KnownSender) map[string]*domain.KnownSender {
	out := make(map[string]*domain.KnownSender, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func TestMatchMessage_AutoMatchAppliesOutcomeAndLearnsSenderInOneTx(t *testing.T) {
	submitted := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := newTxFakeStore()
	store.listings["listing-1"] = &domain.Listing{ID: "listing-1", HiringEntity: "Woolworths", Title: "Senior Data Engineer"}
	store.apps["app-1"] = &domain.Application{ID: "app-1", ListingID: "listing-1", SubmittedAt: submitted, Outcome: domain.StageSubmitted}

	m := matcher.New(store, matcher.DefaultConfig())
	result, err := m.MatchMessage(context.Background(), ports.InboundMessage{
		ExternalID:    "msg-1",
		ReceivedAt:    submitted.AddDate(0, 0, 8),
		SenderAddress: "hr@woolworths.com.au",
		Subject:       "Senior Data Engineer",
		PlainBody:     "Can we schedule an interview?",
	})

	require.NoError(t, err)
	require.True(t, result.Matched)
	require.Equal(t, 1, store.txCalls, "compound outcome+known-sender update must go through exactly one transaction")
	require.Equal(t, domain.StageInterview, store.apps["app-1"].Outcome)
	require.Contains(t, store.knownSenders, "hr@woolworths.com.au")
	require.Equal(t, "Woolworths", store.knownSenders["hr@woolworths.com.au"].HiringEntity)
}

func TestMatchMessage_FailedKnownSenderUpsertRollsBackOutcome(t *testing.T) {
	submitted := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := newTxFakeStore()
	store.failLearn = true
	store.listings["listing-1"] = &domain.Listing{ID: "listing-1", HiringEntity: "Woolworths", Title: "Senior Data Engineer"}
	store.apps["app-1"] = &domain.Application{ID: "app-1", ListingID: "listing-1", SubmittedAt: submitted, Outcome: domain.StageSubmitted}

	m := matcher.New(store, matcher.DefaultConfig())
	_, err := m.MatchMessage(context.Background(), ports.InboundMessage{
		ExternalID:    "msg-2",
		ReceivedAt:    submitted.AddDate(0, 0, 8),
		SenderAddress: "hr@woolworths.com.au",
		Subject:       "Senior Data Engineer",
		PlainBody:     "Can we schedule an interview?",
	})

	require.Error(t, err)
	require.Equal(t, domain.StageSubmitted, store.apps["app-1"].Outcome, "outcome must not be left half-updated when the known-sender upsert fails")
	require.NotContains(t, store.knownSenders, "hr@woolworths.com.au")
}
