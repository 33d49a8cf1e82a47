package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
	"github.com/kazimov/jobtrail/store"
	"github.com/stretchr/testify/require"
)

func openTestEmbedded(t *testing.T, embeddingModel string) *store.EmbeddedStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobtrail-test.db")
	s, err := store.OpenEmbedded(context.Background(), path, embeddingModel)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmbeddedStore_ListingRoundTrip(t *testing.T) {
	s := openTestEmbedded(t, "local-fnv-v1")
	ctx := context.Background()

	listing := domain.NewListing("", "ext-1", "Platform Engineer", "Acme", "build a new platform", "jobtrail-seed", time.Now().UTC())
	listing.RoleType = domain.RoleContract
	listing.ArchetypeScores = domain.ScoreMap{domain.Builder: 0.9, domain.Fixer: 0.1}
	listing.PrimaryArchetype = domain.Builder
	listing.Embedding = domain.Embedding{Vector: domain.Vector{0.1, 0.2, 0.3}, ModelVersion: "local-fnv-v1"}
	listing.Classified = true

	require.NoError(t, s.InsertListing(ctx, listing))

	got, err := s.GetListingByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.Equal(t, domain.Builder, got.PrimaryArchetype)
	require.InDelta(t, 0.9, got.ArchetypeScores[domain.Builder], 0.0001)
	require.Equal(t, listing.Embedding.Vector, got.Embedding.Vector)
}

func TestEmbeddedStore_ListingDuplicateExternalID(t *testing.T) {
	s := openTestEmbedded(t, "local-fnv-v1")
	ctx := context.Background()

	l1 := domain.NewListing("", "dup-ext", "A", "Acme", "text one", "kw", time.Now().UTC())
	require.NoError(t, s.InsertListing(ctx, l1))

	l2 := domain.NewListing("", "dup-ext", "B", "Acme", "text two", "kw", time.Now().UTC())
	err := s.InsertListing(ctx, l2)
	require.ErrorIs(t, err, domain.ErrListingDuplicate)
}

func TestEmbeddedStore_EmbeddingVersionMismatchFailsLoud(t *testing.T) {
	s := openTestEmbedded(t, "local-fnv-v2")
	ctx := context.Background()

	listing := domain.NewListing("", "ext-old", "Old Listing", "Acme", "migrate the legacy system", "kw", time.Now().UTC())
	listing.Embedding = domain.Embedding{Vector: domain.Vector{0.4, 0.5}, ModelVersion: "local-fnv-v1"}
	listing.Classified = true
	require.NoError(t, s.InsertListing(ctx, listing))

	_, err := s.GetListingByExternalID(ctx, "ext-old")
	require.ErrorIs(t, err, domain.ErrEmbeddingVersionMismatch)
}

func TestEmbeddedStore_OnlyOneBatchOpenAtATime(t *testing.T) {
	s := openTestEmbedded(t, "local-fnv-v1")
	ctx := context.Background()

	_, err := s.OpenBatch(ctx, domain.Builder, time.Now())
	require.NoError(t, err)

	_, err = s.OpenBatch(ctx, domain.Fixer, time.Now())
	require.ErrorIs(t, err, domain.ErrBatchAlreadyOpen)

	open, err := s.GetOpenBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Builder, open.Archetype)

	require.NoError(t, s.CloseBatch(ctx, open.ID, time.Now()))

	_, err = s.GetOpenBatch(ctx)
	require.ErrorIs(t, err, domain.ErrBatchNotOpen)

	_, err = s.OpenBatch(ctx, domain.Fixer, time.Now())
	require.NoError(t, err)
}

func TestEmbeddedStore_OutcomeNeverDowngrades(t *testing.T) {
	s := openTestEmbedded(t, "local-fnv-v1")
	ctx := context.Background()

	app := &domain.Application{
		ListingID:        "listing-1",
		VariantArchetype: domain.Builder,
		ProfileState:     domain.Builder,
		BatchID:          "batch-1",
		SubmittedAt:      time.Now().UTC(),
		Outcome:          domain.StageInterview,
	}
	require.NoError(t, s.InsertApplication(ctx, app))

	require.ErrorIs(t, app.ApplyOutcome(domain.StageRejected, time.Now().UTC(), "msg-1"), domain.ErrOutcomeDowngrade)
	require.NoError(t, s.UpdateApplicationOutcome(ctx, app))

	got, err := s.GetApplicationByID(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StageInterview, got.Outcome, "store persists whatever the caller passes; the never-downgrade invariant is enforced by domain.Application.ApplyOutcome before the store is called")
}

func TestEmbeddedStore_KnownSenderUpsertIsIdempotent(t *testing.T) {
	s := openTestEmbedded(t, "local-fnv-v1")
	ctx := context.Background()

	sender := &domain.KnownSender{Address: "hr@acme.com", RootDomain: "acme.com", HiringEntity: "Acme", SenderType: domain.SenderDirect, FirstSeenAt: time.Now().UTC()}
	require.NoError(t, s.UpsertKnownSender(ctx, sender))
	require.NoError(t, s.UpsertKnownSender(ctx, sender))

	got, err := s.GetKnownSenderByAddress(ctx, "hr@acme.com")
	require.NoError(t, err)
	require.Equal(t, "Acme", got.HiringEntity)
}

func TestEmbeddedStore_WithTxCommitsBothWrites(t *testing.T) {
	s := openTestEmbedded(t, "local-fnv-v1")
	ctx := context.Background()

	app := &domain.Application{
		ListingID: "listing-1", VariantArchetype: domain.Builder, ProfileState: domain.Builder,
		BatchID: "batch-1", SubmittedAt: time.Now().UTC(), Outcome: domain.StageSubmitted,
	}
	require.NoError(t, s.InsertApplication(ctx, app))

	err := s.WithTx(ctx, func(ctx context.Context, tx ports.Store) error {
		app.Outcome = domain.StageInterview
		if err := tx.UpdateApplicationOutcome(ctx, app); err != nil {
			return err
		}
		return tx.UpsertKnownSender(ctx, &domain.KnownSender{
			Address: "hr@acme.com", RootDomain: "acme.com", HiringEntity: "Acme",
			SenderType: domain.SenderDirect, FirstSeenAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	gotApp, err := s.GetApplicationByID(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StageInterview, gotApp.Outcome)

	gotSender, err := s.GetKnownSenderByAddress(ctx, "hr@acme.com")
	require.NoError(t, err)
	require.Equal(t, "Acme", gotSender.HiringEntity)
}

func TestEmbeddedStore_WithTxRollsBackOnError(t *testing.T) {
	s := openTestEmbedded(t, "local-fnv-v1")
	ctx := context.Background()

	app := &domain.Application{
		ListingID: "listing-1", VariantArchetype: domain.Builder, ProfileState: domain.Builder,
		BatchID: "batch-1", SubmittedAt: time.Now().UTC(), Outcome: domain.StageSubmitted,
	}
	require.NoError(t, s.InsertApplication(ctx, app))

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx ports.Store) error {
		app.Outcome = domain.StageInterview
		if err := tx.UpdateApplicationOutcome(ctx, app); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	gotApp, err := s.GetApplicationByID(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StageSubmitted, gotApp.Outcome, "a failed transaction must not leave a partial write visible")
}
