package rewrite_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
	"github.com/kazimov/jobtrail/rewrite"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	ports.Store
	alerts   []*domain.DriftAlert
	variant  *domain.ResumeVariant
	acked    map[string]bool
	inserted []*domain.DriftAlert
}

func newMockStore() *mockStore { return &mockStore{acked: map[string]bool{}} }

// InsertAlert round-trips Details through JSON the way store/codec.go's
// EncodeDetails/DecodeDetails actually do, so a test reading Details back
// sees the same []interface{} a real Postgres/embedded backend would
// hand back, not the []string the alert was built with in-process.
func (m *mockStore) InsertAlert(ctx context.Context, a *domain.DriftAlert) error {
	raw, err := json.Marshal(a.Details)
	if err != nil {
		return err
	}
	var roundTripped map[string]any
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		return err
	}
	a.Details = roundTripped
	m.alerts = append(m.alerts, a)
	m.inserted = append(m.inserted, a)
	return nil
}

func (m *mockStore) GetLatestUnacknowledgedAlert(ctx context.Context, archetype domain.Archetype, kind domain.AlertKind) (*domain.DriftAlert, error) {
	var latest *domain.DriftAlert
	for _, a := range m.alerts {
		if a.Archetype == archetype && a.Kind == kind && !m.acked[a.ID] {
			latest = a
		}
	}
	return latest, nil
}

func (m *mockStore) AcknowledgeAlert(ctx context.Context, id string) error {
	m.acked[id] = true
	return nil
}

func (m *mockStore) GetResumeVariant(ctx context.Context, archetype domain.Archetype) (*domain.ResumeVariant, error) {
	return m.variant, nil
}

func TestEvaluateCentroid_FiresAboveThresholdNotAt(t *testing.T) {
	store := newMockStore()
	trig := rewrite.New(store, rewrite.DefaultConfig())

	atThreshold := &domain.MarketCentroid{Archetype: domain.Builder, HasPrevious: true, ShiftFromPrev: 0.05}
	require.NoError(t, trig.EvaluateCentroid(context.Background(), atThreshold))
	require.Empty(t, store.alerts, "shift exactly at threshold must not fire")

	aboveThreshold := &domain.MarketCentroid{Archetype: domain.Builder, HasPrevious: true, ShiftFromPrev: 0.07}
	require.NoError(t, trig.EvaluateCentroid(context.Background(), aboveThreshold))
	require.Len(t, store.alerts, 1)
	require.Equal(t, domain.AlertMarketShift, store.alerts[0].Kind)
}

func TestEvaluateRewrite_FiresWhenAllThreeConditionsHold(t *testing.T) {
	store := newMockStore()
	store.variant = &domain.ResumeVariant{Archetype: domain.Builder, AlignmentScore: 0.89, LastRewriteAt: time.Now().AddDate(0, 0, -30)}
	trig := rewrite.New(store, rewrite.DefaultConfig())

	require.NoError(t, trig.EvaluateCentroid(context.Background(), &domain.MarketCentroid{Archetype: domain.Builder, HasPrevious: true, ShiftFromPrev: 0.07}))
	require.NoError(t, trig.EvaluateVariant(context.Background(), store.variant))

	report, err := trig.EvaluateRewrite(context.Background(), domain.Builder, time.Now())
	require.NoError(t, err)
	require.NotNil(t, report)

	// component alerts acknowledged
	for _, a := range store.alerts {
		if a.Kind != domain.AlertRewriteTriggered {
			require.True(t, store.acked[a.ID])
		}
	}
}

// TestEvaluateRewrite_TermsSurviveJSONRoundTrip guards against the
// []string/[]interface{} mismatch a real store.DecodeDetails introduces:
// a centroid's TermsGained/TermsLost are genuine []string going into
// InsertAlert, but mockStore now round-trips Details through JSON exactly
// like Postgres/embedded do, so by the time EvaluateRewrite reads the
// alert back, Details holds []interface{}.
func TestEvaluateRewrite_TermsSurviveJSONRoundTrip(t *testing.T) {
	store := newMockStore()
	store.variant = &domain.ResumeVariant{Archetype: domain.Builder, AlignmentScore: 0.89, LastRewriteAt: time.Now().AddDate(0, 0, -30)}
	trig := rewrite.New(store, rewrite.DefaultConfig())

	centroid := &domain.MarketCentroid{
		Archetype:     domain.Builder,
		HasPrevious:   true,
		ShiftFromPrev: 0.07,
		TermsGained:   []string{"kubernetes", "terraform"},
		TermsLost:     []string{"jquery"},
	}
	require.NoError(t, trig.EvaluateCentroid(context.Background(), centroid))
	require.NoError(t, trig.EvaluateVariant(context.Background(), store.variant))

	// confirm the round trip actually produced []interface{}, not []string,
	// so this test would have caught the original bug.
	_, isStringSlice := store.alerts[0].Details["terms_gained"].([]string)
	require.False(t, isStringSlice, "mockStore must round-trip Details through JSON like a real store")

	report, err := trig.EvaluateRewrite(context.Background(), domain.Builder, time.Now())
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Equal(t, []string{"kubernetes", "terraform"}, report.TermsGained)
	require.Equal(t, []string{"jquery"}, report.TermsLost)
}

func TestEvaluateRewrite_CooldownBlocksEmission(t *testing.T) {
	store := newMockStore()
	store.variant = &domain.ResumeVariant{Archetype: domain.Builder, AlignmentScore: 0.89, LastRewriteAt: time.Now().AddDate(0, 0, -10)}
	trig := rewrite.New(store, rewrite.DefaultConfig())

	require.NoError(t, trig.EvaluateCentroid(context.Background(), &domain.MarketCentroid{Archetype: domain.Builder, HasPrevious: true, ShiftFromPrev: 0.07}))
	require.NoError(t, trig.EvaluateVariant(context.Background(), store.variant))

	report, err := trig.EvaluateRewrite(context.Background(), domain.Builder, time.Now())
	require.NoError(t, err)
	require.Nil(t, report, "last rewrite 10 days ago is inside the 21-day cooldown")
}
