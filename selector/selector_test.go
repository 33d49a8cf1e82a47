package selector_test

import (
	"testing"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/selector"
	"github.com/stretchr/testify/require"
)

func TestSelect_QueuesTopArchetype(t *testing.T) {
	scores := domain.ScoreMap{
		domain.Builder: 0.6, domain.Fixer: 0.2, domain.Operator: 0.1, domain.Translator: 0.1,
	}
	alignments := map[domain.Archetype]float64{domain.Builder: 0.8}

	d := selector.Select(scores, alignments, selector.DefaultConfig())

	require.Equal(t, domain.Builder, d.Archetype)
	require.False(t, d.IntelligenceOnly)
	require.False(t, d.NeedsReview)
	require.InDelta(t, 0.48, d.CombinedScore, 1e-9)
}

func TestSelect_BelowThresholdIsIntelligenceOnly(t *testing.T) {
	scores := domain.ScoreMap{
		domain.Builder: 0.4, domain.Fixer: 0.3, domain.Operator: 0.2, domain.Translator: 0.1,
	}
	alignments := map[domain.Archetype]float64{domain.Builder: 0.3} // combined = 0.12 < 0.15

	d := selector.Select(scores, alignments, selector.DefaultConfig())

	require.True(t, d.IntelligenceOnly)
}

func TestSelect_CloseCallFlagged(t *testing.T) {
	scores := domain.ScoreMap{
		domain.Builder: 0.35, domain.Fixer: 0.30, domain.Operator: 0.20, domain.Translator: 0.15,
	}
	alignments := map[domain.Archetype]float64{domain.Builder: 0.9}

	d := selector.Select(scores, alignments, selector.DefaultConfig())

	require.True(t, d.NeedsReview)
	require.False(t, d.IntelligenceOnly)
}

func TestSelect_ExactlyPointOneIsNotCloseCall(t *testing.T) {
	scores := domain.ScoreMap{
		domain.Builder: 0.40, domain.Fixer: 0.30, domain.Operator: 0.15, domain.Translator: 0.15,
	}
	alignments := map[domain.Archetype]float64{domain.Builder: 0.9}

	d := selector.Select(scores, alignments, selector.DefaultConfig())

	require.False(t, d.NeedsReview, "delta of exactly 0.10 must not be a close call")
}
