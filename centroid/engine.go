// Package centroid implements the Centroid Engine (spec §4.6): rolling
// per-archetype centroid computation, shift-from-previous, term drift
// diffs against a reference vocabulary, and variant alignment/staleness.
package centroid

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
)

// Config carries the engine's dynamic-config thresholds (§9).
type Config struct {
	WindowDays      int // default 30
	MinWindowJDCount int // default 5
}

func DefaultConfig() Config { return Config{WindowDays: 30, MinWindowJDCount: 5} }

// Term is one reference-vocabulary phrase with its embedding; termDrift
// compares it against the previous and current centroid to compute
// gained/lost terms.
type Term struct {
	Phrase     string
	Embedding  domain.Vector
}

const termDriftFloor = 0.02
const topNTerms = 10

type Engine struct {
	store      ports.Store
	cfg        Config
	vocabulary []Term // read-mostly, rebuilt at startup (§5)
}

func New(store ports.Store, cfg Config, vocabulary []Term) *Engine {
	return &Engine{store: store, cfg: cfg, vocabulary: vocabulary}
}

// ComputeWindow implements §4.6 for a single archetype and window. Returns
// (nil, domain.ErrCentroidInsufficientData) when JD count is below the
// configured minimum — not an error condition the caller should surface,
// per the spec's "skip, no alert fires".
func (e *Engine) ComputeWindow(ctx context.Context, archetype domain.Archetype, windowEnd time.Time) (*domain.MarketCentroid, error) {
	windowStart := windowEnd.AddDate(0, 0, -e.cfg.WindowDays)

	listings, err := e.store.ListListings(ctx, ports.ListingFilter{
		Archetype:  archetype,
		SeenAfter:  windowStart,
		SeenBefore: windowEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("list listings for window: %w", err)
	}
	if len(listings) < e.cfg.MinWindowJDCount {
		return nil, domain.ErrCentroidInsufficientData
	}

	vecs := make([]domain.Vector, 0, len(listings))
	var modelVersion string
	for _, l := range listings {
		vecs = append(vecs, l.Embedding.Vector)
		modelVersion = l.Embedding.ModelVersion
	}
	mean := domain.Mean(vecs)

	c := &domain.MarketCentroid{
		ID:          uuid.NewString(),
		Archetype:   archetype,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Vector:      mean,
		ModelVersion: modelVersion,
		JDCount:     len(listings),
	}

	prev, err := e.store.GetLatestCentroid(ctx, archetype)
	if err == nil && prev != nil {
		c.HasPrevious = true
		c.ShiftFromPrev = domain.CosineDistance(mean, prev.Vector)
		c.TermsGained, c.TermsLost = e.termDrift(prev.Vector, mean)
	}

	return c, nil
}

// termDrift implements §4.6's term-drift diff against the fixed reference
// vocabulary: a term is gained when its similarity to the centroid
// increased by more than the drift floor, lost when it decreased by more.
func (e *Engine) termDrift(prevCentroid, currentCentroid domain.Vector) (gained, lost []string) {
	type delta struct {
		phrase string
		delta  float64
	}
	var gains, losses []delta
	for _, term := range e.vocabulary {
		prevSim := domain.CosineSimilarity(term.Embedding, prevCentroid)
		curSim := domain.CosineSimilarity(term.Embedding, currentCentroid)
		diff := curSim - prevSim
		if diff > termDriftFloor {
			gains = append(gains, delta{term.Phrase, diff})
		} else if diff < -termDriftFloor {
			losses = append(losses, delta{term.Phrase, -diff})
		}
	}
	sort.Slice(gains, func(i, j int) bool { return gains[i].delta > gains[j].delta })
	sort.Slice(losses, func(i, j int) bool { return losses[i].delta > losses[j].delta })

	gained = topPhrases(gains, topNTerms, func(d delta) string { return d.phrase })
	lost = topPhrases(losses, topNTerms, func(d delta) string { return d.phrase })
	return gained, lost
}

func topPhrases[T any](items []T, n int, get func(T) string) []string {
	if len(items) > n {
		items = items[:n]
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, get(it))
	}
	return out
}

// Align computes a résumé variant's alignment against the latest centroid
// for its archetype, and persists the updated score.
func (e *Engine) Align(ctx context.Context, variant *domain.ResumeVariant) error {
	latest, err := e.store.GetLatestCentroid(ctx, variant.Archetype)
	if err != nil {
		return fmt.Errorf("load latest centroid: %w", err)
	}
	variant.Realign(latest.Vector)
	return e.store.UpsertResumeVariant(ctx, variant)
}
