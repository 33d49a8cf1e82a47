// Package selector implements the Variant Selector (spec §4.3): picks a
// résumé variant for a scored listing using combined JD-score ×
// variant-alignment, flagging close calls without blocking them.
package selector

import (
	"strconv"

	"github.com/kazimov/jobtrail/domain"
)

// Config carries the selector's two dynamic-config thresholds (§9).
type Config struct {
	CombinedScoreThreshold float64 // default 0.15
	CloseCallDelta         float64 // default 0.10
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{CombinedScoreThreshold: 0.15, CloseCallDelta: 0.10}
}

// Decision is the selector's output for one listing.
type Decision struct {
	Archetype        domain.Archetype
	CombinedScore    float64
	NeedsReview      bool
	IntelligenceOnly bool
	Rationale        string
}

// Select implements the procedure in §4.3. alignments maps each
// archetype to its current variant's alignment score (cosine similarity
// to the latest centroid); archetypes with no variant yet are treated as
// alignment 0, which naturally routes the listing to intelligence-only
// until a variant exists.
func Select(scores domain.ScoreMap, alignments map[domain.Archetype]float64, cfg Config) Decision {
	top := scores.Primary()
	topScore, secondScore := scores.Top2()

	alignment := alignments[top]
	combined := topScore * alignment

	d := Decision{
		Archetype:     top,
		CombinedScore: combined,
	}

	if combined < cfg.CombinedScoreThreshold {
		d.IntelligenceOnly = true
		d.Rationale = rationale(top, topScore, alignment, combined, cfg, true)
		return d
	}

	if topScore-secondScore < cfg.CloseCallDelta {
		d.NeedsReview = true
	}
	d.Rationale = rationale(top, topScore, alignment, combined, cfg, false)
	return d
}

func rationale(arch domain.Archetype, topScore, alignment, combined float64, cfg Config, intelligenceOnly bool) string {
	status := "queued"
	if intelligenceOnly {
		status = "intelligence_only"
	}
	return string(arch) + ": top_score=" + trimFloat(topScore) +
		" alignment=" + trimFloat(alignment) +
		" combined=" + trimFloat(combined) +
		" threshold=" + trimFloat(cfg.CombinedScoreThreshold) +
		" -> " + status
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
