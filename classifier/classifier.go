// Package classifier implements the Archetype Classifier (spec §4.2): it
// scores a listing's text against the four archetypes using verb-pattern
// matches, sentence indicators, and embedding similarity to a seed
// centroid, with a role-type prior applied before normalisation.
//
// Grounded on the staged scored-classifier shape in
// BbangMxn-worker/worker_score_classifier.go: each signal contributes a
// score, the scores accumulate per-candidate (here, per-archetype rather
// than per-category), and the highest total wins.
package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
)

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

const (
	verbPatternPoints    = 1.0
	sentenceIndicatorPoints = 0.5
	embeddingSimilarityWeight = 0.3
	embeddingSimilarityFloor  = 0.5
)

var rolePrior = map[domain.RoleType]map[domain.Archetype]float64{
	domain.RoleContract: {
		domain.Builder: 0.1, domain.Fixer: 0.1, domain.Operator: -0.05, domain.Translator: -0.05,
	},
	domain.RolePermanent: {
		domain.Builder: -0.1, domain.Fixer: -0.1, domain.Operator: 0.05, domain.Translator: 0.05,
	},
}

// Classifier scores listing text against the four archetypes.
type Classifier struct {
	seeds     *SeedDictionary
	embedder  ports.EmbeddingModel
	seedCentroids map[domain.Archetype]domain.Vector // rebuilt at startup (§5 read-mostly cache)
}

// New builds a Classifier and eagerly computes each archetype's seed
// centroid (mean of its seed-phrase embeddings). Rebuild (call New again)
// when the embedding model version changes.
func New(ctx context.Context, seeds *SeedDictionary, embedder ports.EmbeddingModel) (*Classifier, error) {
	c := &Classifier{seeds: seeds, embedder: embedder, seedCentroids: map[domain.Archetype]domain.Vector{}}
	for _, arch := range domain.Archetypes {
		as := seeds.Archetypes[arch]
		var vecs []domain.Vector
		for _, phrase := range as.SeedPhrases {
			v, err := embedder.Embed(ctx, phrase)
			if err != nil {
				return nil, fmt.Errorf("embed seed phrase for %s: %w", arch, err)
			}
			vecs = append(vecs, v)
		}
		c.seedCentroids[arch] = domain.Mean(vecs)
	}
	return c, nil
}

// Result is the classifier's output for one listing.
type Result struct {
	Scores    domain.ScoreMap
	Primary   domain.Archetype
	Embedding domain.Embedding
}

// Classify runs the five-step algorithm from §4.2 against text, using
// roleType as the classification prior.
func (c *Classifier) Classify(ctx context.Context, text string, roleType domain.RoleType) (*Result, error) {
	raw := map[domain.Archetype]float64{}
	sentences := splitSentences(text)

	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		for _, arch := range domain.Archetypes {
			as := c.seeds.Archetypes[arch]
			for _, pattern := range as.VerbPatterns {
				if strings.Contains(lower, strings.ToLower(pattern)) {
					raw[arch] += verbPatternPoints
				}
			}
			for _, indicator := range as.SentenceIndicators {
				if strings.Contains(lower, strings.ToLower(indicator)) {
					raw[arch] += sentenceIndicatorPoints
				}
			}
		}

		sentenceVec, err := c.embedder.Embed(ctx, sentence)
		if err != nil {
			return nil, fmt.Errorf("embed sentence: %w", err)
		}
		for _, arch := range domain.Archetypes {
			sim := domain.CosineSimilarity(sentenceVec, c.seedCentroids[arch])
			if sim >= embeddingSimilarityFloor {
				raw[arch] += sim * embeddingSimilarityWeight
			}
		}
	}

	if prior, ok := rolePrior[roleType]; ok {
		for arch, delta := range prior {
			raw[arch] += delta
		}
	}

	scores := normalise(raw)

	fullEmbedding, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed full text: %w", err)
	}

	return &Result{
		Scores:    scores,
		Primary:   scores.Primary(),
		Embedding: domain.Embedding{Vector: fullEmbedding, ModelVersion: c.embedder.ModelVersion()},
	}, nil
}

func splitSentences(text string) []string {
	parts := sentenceSplit.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// normalise sums raw points to 1.0, clamping negative priors to zero
// before the sum. If all are zero, emits the uniform distribution.
func normalise(raw map[domain.Archetype]float64) domain.ScoreMap {
	clamped := map[domain.Archetype]float64{}
	var total float64
	for _, arch := range domain.Archetypes {
		v := raw[arch]
		if v < 0 {
			v = 0
		}
		clamped[arch] = v
		total += v
	}
	out := domain.ScoreMap{}
	if total == 0 {
		for _, arch := range domain.Archetypes {
			out[arch] = 0.25
		}
		return out
	}
	for _, arch := range domain.Archetypes {
		out[arch] = clamped[arch] / total
	}
	return out
}
