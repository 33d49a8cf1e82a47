package matcher

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// EntitySimilarity scores how well candidate matches target, in [0, 1].
// Grounded on sahilm/fuzzy (adopted from kingrea-The-Lattice's fuzzy
// finder usage): fuzzy.RankFind gives a subsequence-match score keyed to
// pattern length, which this normalises into a bounded similarity by
// dividing by the best attainable score for an exact match of the
// pattern's length, so it can be compared against the spec's fixed
// thresholds (> 0.7 known-sender, > 0.5 domain-label).
func EntitySimilarity(target, candidate string) float64 {
	target = strings.ToLower(strings.TrimSpace(target))
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	if target == "" || candidate == "" {
		return 0
	}
	if target == candidate {
		return 1
	}

	matches := fuzzy.RankFind(target, []string{candidate})
	if len(matches) == 0 {
		// fuzzy requires target's runes to appear in order in candidate;
		// fall back to token-Jaccard for entity names that share words
		// but not a subsequence relationship (e.g. reordered tokens).
		return jaccard(tokenize(target), tokenize(candidate))
	}
	best := bestPossibleScore(len(target))
	if best == 0 {
		return 0
	}
	score := float64(matches[0].Score) / float64(best)
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// bestPossibleScore approximates sahilm/fuzzy's score for a pattern
// matched against itself, used purely as a normalisation denominator.
func bestPossibleScore(patternLen int) int {
	matches := fuzzy.RankFind(strings.Repeat("a", patternLen), []string{strings.Repeat("a", patternLen)})
	if len(matches) == 0 {
		return patternLen
	}
	return matches[0].Score
}

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

// jaccard is the token-Jaccard similarity used both as a similarity
// fallback here and directly by the cascade's title-matching step (§4.5
// step 2). Plain set arithmetic; no library in the corpus specialises in
// this over the stdlib string/map primitives already used.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// TitleJaccard computes the token-Jaccard similarity between two pieces
// of free text, used by the cascade's title-matching step.
func TitleJaccard(a, b string) float64 {
	return jaccard(tokenize(a), tokenize(b))
}
