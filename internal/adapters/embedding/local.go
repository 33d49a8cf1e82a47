// Package embedding provides adapters for ports.EmbeddingModel: a
// deterministic local adapter (tests, embedded/offline spool mode) and an
// HTTP adapter for an operator-configured embedding service.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/kazimov/jobtrail/domain"
)

// Local is a deterministic, dependency-free embedding adapter. It hashes
// overlapping word shingles into a fixed-width vector so that lexically
// similar strings land close together under cosine similarity — enough
// signal for deterministic tests and for the embedded/offline spool mode
// to keep functioning without a live model endpoint.
type Local struct {
	dims    int
	version string
}

// NewLocal builds a Local adapter with the given vector width.
func NewLocal(dims int) *Local {
	if dims <= 0 {
		dims = 64
	}
	return &Local{dims: dims, version: "local-hash-v1"}
}

func (l *Local) Dimensions() int     { return l.dims }
func (l *Local) ModelVersion() string { return l.version }

func (l *Local) Embed(_ context.Context, text string) (domain.Vector, error) {
	v := make(domain.Vector, l.dims)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return v, nil
	}
	for i, w := range words {
		tokens := []string{w}
		if i+1 < len(words) {
			tokens = append(tokens, w+"_"+words[i+1])
		}
		for _, tok := range tokens {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			idx := int(h.Sum32()) % l.dims
			if idx < 0 {
				idx += l.dims
			}
			v[idx] += 1
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
	return v, nil
}
