// Package store provides the Store (§4.1) backends: a Postgres-backed
// server engine (postgres.go) and a SQLite-backed embedded engine /
// offline spool (embedded.go), both satisfying ports.Store. codec.go
// holds the wire encodings shared by both: embeddings as fixed-length
// byte blobs with a recorded dimensionality and model-version tag (so a
// model-version mismatch fails loudly instead of comparing incompatible
// spaces), and JSON for the small structured fields (score maps, tag
// lists, alert detail blobs).
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kazimov/jobtrail/domain"
)

func EncodeVector(v domain.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func DecodeVector(b []byte) domain.Vector {
	n := len(b) / 4
	v := make(domain.Vector, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// DecodeEmbedding decodes a stored embedding and enforces the
// model-version contract: a mismatch against expectedVersion (the
// currently configured embedding model) fails loudly rather than
// returning a vector from an incompatible space.
func DecodeEmbedding(bytesVal []byte, storedVersion, expectedVersion string) (domain.Embedding, error) {
	if expectedVersion != "" && storedVersion != "" && storedVersion != expectedVersion {
		return domain.Embedding{}, fmt.Errorf("%w: stored=%s expected=%s", domain.ErrEmbeddingVersionMismatch, storedVersion, expectedVersion)
	}
	return domain.Embedding{Vector: DecodeVector(bytesVal), ModelVersion: storedVersion}, nil
}

func EncodeScores(s domain.ScoreMap) ([]byte, error) { return json.Marshal(s) }

func DecodeScores(b []byte) (domain.ScoreMap, error) {
	if len(b) == 0 {
		return domain.ScoreMap{}, nil
	}
	var s domain.ScoreMap
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func EncodeStrings(v []string) ([]byte, error) { return json.Marshal(v) }

func DecodeStrings(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func EncodeDetails(v map[string]any) ([]byte, error) { return json.Marshal(v) }

func DecodeDetails(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
