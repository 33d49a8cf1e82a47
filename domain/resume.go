package domain

import "time"

// ResumeVariant is one archetype-targeted résumé. Its text lives in the
// externally-owned Version store; the core only ever holds a reference.
type ResumeVariant struct {
	Archetype         Archetype
	VersionStorePath  string
	CurrentVersionID  string
	Embedding         Embedding
	AlignmentScore    float64
	LastRewriteAt     time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Staleness is 1 - AlignmentScore (see GLOSSARY).
func (v *ResumeVariant) Staleness() float64 { return 1 - v.AlignmentScore }

// Realign recomputes alignment against the latest centroid for the
// variant's archetype. Called after an externally-committed rewrite
// updates the variant's text, embedding, and version identifier.
func (v *ResumeVariant) Realign(latestCentroid Vector) {
	v.AlignmentScore = CosineSimilarity(v.Embedding.Vector, latestCentroid)
}
