package domain

import "time"

// Batch groups applications emitted under a single advertised profile
// state. At most one batch may be open at any time (§9 Concurrency
// primitives): enforced at the store layer via a single-row lock, not an
// in-process mutex, because the core may run split across two hosts.
type Batch struct {
	ID          string
	Archetype   Archetype
	OpenedAt    time.Time
	ClosedAt    time.Time
	AppCount    int
}

func (b *Batch) IsOpen() bool { return b.ClosedAt.IsZero() }
