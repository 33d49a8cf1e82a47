// Package batch implements the Batch Coordinator (spec §4.4): it enforces
// the shared-profile invariant (only one archetype's applications may be
// in flight at a time) and treats the Submitter as a remote side effect,
// recording an Application only according to what the Submitter reports.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
	"github.com/kazimov/jobtrail/selector"
)

// QueueEntry is one listing waiting to be emitted, with the selection
// decision that routed it here.
type QueueEntry struct {
	Listing  *domain.Listing
	Decision selector.Decision
}

// QueueSummary is the `queue` CLI command's output (§6).
type QueueSummary struct {
	PerArchetype     map[domain.Archetype]ArchetypeQueueStats
	IntelligenceOnly int
}

type ArchetypeQueueStats struct {
	Count         int
	AvgTopScore   float64
}

// Coordinator holds the in-memory admission queue (rebuilt from the
// Store's unqueued-listing backlog at startup; the Store remains the
// durable record) and serialises batch lifecycle calls against it.
type Coordinator struct {
	store     ports.Store
	submitter ports.Submitter

	mu               sync.Mutex
	queues           map[domain.Archetype][]QueueEntry
	intelligenceOnly int
}

func New(store ports.Store, submitter ports.Submitter) *Coordinator {
	return &Coordinator{
		store:     store,
		submitter: submitter,
		queues:    make(map[domain.Archetype][]QueueEntry),
	}
}

// Enqueue implements §4.4's enqueue operation: adds to the per-archetype
// queue only if the listing is not intelligence-only.
func (c *Coordinator) Enqueue(listing *domain.Listing, decision selector.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if decision.IntelligenceOnly || listing.IntelligenceOnly {
		c.intelligenceOnly++
		return
	}
	c.queues[decision.Archetype] = append(c.queues[decision.Archetype], QueueEntry{Listing: listing, Decision: decision})
}

// ListQueue implements §4.4's list_queue operation.
func (c *Coordinator) ListQueue() QueueSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := QueueSummary{PerArchetype: make(map[domain.Archetype]ArchetypeQueueStats), IntelligenceOnly: c.intelligenceOnly}
	for arch, entries := range c.queues {
		var total float64
		for _, e := range entries {
			total += e.Listing.ArchetypeScores[e.Decision.Archetype]
		}
		n := len(entries)
		avg := 0.0
		if n > 0 {
			avg = total / float64(n)
		}
		summary.PerArchetype[arch] = ArchetypeQueueStats{Count: n, AvgTopScore: avg}
	}
	return summary
}

// OpenBatch implements §4.4's open_batch operation. profileState is the
// caller's assertion that the external profile currently advertises
// archetype; a mismatch is an invariant violation, not merely rejected
// input, because submitting under a mismatched profile would corrupt the
// remote shared-profile state.
func (c *Coordinator) OpenBatch(ctx context.Context, archetype, profileState domain.Archetype) (*domain.Batch, error) {
	if profileState != archetype {
		return nil, domain.ErrBatchProfileMismatch
	}
	return c.store.OpenBatch(ctx, archetype, time.Now())
}

// EmitResult is one application's outcome from an Emit call.
type EmitResult struct {
	Application *domain.Application
	Submitted   bool
	Err         error
}

// Emit implements §4.4's emit operation: drains the batch archetype's
// queue through the Submitter, recording an Application for every
// attempt. Idempotent on (listing, batch) pairs.
func (c *Coordinator) Emit(ctx context.Context, b *domain.Batch, variant *domain.ResumeVariant) ([]EmitResult, error) {
	if !b.ClosedAt.IsZero() {
		return nil, domain.ErrBatchNotOpen
	}
	if c.submitter == nil {
		return nil, fmt.Errorf("%w: no submitter configured (SUBMITTER_BASE_URL unset)", domain.ErrValidation)
	}

	c.mu.Lock()
	entries := c.queues[b.Archetype]
	c.queues[b.Archetype] = nil
	c.mu.Unlock()

	var results []EmitResult
	for _, entry := range entries {
		existing, err := c.store.GetApplicationByListingAndBatch(ctx, entry.Listing.ID, b.ID)
		if err == nil && existing != nil {
			results = append(results, EmitResult{Application: existing, Submitted: !existing.SubmissionFailed})
			continue
		}

		plan := ports.ApplicationPlan{
			ListingID:        entry.Listing.ID,
			Archetype:        b.Archetype,
			VariantPath:      variant.VersionStorePath,
			VariantVersionID: variant.CurrentVersionID,
			ProfileState:     b.Archetype,
		}
		outcome := c.submitter.Submit(ctx, plan)

		app := &domain.Application{
			ID:                 uuid.NewString(),
			ListingID:          entry.Listing.ID,
			VariantArchetype:   b.Archetype,
			VersionIdentifier:  variant.CurrentVersionID,
			ProfileState:       b.Archetype,
			BatchID:            b.ID,
			SubmittedAt:        time.Now(),
			Outcome:            domain.StageSubmitted,
			SelectionRationale: entry.Decision.Rationale,
		}
		if !outcome.Success {
			app.SubmissionFailed = true
			if outcome.Err != nil {
				app.SubmissionError = outcome.Err.Error()
			}
		}

		if err := c.store.InsertApplication(ctx, app); err != nil {
			results = append(results, EmitResult{Err: fmt.Errorf("insert application: %w", err)})
			continue
		}
		if outcome.Success {
			if err := c.store.IncrementBatchCount(ctx, b.ID); err != nil {
				results = append(results, EmitResult{Application: app, Err: fmt.Errorf("increment batch count: %w", err)})
				continue
			}
		}
		results = append(results, EmitResult{Application: app, Submitted: outcome.Success, Err: outcome.Err})
	}
	return results, nil
}

// CloseBatch implements §4.4's close_batch operation.
func (c *Coordinator) CloseBatch(ctx context.Context, batchID string) error {
	return c.store.CloseBatch(ctx, batchID, time.Now())
}

// RebuildQueue repopulates the in-memory admission queue from the
// Store's unqueued-listing backlog: every classified, non-intelligence-only
// listing with no application yet, re-scored through the same Selector
// decision a fresh ingest would have produced. A new CLI process has no
// queue until this runs once at startup.
func (c *Coordinator) RebuildQueue(ctx context.Context, selectorCfg selector.Config, alignments map[domain.Archetype]float64) error {
	listings, err := c.store.ListListings(ctx, ports.ListingFilter{})
	if err != nil {
		return fmt.Errorf("list listings for queue rebuild: %w", err)
	}
	for _, l := range listings {
		if !l.Classified || l.IntelligenceOnly {
			continue
		}
		_, err := c.store.GetLatestApplicationByListingID(ctx, l.ID)
		if err == nil {
			continue // already applied
		}
		if err != domain.ErrApplicationNotFound {
			return fmt.Errorf("check application for listing %s: %w", l.ID, err)
		}
		decision := selector.Select(l.ArchetypeScores, alignments, selectorCfg)
		c.Enqueue(l, decision)
	}
	return nil
}
