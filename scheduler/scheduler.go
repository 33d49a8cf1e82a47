// Package scheduler implements the Scheduler (spec §4.8): three periodic
// jobs (inbox poll, centroid and drift, backups) and one event hook
// (on listing insert). Jobs are at-most-one-at-a-time per kind: a
// golang.org/x/sync/singleflight group collapses an overlapping tick
// in-process, and a ports.Lock serialises the same kind across hosts,
// matching the split residential-agent / remote-worker topology the
// store must tolerate (§9).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kazimov/jobtrail/batch"
	"github.com/kazimov/jobtrail/centroid"
	"github.com/kazimov/jobtrail/classifier"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/matcher"
	"github.com/kazimov/jobtrail/ports"
	"github.com/kazimov/jobtrail/rewrite"
	"github.com/kazimov/jobtrail/selector"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Backuper snapshots the store to durable external storage.
type Backuper interface {
	Snapshot(ctx context.Context) error
}

// Config carries the scheduler's periodic-job intervals and retry bounds.
type Config struct {
	InboxPollInterval    time.Duration // default 15m
	InboxLookback        time.Duration // default 24h
	CentroidInterval     time.Duration // default 7 * 24h
	BackupInterval       time.Duration
	ClassifyMaxAttempts  int
	ClassifyBaseBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		InboxPollInterval:   15 * time.Minute,
		InboxLookback:       24 * time.Hour,
		CentroidInterval:    7 * 24 * time.Hour,
		BackupInterval:      24 * time.Hour,
		ClassifyMaxAttempts: 5,
		ClassifyBaseBackoff: 2 * time.Second,
	}
}

// Scheduler wires the engine components to the store and collaborators.
type Scheduler struct {
	store       ports.Store
	classifier  *classifier.Classifier
	coordinator *batch.Coordinator
	matcher     *matcher.Matcher
	centroid    *centroid.Engine
	rewrite     *rewrite.Trigger
	inbox       ports.Inbox
	lock        ports.Lock
	backuper    Backuper
	selectorCfg selector.Config
	cfg         Config
	log         *zap.Logger

	group singleflight.Group
}

func New(
	store ports.Store,
	cls *classifier.Classifier,
	coord *batch.Coordinator,
	m *matcher.Matcher,
	ce *centroid.Engine,
	rt *rewrite.Trigger,
	inbox ports.Inbox,
	lock ports.Lock,
	backuper Backuper,
	selectorCfg selector.Config,
	cfg Config,
	log *zap.Logger,
) *Scheduler {
	return &Scheduler{
		store: store, classifier: cls, coordinator: coord, matcher: m,
		centroid: ce, rewrite: rt, inbox: inbox, lock: lock, backuper: backuper,
		selectorCfg: selectorCfg, cfg: cfg, log: log,
	}
}

// withLock acquires the named cross-host lock, runs fn if acquired, and
// releases it afterward. Returns nil without running fn if the lock is
// already held — the tick is skipped, not queued.
func (s *Scheduler) withLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error {
	token, ok, err := s.lock.TryAcquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("job already running, skipping tick", zap.String("job", name))
		return nil
	}
	defer func() { _ = s.lock.Release(ctx, name, token) }()
	return fn(ctx)
}

// OnListingInsert is the post-insert event hook (§4.8): classify and
// embed synchronously before the listing is queueable. Failures retry
// with capped exponential backoff up to ClassifyMaxAttempts, then mark
// the listing unclassified for later retry rather than poisoning the
// ingest path.
func (s *Scheduler) OnListingInsert(ctx context.Context, scraped ports.ScrapedListing, variants map[domain.Archetype]*domain.ResumeVariant) error {
	listing := domain.NewListing("", scraped.ExternalID, scraped.Title, scraped.HiringEntity, scraped.FullText, scraped.SearchKeyword, scraped.FirstSeenAt)
	if err := listing.Validate(); err != nil {
		return err
	}
	if err := s.store.InsertListing(ctx, listing); err != nil {
		return err
	}

	_, err, _ := s.group.Do("classify:"+listing.ID, func() (any, error) {
		return nil, s.classifyWithRetry(ctx, listing)
	})
	if err != nil {
		return nil // classification failure leaves the listing unclassified; not propagated (§4.8)
	}

	alignments := make(map[domain.Archetype]float64, len(variants))
	for arch, v := range variants {
		alignments[arch] = v.AlignmentScore
	}
	decision := selector.Select(listing.ArchetypeScores, alignments, s.selectorCfg)
	if decision.IntelligenceOnly {
		if err := s.store.SetIntelligenceOnly(ctx, listing.ID, true); err != nil {
			return err
		}
		listing.IntelligenceOnly = true
	}
	s.coordinator.Enqueue(listing, decision)
	return nil
}

func (s *Scheduler) classifyWithRetry(ctx context.Context, listing *domain.Listing) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.ClassifyMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.cfg.ClassifyBaseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		result, err := s.classifier.Classify(ctx, listing.FullText, listing.RoleType)
		if err == nil {
			listing.ArchetypeScores = result.Scores
			listing.PrimaryArchetype = result.Primary
			listing.Embedding = result.Embedding
			listing.Classified = true
			return s.store.UpdateListingClassification(ctx, listing)
		}
		lastErr = err
		if !domain.IsRetryable(err) {
			break
		}
	}
	listing.ClassifyAttempts++
	s.log.Warn("listing classification failed, leaving unclassified", zap.String("listing_id", listing.ID), zap.Error(lastErr))
	return lastErr
}

// RunInboxPoll implements the periodic inbox-poll job (§4.8).
func (s *Scheduler) RunInboxPoll(ctx context.Context) error {
	return s.withLock(ctx, "job:inbox_poll", s.cfg.InboxPollInterval, func(ctx context.Context) error {
		if s.inbox == nil {
			return fmt.Errorf("%w: no inbox configured (INBOX_BASE_URL unset)", domain.ErrValidation)
		}
		watermark, err := s.store.GetWatermark(ctx, "inbox")
		if err != nil {
			return err
		}
		messages, err := s.inbox.Poll(ctx, watermark, s.cfg.InboxLookback)
		if err != nil {
			return &domain.Transient{Op: "inbox_poll", Err: err}
		}
		var lastID string
		for _, msg := range messages {
			if _, err := s.matcher.MatchMessage(ctx, msg); err != nil {
				s.log.Error("failed to match inbound message", zap.String("external_id", msg.ExternalID), zap.Error(err))
				continue
			}
			lastID = msg.ExternalID
		}
		if lastID != "" {
			return s.store.SetWatermark(ctx, "inbox", lastID)
		}
		return nil
	})
}

// RunCentroidAndDrift implements the periodic centroid-and-drift job
// (§4.8): computes centroids, fires shift/staleness alerts, evaluates the
// rewrite-trigger gate, for every archetype.
func (s *Scheduler) RunCentroidAndDrift(ctx context.Context) error {
	return s.withLock(ctx, "job:centroid", s.cfg.CentroidInterval, func(ctx context.Context) error {
		now := time.Now()
		for _, arch := range domain.Archetypes {
			c, err := s.centroid.ComputeWindow(ctx, arch, now)
			if err != nil {
				if errors.Is(err, domain.ErrCentroidInsufficientData) {
					continue
				}
				return err
			}
			if err := s.store.InsertCentroid(ctx, c); err != nil {
				if errors.Is(err, domain.ErrCentroidDuplicate) {
					continue // idempotent re-run within the same window (§8)
				}
				return err
			}
			if err := s.rewrite.EvaluateCentroid(ctx, c); err != nil {
				return err
			}

			variant, err := s.store.GetResumeVariant(ctx, arch)
			if err != nil {
				continue // no variant yet for this archetype
			}
			if err := s.centroid.Align(ctx, variant); err != nil {
				return err
			}
			if err := s.rewrite.EvaluateVariant(ctx, variant); err != nil {
				return err
			}
			if _, err := s.rewrite.EvaluateRewrite(ctx, arch, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunBackup implements the periodic backup job (§4.8).
func (s *Scheduler) RunBackup(ctx context.Context) error {
	if s.backuper == nil {
		return nil
	}
	return s.withLock(ctx, "job:backup", s.cfg.BackupInterval, s.backuper.Snapshot)
}

// Run starts the periodic jobs on their own tickers until ctx is
// cancelled; the backup job runs only when a Backuper is set. The event hook (OnListingInsert) is invoked directly by
// ingest callers, not scheduled here.
func (s *Scheduler) Run(ctx context.Context) {
	go s.loop(ctx, "inbox_poll", s.cfg.InboxPollInterval, s.RunInboxPoll)
	go s.loop(ctx, "centroid", s.cfg.CentroidInterval, s.RunCentroidAndDrift)
	if s.backuper != nil {
		go s.loop(ctx, "backup", s.cfg.BackupInterval, s.RunBackup)
	}
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			}
		}
	}
}
