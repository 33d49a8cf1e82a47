package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
	"go.uber.org/zap"
)

// Spooling wraps a server-engine Store (Postgres) with a local embedded
// spool: while the server engine is unreachable, the per-entity writes
// named in §6 are applied to the spool instead and queued for replay;
// everything else (batch lifecycle, alert acknowledgement, intelligence
// flags) simply runs against whichever engine is currently live, since
// those operations depend on server-side serialisation (the single
// open-batch lock, generated identifiers) that a spool can't honour
// consistently across two independent engines — see DESIGN.md.
//
// Grounded on the teacher's retry/circuit-breaking shape (a call fails,
// the wrapper reclassifies and falls back) generalised from a single
// request to the whole Store contract.
type Spooling struct {
	primary ports.Store
	spool   *EmbeddedStore
	log     *zap.Logger
	offline atomic.Bool
}

// NewSpooling builds a Spooling store. primary is the server engine the
// core prefers; spool is the local embedded engine writes fall back to.
func NewSpooling(primary ports.Store, spool *EmbeddedStore, log *zap.Logger) *Spooling {
	return &Spooling{primary: primary, spool: spool, log: log}
}

// Offline reports whether the server engine was last found unreachable.
func (s *Spooling) Offline() bool { return s.offline.Load() }

func (s *Spooling) current() ports.Store {
	if s.offline.Load() {
		return s.spool
	}
	return s.primary
}

// guard runs fn against the primary; on failure it re-checks reachability
// with Health (rather than trying to classify the driver error) and, if
// the primary really is down, flips to offline and retries fn against the
// spool instead.
func (s *Spooling) guard(ctx context.Context, fn func(ports.Store) error) error {
	if s.offline.Load() {
		return fn(s.spool)
	}
	err := fn(s.primary)
	if err == nil {
		return nil
	}
	if s.primary.Health(ctx) != nil {
		s.offline.Store(true)
		s.log.Warn("server engine unreachable, spilling to local spool", zap.Error(err))
		return fn(s.spool)
	}
	return err
}

// spoolPayload is the union of arguments any replayable write needs;
// only the fields relevant to a given Kind are populated.
type spoolPayload struct {
	Listing     *domain.Listing        `json:"listing,omitempty"`
	Application *domain.Application    `json:"application,omitempty"`
	Message     *domain.Message        `json:"message,omitempty"`
	KnownSender *domain.KnownSender    `json:"known_sender,omitempty"`
	CallLog     *domain.CallLog        `json:"call_log,omitempty"`
	Variant     *domain.ResumeVariant  `json:"variant,omitempty"`
	Centroid    *domain.MarketCentroid `json:"centroid,omitempty"`
	Alert       *domain.DriftAlert     `json:"alert,omitempty"`
	Source      string                 `json:"source,omitempty"`
	WatermarkID string                 `json:"watermark_id,omitempty"`
}

// recordWrite applies apply (against whichever engine is current) and,
// if that engine turned out to be (or just became) the spool, queues the
// write for replay against the primary later.
func (s *Spooling) recordWrite(ctx context.Context, kind string, payload spoolPayload, apply func(ports.Store) error) error {
	wasOffline := s.offline.Load()
	if err := s.guard(ctx, apply); err != nil {
		return err
	}
	if !wasOffline && !s.offline.Load() {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode spool replay payload: %w", err)
	}
	return s.spool.EnqueueReplay(ctx, kind, raw)
}

// Flush drains the replay queue against the primary, the `sync` CLI
// command's implementation of §6's "best-effort flushed on ... an
// explicit sync". It returns the number of entries successfully
// replayed. A replay that fails leaves the remainder queued for the
// next sync, preserving order.
func (s *Spooling) Flush(ctx context.Context) (int, error) {
	if err := s.primary.Health(ctx); err != nil {
		return 0, fmt.Errorf("server engine still unreachable: %w", err)
	}
	s.offline.Store(false)

	entries, err := s.spool.PendingReplay(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending replay entries: %w", err)
	}
	flushed := 0
	for _, e := range entries {
		if err := s.replay(ctx, e); err != nil {
			return flushed, fmt.Errorf("replay %s entry queued at %s: %w", e.Kind, e.CreatedAt.Format(time.RFC3339), err)
		}
		if err := s.spool.DequeueReplay(ctx, e.ID); err != nil {
			return flushed, fmt.Errorf("dequeue replayed entry: %w", err)
		}
		flushed++
	}
	return flushed, nil
}

// replay re-applies one queued entry against the primary. A duplicate
// (the same record already reached the primary through some other path
// before this sync ran) is treated as already-applied, not a failure.
func (s *Spooling) replay(ctx context.Context, e SpoolEntry) error {
	var p spoolPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return fmt.Errorf("decode replay payload: %w", err)
	}
	var err error
	switch e.Kind {
	case "listing.insert":
		err = s.primary.InsertListing(ctx, p.Listing)
	case "listing.classify":
		err = s.primary.UpdateListingClassification(ctx, p.Listing)
	case "application.insert":
		err = s.primary.InsertApplication(ctx, p.Application)
	case "application.outcome":
		err = s.primary.UpdateApplicationOutcome(ctx, p.Application)
	case "message.insert":
		err = s.primary.InsertMessage(ctx, p.Message)
	case "known_sender.upsert":
		err = s.primary.UpsertKnownSender(ctx, p.KnownSender)
	case "call_log.insert":
		err = s.primary.InsertCallLog(ctx, p.CallLog)
	case "variant.upsert":
		err = s.primary.UpsertResumeVariant(ctx, p.Variant)
	case "centroid.insert":
		err = s.primary.InsertCentroid(ctx, p.Centroid)
	case "alert.insert":
		err = s.primary.InsertAlert(ctx, p.Alert)
	case "watermark.set":
		err = s.primary.SetWatermark(ctx, p.Source, p.WatermarkID)
	default:
		return fmt.Errorf("unknown replay kind %q", e.Kind)
	}
	if err != nil && domain.Kind(err) == domain.KindUniqueConflict {
		return nil
	}
	return err
}

// --- Listings -----------------------------------------------------------

func (s *Spooling) InsertListing(ctx context.Context, l *domain.Listing) error {
	return s.recordWrite(ctx, "listing.insert", spoolPayload{Listing: l}, func(st ports.Store) error { return st.InsertListing(ctx, l) })
}

func (s *Spooling) GetListingByID(ctx context.Context, id string) (*domain.Listing, error) {
	return s.current().GetListingByID(ctx, id)
}

func (s *Spooling) GetListingByExternalID(ctx context.Context, externalID string) (*domain.Listing, error) {
	return s.current().GetListingByExternalID(ctx, externalID)
}

func (s *Spooling) UpdateListingClassification(ctx context.Context, l *domain.Listing) error {
	return s.recordWrite(ctx, "listing.classify", spoolPayload{Listing: l}, func(st ports.Store) error { return st.UpdateListingClassification(ctx, l) })
}

func (s *Spooling) SetIntelligenceOnly(ctx context.Context, listingID string, value bool) error {
	return s.current().SetIntelligenceOnly(ctx, listingID, value)
}

func (s *Spooling) ListListings(ctx context.Context, f ports.ListingFilter) ([]*domain.Listing, error) {
	return s.current().ListListings(ctx, f)
}

// --- Applications ---------------------------------------------------------

func (s *Spooling) InsertApplication(ctx context.Context, a *domain.Application) error {
	return s.recordWrite(ctx, "application.insert", spoolPayload{Application: a}, func(st ports.Store) error { return st.InsertApplication(ctx, a) })
}

func (s *Spooling) GetApplicationByID(ctx context.Context, id string) (*domain.Application, error) {
	return s.current().GetApplicationByID(ctx, id)
}

func (s *Spooling) GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (*domain.Application, error) {
	return s.current().GetApplicationByListingAndBatch(ctx, listingID, batchID)
}

func (s *Spooling) GetLatestApplicationByListingID(ctx context.Context, listingID string) (*domain.Application, error) {
	return s.current().GetLatestApplicationByListingID(ctx, listingID)
}

func (s *Spooling) UpdateApplicationOutcome(ctx context.Context, a *domain.Application) error {
	return s.recordWrite(ctx, "application.outcome", spoolPayload{Application: a}, func(st ports.Store) error { return st.UpdateApplicationOutcome(ctx, a) })
}

func (s *Spooling) ListOpenApplications(ctx context.Context, since time.Time) ([]*domain.Application, error) {
	return s.current().ListOpenApplications(ctx, since)
}

func (s *Spooling) ListApplicationsByArchetype(ctx context.Context, arch domain.Archetype) ([]*domain.Application, error) {
	return s.current().ListApplicationsByArchetype(ctx, arch)
}

// --- Messages ---------------------------------------------------------

func (s *Spooling) InsertMessage(ctx context.Context, m *domain.Message) error {
	return s.recordWrite(ctx, "message.insert", spoolPayload{Message: m}, func(st ports.Store) error { return st.InsertMessage(ctx, m) })
}

func (s *Spooling) MessageExists(ctx context.Context, externalID string) (bool, error) {
	return s.current().MessageExists(ctx, externalID)
}

func (s *Spooling) GetMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	return s.current().GetMessageByID(ctx, id)
}

// --- Known senders ---------------------------------------------------------

func (s *Spooling) UpsertKnownSender(ctx context.Context, k *domain.KnownSender) error {
	return s.recordWrite(ctx, "known_sender.upsert", spoolPayload{KnownSender: k}, func(st ports.Store) error { return st.UpsertKnownSender(ctx, k) })
}

func (s *Spooling) GetKnownSenderByAddress(ctx context.Context, address string) (*domain.KnownSender, error) {
	return s.current().GetKnownSenderByAddress(ctx, address)
}

// --- Call logs ---------------------------------------------------------

func (s *Spooling) InsertCallLog(ctx context.Context, c *domain.CallLog) error {
	return s.recordWrite(ctx, "call_log.insert", spoolPayload{CallLog: c}, func(st ports.Store) error { return st.InsertCallLog(ctx, c) })
}

// --- Resume variants ---------------------------------------------------------

func (s *Spooling) UpsertResumeVariant(ctx context.Context, v *domain.ResumeVariant) error {
	return s.recordWrite(ctx, "variant.upsert", spoolPayload{Variant: v}, func(st ports.Store) error { return st.UpsertResumeVariant(ctx, v) })
}

func (s *Spooling) GetResumeVariant(ctx context.Context, archetype domain.Archetype) (*domain.ResumeVariant, error) {
	return s.current().GetResumeVariant(ctx, archetype)
}

func (s *Spooling) ListResumeVariants(ctx context.Context) ([]*domain.ResumeVariant, error) {
	return s.current().ListResumeVariants(ctx)
}

// --- Centroids ---------------------------------------------------------

func (s *Spooling) InsertCentroid(ctx context.Context, c *domain.MarketCentroid) error {
	return s.recordWrite(ctx, "centroid.insert", spoolPayload{Centroid: c}, func(st ports.Store) error { return st.InsertCentroid(ctx, c) })
}

func (s *Spooling) GetLatestCentroid(ctx context.Context, archetype domain.Archetype) (*domain.MarketCentroid, error) {
	return s.current().GetLatestCentroid(ctx, archetype)
}

func (s *Spooling) GetCentroidAt(ctx context.Context, archetype domain.Archetype, windowStart time.Time) (*domain.MarketCentroid, error) {
	return s.current().GetCentroidAt(ctx, archetype, windowStart)
}

func (s *Spooling) ListCentroids(ctx context.Context, archetype domain.Archetype, limit int) ([]*domain.MarketCentroid, error) {
	return s.current().ListCentroids(ctx, archetype, limit)
}

// --- Alerts ---------------------------------------------------------

func (s *Spooling) InsertAlert(ctx context.Context, a *domain.DriftAlert) error {
	return s.recordWrite(ctx, "alert.insert", spoolPayload{Alert: a}, func(st ports.Store) error { return st.InsertAlert(ctx, a) })
}

func (s *Spooling) GetLatestUnacknowledgedAlert(ctx context.Context, archetype domain.Archetype, kind domain.AlertKind) (*domain.DriftAlert, error) {
	return s.current().GetLatestUnacknowledgedAlert(ctx, archetype, kind)
}

func (s *Spooling) AcknowledgeAlert(ctx context.Context, id string) error {
	return s.current().AcknowledgeAlert(ctx, id)
}

func (s *Spooling) ListUnacknowledgedAlerts(ctx context.Context) ([]*domain.DriftAlert, error) {
	return s.current().ListUnacknowledgedAlerts(ctx)
}

// --- Batches ---------------------------------------------------------
//
// Batch lifecycle is not spooled: OpenBatch's single-open-batch guarantee
// is enforced by a single-writer lock at the store layer (§9) that only
// means something against one engine at a time. Opening/closing a batch
// offline against the spool and replaying it later could race a batch
// opened directly against the primary by another host in the meantime;
// rather than risk two open batches, these calls run against whichever
// engine is current and are not queued for replay.

func (s *Spooling) OpenBatch(ctx context.Context, archetype domain.Archetype, now time.Time) (*domain.Batch, error) {
	return s.current().OpenBatch(ctx, archetype, now)
}

func (s *Spooling) GetOpenBatch(ctx context.Context) (*domain.Batch, error) {
	return s.current().GetOpenBatch(ctx)
}

func (s *Spooling) CloseBatch(ctx context.Context, batchID string, now time.Time) error {
	return s.current().CloseBatch(ctx, batchID, now)
}

func (s *Spooling) IncrementBatchCount(ctx context.Context, batchID string) error {
	return s.current().IncrementBatchCount(ctx, batchID)
}

// --- Funnel / rollups ---------------------------------------------------------

func (s *Spooling) FunnelCounts(ctx context.Context) (ports.FunnelCounts, error) {
	return s.current().FunnelCounts(ctx)
}

// --- Watermarks ---------------------------------------------------------

func (s *Spooling) GetWatermark(ctx context.Context, source string) (string, error) {
	return s.current().GetWatermark(ctx, source)
}

func (s *Spooling) SetWatermark(ctx context.Context, source, id string) error {
	return s.recordWrite(ctx, "watermark.set", spoolPayload{Source: source, WatermarkID: id}, func(st ports.Store) error { return st.SetWatermark(ctx, source, id) })
}

// WithTx delegates to whichever engine is currently live. fn receives
// that engine's own transaction-scoped Store directly, not a Spooling,
// so — unlike a plain InsertX/UpdateX call — a transaction run while
// offline is not queued in spool_replay for Flush to replay later: it
// commits only to the spool and stays there. Known limitation, not
// currently hit in practice: the one caller (matcher.Matcher.MatchMessage's
// known-sender-plus-outcome update) only reaches WithTx once a message
// has already matched an application, and matching requires the open
// applications and known-sender rows Flush would have reconciled first,
// so by the time WithTx runs the spool and primary are expected to
// already agree on those rows. A write that diverges here needs the
// operator to reconcile manually; see DESIGN.md.
func (s *Spooling) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Store) error) error {
	return s.current().WithTx(ctx, fn)
}

// --- Lifecycle ---------------------------------------------------------

func (s *Spooling) Close() error {
	err := s.primary.Close()
	if spoolErr := s.spool.Close(); spoolErr != nil && err == nil {
		err = spoolErr
	}
	return err
}

// Health reports the primary's reachability; callers that need the
// spool's own health (for the embedded engine by itself) use Health on
// that engine directly.
func (s *Spooling) Health(ctx context.Context) error {
	return s.primary.Health(ctx)
}
