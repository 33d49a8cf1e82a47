// Package ports defines the interfaces the engine depends on: the Store
// (§4.1) and the six external collaborators (§6). Concrete
// implementations live under internal/ (platform adapters) and store/
// (the Postgres and embedded engines).
package ports

import (
	"context"
	"time"

	"github.com/kazimov/jobtrail/domain"
)

// ListingFilter narrows Store.ListListings range queries.
type ListingFilter struct {
	Archetype        domain.Archetype
	SeenAfter        time.Time
	SeenBefore       time.Time
	IntelligenceOnly *bool
	Unclassified     bool
	Limit            int
}

// Store is the single mutable shared resource of the core (§9 Ownership
// graph): every cross-entity relation is resolved here by identifier.
// Implementations: store/postgres (server engine) and store/embedded
// (single-file engine / offline spool, §6 Persisted state layout).
type Store interface {
	// Listings
	InsertListing(ctx context.Context, l *domain.Listing) error
	GetListingByID(ctx context.Context, id string) (*domain.Listing, error)
	GetListingByExternalID(ctx context.Context, externalID string) (*domain.Listing, error)
	UpdateListingClassification(ctx context.Context, l *domain.Listing) error
	SetIntelligenceOnly(ctx context.Context, listingID string, value bool) error
	ListListings(ctx context.Context, f ListingFilter) ([]*domain.Listing, error)

	// Applications
	InsertApplication(ctx context.Context, a *domain.Application) error
	GetApplicationByID(ctx context.Context, id string) (*domain.Application, error)
	GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (*domain.Application, error)
	GetLatestApplicationByListingID(ctx context.Context, listingID string) (*domain.Application, error)
	UpdateApplicationOutcome(ctx context.Context, a *domain.Application) error
	ListOpenApplications(ctx context.Context, since time.Time) ([]*domain.Application, error)
	ListApplicationsByArchetype(ctx context.Context, arch domain.Archetype) ([]*domain.Application, error)

	// Messages
	InsertMessage(ctx context.Context, m *domain.Message) error
	MessageExists(ctx context.Context, externalID string) (bool, error)
	GetMessageByID(ctx context.Context, id string) (*domain.Message, error)

	// Known senders
	UpsertKnownSender(ctx context.Context, s *domain.KnownSender) error
	GetKnownSenderByAddress(ctx context.Context, address string) (*domain.KnownSender, error)

	// Call logs
	InsertCallLog(ctx context.Context, c *domain.CallLog) error

	// Resume variants
	UpsertResumeVariant(ctx context.Context, v *domain.ResumeVariant) error
	GetResumeVariant(ctx context.Context, archetype domain.Archetype) (*domain.ResumeVariant, error)
	ListResumeVariants(ctx context.Context) ([]*domain.ResumeVariant, error)

	// Centroids
	InsertCentroid(ctx context.Context, c *domain.MarketCentroid) error
	GetLatestCentroid(ctx context.Context, archetype domain.Archetype) (*domain.MarketCentroid, error)
	GetCentroidAt(ctx context.Context, archetype domain.Archetype, windowStart time.Time) (*domain.MarketCentroid, error)
	ListCentroids(ctx context.Context, archetype domain.Archetype, limit int) ([]*domain.MarketCentroid, error)

	// Alerts
	InsertAlert(ctx context.Context, a *domain.DriftAlert) error
	GetLatestUnacknowledgedAlert(ctx context.Context, archetype domain.Archetype, kind domain.AlertKind) (*domain.DriftAlert, error)
	AcknowledgeAlert(ctx context.Context, id string) error
	ListUnacknowledgedAlerts(ctx context.Context) ([]*domain.DriftAlert, error)

	// Batches — batch opening is serialised by a single-writer lock at the
	// store layer (§9), not in-process, since the core may run split
	// across two hosts against the same store.
	OpenBatch(ctx context.Context, archetype domain.Archetype, now time.Time) (*domain.Batch, error)
	GetOpenBatch(ctx context.Context) (*domain.Batch, error)
	CloseBatch(ctx context.Context, batchID string, now time.Time) error
	IncrementBatchCount(ctx context.Context, batchID string) error

	// Funnel / rollups (§12 supplemented feature, grounded on the
	// teacher's modules/analytics CTE rollups)
	FunnelCounts(ctx context.Context) (FunnelCounts, error)

	// Watermarks (§4.8 Scheduler: "tracks the last-processed message
	// identifier per source as a watermark")
	GetWatermark(ctx context.Context, source string) (string, error)
	SetWatermark(ctx context.Context, source, id string) error

	// WithTx runs fn against a single transaction: every call fn makes
	// through tx either all commit or all roll back together. Required
	// for compound updates spanning more than one entity — e.g. upserting
	// a KnownSender and setting an Application's outcome together in
	// matcher.Matcher.MatchMessage — where a crash between two
	// independent calls would otherwise leave the two tables
	// inconsistent with each other.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Lifecycle
	Close() error
	Health(ctx context.Context) error
}

// FunnelCounts is the per-stage aggregate backing the CLI `status` command.
type FunnelCounts struct {
	TotalListings         int
	IntelligenceOnly      int
	Queued                int
	TotalApplications     int
	ByOutcome             map[domain.OutcomeStage]int
	ManualReviewMessages  int
}
