package ports

import (
	"context"
	"time"

	"github.com/kazimov/jobtrail/domain"
)

// ScrapedListing is what the Scraper pushes into the Store.
type ScrapedListing struct {
	ExternalID    string
	Title         string
	HiringEntity  string
	FullText      string
	FirstSeenAt   time.Time
	SearchKeyword string
}

// Scraper produces listings. Push model: the scraper calls the engine's
// ingest entry point, which inserts and fires the post-insert hook.
type Scraper interface {
	Listings(ctx context.Context) (<-chan ScrapedListing, <-chan error)
}

// SubmissionOutcome is the Submitter's verdict on one application attempt.
type SubmissionOutcome struct {
	Success   bool
	Transient bool // true: retryable; false with Success=false: permanent
	Err       error
}

// ApplicationPlan is what the Coordinator hands the Submitter.
type ApplicationPlan struct {
	ListingID        string
	Archetype        domain.Archetype
	VariantPath      string
	VariantVersionID string
	ProfileState     domain.Archetype
}

// Submitter performs the remote side effect of applying. It guarantees
// submissions occur only while the external profile state equals the
// plan's ProfileState; the core treats it as single-flight.
type Submitter interface {
	Submit(ctx context.Context, plan ApplicationPlan) SubmissionOutcome
}

// InboundMessage is what the Inbox yields, in receive-time order.
type InboundMessage struct {
	ExternalID    string
	ReceivedAt    time.Time
	SenderAddress string
	Subject       string
	PlainBody     string
	HTMLBody      string
}

// Inbox yields messages newer than the watermark, within a lookback window.
type Inbox interface {
	Poll(ctx context.Context, watermark string, lookback time.Duration) ([]InboundMessage, error)
}

// CallLogEntry is what the call-log intake form submits.
type CallLogEntry struct {
	Phone        string
	HiringEntity string
	Title        string
	Outcome      string
	Notes        string
	CallDate     time.Time
}

// CallLogIntake is the single write endpoint for manually logged calls.
type CallLogIntake interface {
	Log(ctx context.Context, e CallLogEntry) error
}

// EmbeddingModel produces a fixed-dimension vector per input string.
// ModelVersion identifies the embedding space; a version change forces a
// re-embedding pass before centroids can be recomputed (§9).
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) (domain.Vector, error)
	ModelVersion() string
	Dimensions() int
}

// VersionStore addresses résumé variants by (archetype, version
// identifier). The core never mutates this store.
type VersionStore interface {
	Current(ctx context.Context, archetype domain.Archetype) (versionID string, path string, err error)
	Resolve(ctx context.Context, archetype domain.Archetype, versionID string) (path string, err error)
}
