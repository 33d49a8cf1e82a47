package domain

import "errors"

// ErrorKind is one of the six error kinds from the error handling design.
// Propagation differs per kind: transient errors retry with backoff,
// permanent and invariant errors surface immediately, validation and
// unique-conflict errors are reported to the caller without retry.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindUniqueConflict    ErrorKind = "unique_conflict"
	KindTransientExternal ErrorKind = "transient_external"
	KindPermanentExternal ErrorKind = "permanent_external"
	KindInvariantViolation ErrorKind = "invariant_violation"
	KindInternal          ErrorKind = "internal"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) at the call site
// so errors.Is still matches while callers get field-specific context.
var (
	ErrListingNotFound     = errors.New("listing not found")
	ErrListingDuplicate    = errors.New("listing external id already exists")
	ErrListingIntelligenceOnly = errors.New("listing is intelligence-only and cannot be applied to")
	ErrApplicationNotFound = errors.New("application not found")
	ErrOutcomeDowngrade    = errors.New("outcome downgrade rejected: new stage has lower or equal priority")
	ErrMessageDuplicate    = errors.New("message external id already exists")
	ErrMessageNotFound     = errors.New("message not found")
	ErrKnownSenderDuplicate = errors.New("known sender address already exists")
	ErrCentroidDuplicate   = errors.New("centroid already recorded for this archetype and window")
	ErrCentroidInsufficientData = errors.New("fewer than the minimum listing count for this window")
	ErrBatchAlreadyOpen    = errors.New("a batch is already open")
	ErrBatchNotOpen        = errors.New("no batch is open")
	ErrBatchProfileMismatch = errors.New("external profile state does not match requested archetype")
	ErrVariantNotFound     = errors.New("resume variant not found")
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension does not match stored dimension")
	ErrEmbeddingVersionMismatch   = errors.New("embedding model version mismatch, re-embedding required")
	ErrValidation          = errors.New("validation failed")
	ErrInternal            = errors.New("internal store consistency error")
)

// Kind classifies a sentinel (or wrapped sentinel) error into one of the
// six propagation kinds. Unrecognised errors are treated as internal.
func Kind(err error) ErrorKind {
	var t *Transient
	var p *Permanent
	switch {
	case err == nil:
		return ""
	case errors.As(err, &t):
		return KindTransientExternal
	case errors.As(err, &p):
		return KindPermanentExternal
	case errors.Is(err, ErrListingDuplicate), errors.Is(err, ErrMessageDuplicate),
		errors.Is(err, ErrKnownSenderDuplicate), errors.Is(err, ErrCentroidDuplicate):
		return KindUniqueConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrOutcomeDowngrade), errors.Is(err, ErrBatchAlreadyOpen),
		errors.Is(err, ErrBatchProfileMismatch), errors.Is(err, ErrEmbeddingDimensionMismatch),
		errors.Is(err, ErrListingIntelligenceOnly):
		return KindInvariantViolation
	case errors.Is(err, ErrInternal):
		return KindInternal
	default:
		return KindInternal
	}
}

// Transient wraps an error from an external collaborator (embedding,
// submitter, inbox) that should be retried with capped exponential backoff.
type Transient struct {
	Op  string
	Err error
}

func (t *Transient) Error() string { return "transient: " + t.Op + ": " + t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// Permanent wraps an error from an external collaborator that must not be
// retried (authentication revoked, schema change).
type Permanent struct {
	Op  string
	Err error
}

func (p *Permanent) Error() string { return "permanent: " + p.Op + ": " + p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// IsRetryable reports whether err (or a wrapped cause) is a Transient.
func IsRetryable(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// ExitCode maps an error to the CLI's required exit-code distinctions
// (§6): 0 success, 1 invalid invocation, 2 transient-store, 3 permanent-store.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Kind(err) {
	case KindValidation:
		return 1
	case KindTransientExternal:
		return 2
	case KindPermanentExternal, KindInvariantViolation, KindInternal, KindUniqueConflict:
		return 3
	default:
		return 3
	}
}
