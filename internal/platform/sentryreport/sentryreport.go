// Package sentryreport reports permanent-external, invariant-violation and
// internal errors (the kinds that must surface immediately, never retried)
// to Sentry, via getsentry/sentry-go.
package sentryreport

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/kazimov/jobtrail/domain"
)

func Init(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}

// Report sends err to Sentry if its kind warrants immediate operator
// attention; validation and unique-conflict errors are not reported,
// they are expected caller-facing outcomes, not system faults.
func Report(err error, tags map[string]string) {
	if err == nil {
		return
	}
	switch domain.Kind(err) {
	case domain.KindPermanentExternal, domain.KindInvariantViolation, domain.KindInternal:
	default:
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush blocks until queued events are sent or timeout elapses, called
// once on shutdown.
func Flush(timeout time.Duration) { sentry.Flush(timeout) }
