// Package rewrite implements the Rewrite Trigger (spec §4.7): a
// three-condition state machine gating résumé-rewrite alerts with a
// cooldown, to suppress the jitter a single-metric trigger would produce.
package rewrite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
)

// Config carries the trigger's dynamic-config thresholds (§9).
type Config struct {
	ShiftThreshold      float64       // default 0.05
	StalenessThreshold  float64       // default 0.08
	RewriteCooldown     time.Duration // default 21 days
}

func DefaultConfig() Config {
	return Config{ShiftThreshold: 0.05, StalenessThreshold: 0.08, RewriteCooldown: 21 * 24 * time.Hour}
}

// Notifier is implemented by internal/platform/email; nil disables
// notification entirely (e.g. in tests or offline/embedded mode).
type Notifier interface {
	NotifyAlert(ctx context.Context, alert *domain.DriftAlert) error
}

type Trigger struct {
	store    ports.Store
	cfg      Config
	notifier Notifier
}

func New(store ports.Store, cfg Config) *Trigger {
	return &Trigger{store: store, cfg: cfg}
}

// WithNotifier attaches an email notifier; returns the same Trigger for
// chaining at construction time.
func (t *Trigger) WithNotifier(n Notifier) *Trigger {
	t.notifier = n
	return t
}

func (t *Trigger) notify(ctx context.Context, alert *domain.DriftAlert) {
	if t.notifier == nil {
		return
	}
	_ = t.notifier.NotifyAlert(ctx, alert) // best-effort; a dropped notification is not fatal to the engine
}

// EvaluateCentroid checks condition 1 after a new centroid is computed:
// fires (persists) a market_shift alert when shift strictly exceeds the
// threshold. Shift exactly at the threshold does not fire (§8 boundary).
func (t *Trigger) EvaluateCentroid(ctx context.Context, c *domain.MarketCentroid) error {
	if !c.HasPrevious || c.ShiftFromPrev <= t.cfg.ShiftThreshold {
		return nil
	}
	alert := &domain.DriftAlert{
		ID:          uuid.NewString(),
		Archetype:   c.Archetype,
		Kind:        domain.AlertMarketShift,
		MetricValue: c.ShiftFromPrev,
		Threshold:   t.cfg.ShiftThreshold,
		Details: map[string]any{
			"window_start": c.WindowStart,
			"window_end":   c.WindowEnd,
			"terms_gained": c.TermsGained,
			"terms_lost":   c.TermsLost,
		},
	}
	if err := t.store.InsertAlert(ctx, alert); err != nil {
		return err
	}
	t.notify(ctx, alert)
	return nil
}

// EvaluateVariant checks condition 2: fires a resume_stale alert when the
// variant's staleness distance strictly exceeds the threshold.
func (t *Trigger) EvaluateVariant(ctx context.Context, v *domain.ResumeVariant) error {
	staleness := v.Staleness()
	if staleness <= t.cfg.StalenessThreshold {
		return nil
	}
	alert := &domain.DriftAlert{
		ID:          uuid.NewString(),
		Archetype:   v.Archetype,
		Kind:        domain.AlertResumeStale,
		MetricValue: staleness,
		Threshold:   t.cfg.StalenessThreshold,
		Details: map[string]any{
			"current_version": v.CurrentVersionID,
			"last_rewrite_at": v.LastRewriteAt,
		},
	}
	if err := t.store.InsertAlert(ctx, alert); err != nil {
		return err
	}
	t.notify(ctx, alert)
	return nil
}

// Report is the rewrite_triggered alert's plain-language payload, handed
// to internal/platform/docgen for rendering to .docx.
type Report struct {
	Archetype        domain.Archetype
	TermsGained      []string
	TermsLost        []string
	StalenessDistance float64
	CurrentVersionID string
	LastRewriteAt    time.Time
	SuggestedFocus   string
}

// EvaluateRewrite implements the three-condition gate (§4.7). "Recent" is
// resolved as "the latest for that archetype, still unacknowledged" per
// the spec's own resolution of that open question (§9).
func (t *Trigger) EvaluateRewrite(ctx context.Context, archetype domain.Archetype, now time.Time) (*Report, error) {
	shiftAlert, err := t.store.GetLatestUnacknowledgedAlert(ctx, archetype, domain.AlertMarketShift)
	if err != nil || shiftAlert == nil {
		return nil, nil //nolint:nilnil // absence of a condition is not an error
	}
	staleAlert, err := t.store.GetLatestUnacknowledgedAlert(ctx, archetype, domain.AlertResumeStale)
	if err != nil || staleAlert == nil {
		return nil, nil
	}
	variant, err := t.store.GetResumeVariant(ctx, archetype)
	if err != nil {
		return nil, fmt.Errorf("load variant: %w", err)
	}
	if !variant.LastRewriteAt.IsZero() && now.Sub(variant.LastRewriteAt) < t.cfg.RewriteCooldown {
		return nil, nil
	}

	gained := domain.DetailsStrings(shiftAlert.Details, "terms_gained")
	lost := domain.DetailsStrings(shiftAlert.Details, "terms_lost")

	report := &Report{
		Archetype:        archetype,
		TermsGained:      gained,
		TermsLost:        lost,
		StalenessDistance: staleAlert.MetricValue,
		CurrentVersionID: variant.CurrentVersionID,
		LastRewriteAt:    variant.LastRewriteAt,
		SuggestedFocus:   suggestFocus(gained, lost),
	}

	rewriteAlert := &domain.DriftAlert{
		ID:          uuid.NewString(),
		Archetype:   archetype,
		Kind:        domain.AlertRewriteTriggered,
		MetricValue: staleAlert.MetricValue,
		Threshold:   t.cfg.StalenessThreshold,
		Details: map[string]any{
			"shift_alert_id": shiftAlert.ID,
			"stale_alert_id": staleAlert.ID,
			"terms_gained":   gained,
			"terms_lost":     lost,
		},
	}
	if err := t.store.InsertAlert(ctx, rewriteAlert); err != nil {
		return nil, fmt.Errorf("insert rewrite_triggered alert: %w", err)
	}
	t.notify(ctx, rewriteAlert)

	if err := t.store.AcknowledgeAlert(ctx, shiftAlert.ID); err != nil {
		return nil, fmt.Errorf("acknowledge shift alert: %w", err)
	}
	if err := t.store.AcknowledgeAlert(ctx, staleAlert.ID); err != nil {
		return nil, fmt.Errorf("acknowledge stale alert: %w", err)
	}

	return report, nil
}

func suggestFocus(gained, lost []string) string {
	if len(gained) == 0 {
		return "Market vocabulary has drifted; review recent listings for emerging emphasis."
	}
	focus := "Consider emphasizing: "
	for i, term := range gained {
		if i > 0 {
			focus += ", "
		}
		focus += term
		if i == 2 {
			break
		}
	}
	if len(lost) > 0 {
		focus += ". De-emphasize: " + lost[0]
	}
	return focus
}
