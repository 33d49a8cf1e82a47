// Package matcher implements the Outcome Matcher (spec §4.5): rule-based
// outcome classification plus two record-linkage paths — a deterministic
// external-id match for structured (job-board) senders, and a four-step
// fuzzy cascade (domain -> title -> tech overlap -> date proximity) for
// everything else.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
)

// Config carries the matcher's one dynamic-config threshold (§9).
type Config struct {
	AutoMatchConfidence float64 // default 0.5
}

func DefaultConfig() Config { return Config{AutoMatchConfidence: 0.5} }

type Matcher struct {
	store ports.Store
	cfg   Config
}

func New(store ports.Store, cfg Config) *Matcher {
	return &Matcher{store: store, cfg: cfg}
}

// MatchResult summarises what happened for callers (Scheduler, CLI).
type MatchResult struct {
	Message *domain.Message
	Matched bool
}

// MatchMessage classifies and links an inbound message. Re-ingesting the
// same external id is a no-op (idempotence property, §8).
func (m *Matcher) MatchMessage(ctx context.Context, in ports.InboundMessage) (*MatchResult, error) {
	exists, err := m.store.MessageExists(ctx, in.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("check message exists: %w", err)
	}
	if exists {
		return &MatchResult{}, nil
	}

	msg := &domain.Message{
		ExternalID:    in.ExternalID,
		ReceivedAt:    in.ReceivedAt,
		SenderAddress: in.SenderAddress,
		SenderDomain:  RootDomain(in.SenderAddress),
		Subject:       in.Subject,
		Body:          in.PlainBody,
		MatchMethod:   domain.MatchUnmatched,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	stage, confidence := ClassifyOutcome(msg.Body)
	msg.OutcomeClassification = stage
	msg.Confidence = confidence
	msg.SourceClass = m.classifySource(ctx, msg.SenderAddress, msg.SenderDomain)

	matchedApp, method, err := m.resolveApplication(ctx, msg)
	if err != nil {
		return nil, err
	}

	switch method {
	case domain.MatchExternalID, domain.MatchCascade:
		msg.MatchedApplicationID = matchedApp.ID
		msg.MatchMethod = method
		if stage != "" {
			// Compound update (§4.1 store capabilities): setting the
			// application's outcome and upserting the known sender must
			// land together, or not at all — a crash between the two
			// independent calls would otherwise leave a known sender on
			// record for an application whose outcome never actually
			// updated (or vice versa).
			if err := m.store.WithTx(ctx, func(ctx context.Context, tx ports.Store) error {
				if err := m.applyOutcome(ctx, tx, matchedApp, stage, msg); err != nil {
					return err
				}
				return m.learnSender(ctx, tx, msg, matchedApp)
			}); err != nil {
				return nil, err
			}
		}
	default:
		msg.MatchMethod = domain.MatchUnmatched
		msg.RequiresManualReview = method == domain.MatchManual
	}

	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &MatchResult{Message: msg, Matched: msg.MatchedApplicationID != ""}, nil
}

func (m *Matcher) classifySource(ctx context.Context, address, rootDomain string) domain.SenderClass {
	if IsStructuredSender(address) {
		return domain.SenderStructured
	}
	if known, err := m.store.GetKnownSenderByAddress(ctx, address); err == nil && known != nil {
		return known.SenderType
	}
	lower := strings.ToLower(rootDomain)
	if strings.Contains(lower, "recruit") || strings.Contains(lower, "staffing") || strings.Contains(lower, "agency") {
		return domain.SenderAgency
	}
	return domain.SenderDirect
}

// resolveApplication tries the deterministic structured path first, then
// falls back to the fuzzy cascade. The third return value is one of
// domain.MatchExternalID, domain.MatchCascade, domain.MatchManual, or
// domain.MatchUnmatched.
func (m *Matcher) resolveApplication(ctx context.Context, msg *domain.Message) (*domain.Application, domain.MatchMethod, error) {
	if IsStructuredSender(msg.SenderAddress) {
		if extID, ok := ExtractListingID(msg.Body); ok {
			listing, err := m.store.GetListingByExternalID(ctx, extID)
			if err == nil && listing != nil {
				app, err := m.store.GetLatestApplicationByListingID(ctx, listing.ID)
				if err == nil && app != nil {
					return app, domain.MatchExternalID, nil
				}
			}
		}
	}

	openApps, err := m.store.ListOpenApplications(ctx, time.Time{})
	if err != nil {
		return nil, domain.MatchUnmatched, fmt.Errorf("list open applications: %w", err)
	}
	candidates := make([]Candidate, 0, len(openApps))
	for _, app := range openApps {
		listing, err := m.store.GetListingByID(ctx, app.ListingID)
		if err != nil || listing == nil {
			continue
		}
		candidates = append(candidates, Candidate{Application: app, Listing: listing})
	}

	known, _ := m.store.GetKnownSenderByAddress(ctx, msg.SenderAddress)

	decision := RunCascade(CascadeInput{
		SenderAddress: msg.SenderAddress,
		Subject:       msg.Subject,
		Body:          msg.Body,
		ReceivedAt:    msg.ReceivedAt,
	}, known, candidates, m.cfg.AutoMatchConfidence)

	switch decision.Method {
	case domain.MatchCascade:
		return decision.Matched.Application, domain.MatchCascade, nil
	default:
		if len(decision.TopRanked) > 0 {
			ids := make([]string, 0, len(decision.TopRanked))
			for _, c := range decision.TopRanked {
				ids = append(ids, c.Application.ID)
			}
			msg.CandidateApplicationIDs = ids
			return nil, domain.MatchManual, nil
		}
		return nil, domain.MatchUnmatched, nil
	}
}

// applyOutcome enforces the never-downgrade invariant (§8) via
// domain.Application.ApplyOutcome before persisting. st is whichever
// Store the caller wants the write to land on — m.store directly, or a
// transaction-scoped Store from m.store.WithTx for a compound update.
func (m *Matcher) applyOutcome(ctx context.Context, st ports.Store, app *domain.Application, stage domain.OutcomeStage, msg *domain.Message) error {
	if err := app.ApplyOutcome(stage, msg.ReceivedAt, msg.ExternalID); err != nil {
		if err == domain.ErrOutcomeDowngrade {
			return nil // not an error per §7: matcher ambiguities/no-ops are not errors
		}
		return err
	}
	return st.UpdateApplicationOutcome(ctx, app)
}

func (m *Matcher) learnSender(ctx context.Context, st ports.Store, msg *domain.Message, app *domain.Application) error {
	listing, err := st.GetListingByID(ctx, app.ListingID)
	if err != nil {
		return fmt.Errorf("load listing for known-sender upsert: %w", err)
	}
	return st.UpsertKnownSender(ctx, &domain.KnownSender{
		Address:      msg.SenderAddress,
		RootDomain:   msg.SenderDomain,
		HiringEntity: listing.HiringEntity,
		SenderType:   msg.SourceClass,
		FirstSeenAt:  msg.ReceivedAt,
	})
}

// MatchCallLog routes a manually logged call through the same four-step
// cascade as an inbound Message (§4.5: "Call-log entries flow through the
// same cascade using provided entity/title/date inputs") — entity stands
// in for the domain-filtering step, title and notes feed the
// title/tech-overlap steps, and the call date feeds date proximity.
func (m *Matcher) MatchCallLog(ctx context.Context, e ports.CallLogEntry) (*domain.CallLog, error) {
	stage, _ := ClassifyOutcome(e.Outcome + " " + e.Notes)
	log := &domain.CallLog{
		Phone:        e.Phone,
		HiringEntity: e.HiringEntity,
		Title:        e.Title,
		Outcome:      stage,
		Notes:        e.Notes,
		CallDate:     e.CallDate,
	}

	openApps, err := m.store.ListOpenApplications(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list open applications: %w", err)
	}
	candidates := make([]Candidate, 0, len(openApps))
	for _, app := range openApps {
		listing, err := m.store.GetListingByID(ctx, app.ListingID)
		if err != nil || listing == nil {
			continue
		}
		candidates = append(candidates, Candidate{Application: app, Listing: listing})
	}

	decision := RunCascade(CascadeInput{
		Entity:     e.HiringEntity,
		Subject:    e.Title,
		Body:       e.Notes,
		ReceivedAt: e.CallDate,
	}, nil, candidates, m.cfg.AutoMatchConfidence)

	switch decision.Method {
	case domain.MatchCascade:
		log.MatchedApplicationID = decision.Matched.Application.ID
		if stage != "" {
			if err := m.applyOutcome(ctx, m.store, decision.Matched.Application, stage, &domain.Message{ExternalID: "call:" + e.Phone, ReceivedAt: e.CallDate}); err != nil {
				return nil, err
			}
		}
	default:
		if len(decision.TopRanked) > 0 {
			ids := make([]string, 0, len(decision.TopRanked))
			for _, c := range decision.TopRanked {
				ids = append(ids, c.Application.ID)
			}
			log.CandidateApplicationIDs = ids
			log.RequiresManualReview = true
		}
	}

	if err := m.store.InsertCallLog(ctx, log); err != nil {
		return nil, fmt.Errorf("insert call log: %w", err)
	}
	return log, nil
}
