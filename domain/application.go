package domain

import "time"

// OutcomeStage is the application's lifecycle stage. Priority order for
// demotion-prevention (highest first): offer > interview > rejected >
// viewed > acknowledged > submitted; ghost shares the floor with
// submitted.
type OutcomeStage string

const (
	StageSubmitted   OutcomeStage = "submitted"
	StageAcknowledged OutcomeStage = "acknowledged"
	StageViewed      OutcomeStage = "viewed"
	StageRejected    OutcomeStage = "rejected"
	StageInterview   OutcomeStage = "interview"
	StageOffer       OutcomeStage = "offer"
	StageGhost       OutcomeStage = "ghost"
)

// outcomePriority orders stages for the never-downgrade invariant (§8).
// Offer and interview outrank rejection so a late offer after a form
// rejection still registers; ghost and submitted are the floor.
var outcomePriority = map[OutcomeStage]int{
	StageSubmitted:    0,
	StageGhost:        0,
	StageAcknowledged: 1,
	StageViewed:       2,
	StageRejected:     3,
	StageInterview:    4,
	StageOffer:        5,
}

// Priority returns the stage's demotion-prevention rank.
func (s OutcomeStage) Priority() int { return outcomePriority[s] }

// Outranks reports whether s may replace current under the never-downgrade
// invariant: only a strictly higher priority may overwrite.
func (s OutcomeStage) Outranks(current OutcomeStage) bool {
	return s.Priority() > current.Priority()
}

// Application is the core aggregate linking a Listing to a submission.
// Mutated only by outcome updates after creation at batch emission.
type Application struct {
	ID                string
	ListingID         string
	VariantArchetype  Archetype
	VersionIdentifier string
	ProfileState      Archetype
	BatchID           string
	SubmittedAt       time.Time
	Outcome           OutcomeStage
	OutcomeAt         time.Time
	OutcomeMessageID  string
	SelectionRationale string
	SubmissionFailed  bool
	SubmissionError   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ApplyOutcome enforces the never-downgrade invariant in-place. Returns
// ErrOutcomeDowngrade without mutating the application if next does not
// strictly outrank the current stage.
func (a *Application) ApplyOutcome(next OutcomeStage, at time.Time, messageID string) error {
	if !next.Outranks(a.Outcome) {
		return ErrOutcomeDowngrade
	}
	a.Outcome = next
	a.OutcomeAt = at
	a.OutcomeMessageID = messageID
	return nil
}
