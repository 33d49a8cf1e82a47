package domain

import "time"

// KnownSender is the cascade matcher's fast-path cache, populated on
// confirmed matches. Unique by Address.
type KnownSender struct {
	Address      string
	RootDomain   string
	HiringEntity string
	SenderType   SenderClass
	FirstSeenAt  time.Time
}

// CallLog is a manually logged phone outcome, cascade-matched the same
// way as an inbound Message (§4.5).
type CallLog struct {
	ID                      string
	Phone                   string
	HiringEntity            string
	Title                   string
	Outcome                 OutcomeStage
	Notes                   string
	CallDate                time.Time
	MatchedApplicationID    string
	RequiresManualReview    bool
	CandidateApplicationIDs []string
	CreatedAt               time.Time
}
