package matcher

import (
	"strings"
	"time"

	"github.com/kazimov/jobtrail/domain"
)

// Candidate pairs an open application with the listing it was submitted
// against — everything the cascade's four steps need.
type Candidate struct {
	Application *domain.Application
	Listing     *domain.Listing
	Score       float64
}

// CascadeInput bundles the inbound signal the cascade scores against.
// Entity overrides sender-domain derivation for the call-log path (§4.5:
// "call-log entries flow through the same cascade using provided
// entity/title/date inputs"), where there is no sender address to root.
type CascadeInput struct {
	SenderAddress string
	Entity        string
	Subject       string
	Body          string
	ReceivedAt    time.Time
}

// CascadeDecision is the cascade's verdict.
type CascadeDecision struct {
	Method     domain.MatchMethod
	Matched    *Candidate
	TopRanked  []Candidate // up to 3, for requires_manual_review
}

const (
	titleJaccardFloor  = 0.2
	techTagBonus       = 0.1
	dateNearBonus      = 0.2
	dateFarBonus       = 0.1
	dateNearDays       = 30
	dateFarDays        = 60
	knownSenderSimFloor = 0.7
	domainLabelSimFloor = 0.5
)

// RunCascade implements §4.5's four-step fuzzy matching pipeline. known
// is nil when the sender has no KnownSender record yet. candidates is
// the full open-application set before domain filtering.
func RunCascade(in CascadeInput, known *domain.KnownSender, candidates []Candidate, autoMatchThreshold float64) CascadeDecision {
	// Step 1: domain (or, for call-log inputs, the provided entity directly).
	filtered := filterByDomain(in, known, candidates)
	if len(filtered) == 0 {
		return CascadeDecision{Method: domain.MatchUnmatched}
	}

	// Step 2: title (also drops sub-floor candidates).
	subjectAndBody := in.Subject + " " + in.Body
	scored := make([]Candidate, 0, len(filtered))
	for _, c := range filtered {
		sim := TitleJaccard(subjectAndBody, c.Listing.Title)
		if sim < titleJaccardFloor {
			continue
		}
		c.Score = sim
		scored = append(scored, c)
	}
	if len(scored) == 0 {
		return CascadeDecision{Method: domain.MatchUnmatched}
	}

	// Step 3: tech overlap.
	lowerBody := strings.ToLower(in.Body)
	for i := range scored {
		count := 0
		for _, tag := range scored[i].Listing.TechnologyTags {
			if tag == "" {
				continue
			}
			if strings.Contains(lowerBody, strings.ToLower(tag)) {
				count++
			}
		}
		scored[i].Score += techTagBonus * float64(count)
	}

	// Step 4: date proximity.
	for i := range scored {
		days := in.ReceivedAt.Sub(scored[i].Application.SubmittedAt).Hours() / 24
		switch {
		case days >= 0 && days <= dateNearDays:
			scored[i].Score += dateNearBonus
		case days > dateNearDays && days <= dateFarDays:
			scored[i].Score += dateFarBonus
		}
	}

	sortByScoreDesc(scored)

	aboveThreshold := 0
	for _, c := range scored {
		if c.Score > autoMatchThreshold {
			aboveThreshold++
		}
	}

	if aboveThreshold == 1 {
		winner := scored[0]
		return CascadeDecision{Method: domain.MatchCascade, Matched: &winner}
	}

	top := scored
	if len(top) > 3 {
		top = top[:3]
	}
	return CascadeDecision{TopRanked: top}
}

func filterByDomain(in CascadeInput, known *domain.KnownSender, candidates []Candidate) []Candidate {
	var out []Candidate
	if known != nil {
		for _, c := range candidates {
			if EntitySimilarity(known.HiringEntity, c.Listing.HiringEntity) > knownSenderSimFloor {
				out = append(out, c)
			}
		}
		return out
	}
	label := in.Entity
	if label == "" {
		label = RootLabel(RootDomain(in.SenderAddress))
	}
	for _, c := range candidates {
		if EntitySimilarity(label, c.Listing.HiringEntity) > domainLabelSimFloor {
			out = append(out, c)
		}
	}
	return out
}

func sortByScoreDesc(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Score > c[j-1].Score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
