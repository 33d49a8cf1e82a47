package matcher

import (
	"strings"

	"github.com/kazimov/jobtrail/domain"
)

// outcomeKeywords gives each candidate outcome its keyword list, checked
// case-insensitive as substrings of the message body. Priority order
// (§4.5): interview > rejected > viewed > acknowledged > other.
var outcomeKeywords = []struct {
	stage    domain.OutcomeStage
	priority int
	keywords []string
}{
	{domain.StageInterview, 4, []string{
		"schedule a time", "schedule an interview", "interview", "hop on a call",
		"chat with the team", "meet the team", "next steps", "phone screen",
	}},
	{domain.StageRejected, 3, []string{
		"unfortunately", "not moving forward", "other candidates", "will not be proceeding",
		"decided not to", "pursue other applicants", "rejected",
	}},
	{domain.StageViewed, 2, []string{
		"reviewed your application", "reviewing applications", "application was viewed",
	}},
	{domain.StageAcknowledged, 1, []string{
		"thank you for applying", "received your application", "application has been received",
	}},
}

// ClassifyOutcome runs the rule-based keyword classification. Returns the
// highest-priority matching stage and a confidence of matches /
// keyword-count-for-category; ties resolve by priority order. Returns
// ("", 0) if no category matches.
func ClassifyOutcome(body string) (domain.OutcomeStage, float64) {
	lower := strings.ToLower(body)

	var bestStage domain.OutcomeStage
	bestPriority := -1
	var bestConfidence float64

	for _, cat := range outcomeKeywords {
		matches := 0
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		confidence := float64(matches) / float64(len(cat.keywords))
		if cat.priority > bestPriority {
			bestPriority = cat.priority
			bestStage = cat.stage
			bestConfidence = confidence
		}
	}
	return bestStage, bestConfidence
}
