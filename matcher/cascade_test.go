package matcher_test

import (
	"testing"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/matcher"
	"github.com/stretchr/testify/require"
)

func mkCandidate(id, entity, title string, submittedAt time.Time, tags ...string) matcher.Candidate {
	return matcher.Candidate{
		Application: &domain.Application{ID: id, SubmittedAt: submittedAt},
		Listing:     &domain.Listing{ID: "listing-" + id, HiringEntity: entity, Title: title, TechnologyTags: tags},
	}
}

func TestRunCascade_AutoMatch(t *testing.T) {
	submitted := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	received := submitted.AddDate(0, 0, 8)

	candidates := []matcher.Candidate{
		mkCandidate("app-1", "Woolworths", "Senior Data Engineer", submitted, "snowflake"),
	}

	decision := matcher.RunCascade(matcher.CascadeInput{
		SenderAddress: "jane@woolworths.com.au",
		Subject:       "Senior Data Engineer role — next steps",
		Body:          "Can we schedule a time? We use Snowflake.",
		ReceivedAt:    received,
	}, nil, candidates, 0.5)

	require.Equal(t, domain.MatchCascade, decision.Method)
	require.NotNil(t, decision.Matched)
	require.Equal(t, "app-1", decision.Matched.Application.ID)
	require.Greater(t, decision.Matched.Score, 0.5)
}

func TestRunCascade_AmbiguousRequiresManualReview(t *testing.T) {
	submitted := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	received := submitted.AddDate(0, 0, 40) // outside the 30-day bonus window for both

	candidates := []matcher.Candidate{
		mkCandidate("app-1", "Acme Corp Pty", "Senior Data Engineer", submitted),
		mkCandidate("app-2", "Acme Holdings", "Senior Data Engineer", submitted),
	}

	decision := matcher.RunCascade(matcher.CascadeInput{
		SenderAddress: "hr@acme.com.au",
		Subject:       "Senior Data Engineer",
		Body:          "Thanks for your application to the Senior Data Engineer position.",
		ReceivedAt:    received,
	}, nil, candidates, 0.5)

	require.Empty(t, decision.Matched)
	require.NotEmpty(t, decision.TopRanked)
	require.LessOrEqual(t, len(decision.TopRanked), 3)
}

func TestRunCascade_EmptyDomainMatchIsUnmatched(t *testing.T) {
	candidates := []matcher.Candidate{
		mkCandidate("app-1", "Totally Unrelated Inc", "Senior Data Engineer", time.Now()),
	}
	decision := matcher.RunCascade(matcher.CascadeInput{
		SenderAddress: "noone@zzz-nomatch.example",
		Subject:       "Senior Data Engineer",
		Body:          "hello",
		ReceivedAt:    time.Now(),
	}, nil, candidates, 0.5)

	require.Equal(t, domain.MatchUnmatched, decision.Method)
}

func TestRunCascade_DateProximityBoundary(t *testing.T) {
	submitted := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	within30 := matcher.RunCascade(matcher.CascadeInput{
		SenderAddress: "x@acme.com", Subject: "Data Engineer", Body: "Data Engineer role",
		ReceivedAt: submitted.AddDate(0, 0, 30),
	}, nil, []matcher.Candidate{mkCandidate("a", "Acme", "Data Engineer", submitted)}, 0.5)

	beyond30 := matcher.RunCascade(matcher.CascadeInput{
		SenderAddress: "x@acme.com", Subject: "Data Engineer", Body: "Data Engineer role",
		ReceivedAt: submitted.AddDate(0, 0, 31),
	}, nil, []matcher.Candidate{mkCandidate("a", "Acme", "Data Engineer", submitted)}, 0.5)

	require.NotNil(t, within30.Matched)
	require.NotNil(t, beyond30.Matched)
	require.Greater(t, within30.Matched.Score, beyond30.Matched.Score)
}

func TestClassifyOutcome_Priority(t *testing.T) {
	stage, conf := matcher.ClassifyOutcome("Unfortunately we have decided to pursue other applicants, but wanted to schedule a time to give feedback.")
	require.Equal(t, domain.StageInterview, stage)
	require.Greater(t, conf, 0.0)
}
