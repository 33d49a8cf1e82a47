package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kazimov/jobtrail/domain"
	"github.com/stretchr/testify/require"
)

func TestApplyOutcome_NeverDowngrades(t *testing.T) {
	app := &domain.Application{Outcome: domain.StageInterview}

	err := app.ApplyOutcome(domain.StageRejected, time.Now(), "msg-1")

	require.ErrorIs(t, err, domain.ErrOutcomeDowngrade)
	require.Equal(t, domain.StageInterview, app.Outcome, "rejected downgrade must not mutate the application")
}

func TestApplyOutcome_OfferOutranksRejection(t *testing.T) {
	app := &domain.Application{Outcome: domain.StageRejected}

	err := app.ApplyOutcome(domain.StageOffer, time.Now(), "msg-2")

	require.NoError(t, err)
	require.Equal(t, domain.StageOffer, app.Outcome)
}

func TestApplyOutcome_EqualStageIsNotAnUpgrade(t *testing.T) {
	app := &domain.Application{Outcome: domain.StageViewed}

	err := app.ApplyOutcome(domain.StageViewed, time.Now(), "msg-3")

	require.ErrorIs(t, err, domain.ErrOutcomeDowngrade)
}

func TestScoreMap_PrimaryBreaksTiesByFixedOrder(t *testing.T) {
	scores := domain.ScoreMap{
		domain.Builder:    0.5,
		domain.Fixer:      0.5,
		domain.Operator:   0.5,
		domain.Translator: 0.5,
	}

	require.Equal(t, domain.Builder, scores.Primary())
}

func TestScoreMap_Top2(t *testing.T) {
	scores := domain.ScoreMap{
		domain.Builder: 0.6, domain.Fixer: 0.3, domain.Operator: 0.1, domain.Translator: 0.0,
	}

	top, second := scores.Top2()

	require.InDelta(t, 0.6, top, 1e-9)
	require.InDelta(t, 0.3, second, 1e-9)
}

func TestKind_ClassifiesTransientAndPermanentWrappers(t *testing.T) {
	transient := &domain.Transient{Op: "embed", Err: errors.New("timeout")}
	permanent := &domain.Permanent{Op: "embed", Err: errors.New("401")}

	require.Equal(t, domain.KindTransientExternal, domain.Kind(transient))
	require.Equal(t, domain.KindPermanentExternal, domain.Kind(permanent))
	require.True(t, domain.IsRetryable(transient))
	require.False(t, domain.IsRetryable(permanent))
}

func TestExitCode_TransientIsRetryExitCode(t *testing.T) {
	transient := &domain.Transient{Op: "inbox_poll", Err: errors.New("connection reset")}

	require.Equal(t, 2, domain.ExitCode(transient))
}

func TestExitCode_ValidationIsOne(t *testing.T) {
	wrapped := fmt.Errorf("bad flag: %w", domain.ErrValidation)

	require.Equal(t, 1, domain.ExitCode(wrapped))
}

func TestExitCode_InvariantViolationIsThree(t *testing.T) {
	require.Equal(t, 3, domain.ExitCode(domain.ErrOutcomeDowngrade))
}

func TestExitCode_NilIsZero(t *testing.T) {
	require.Equal(t, 0, domain.ExitCode(nil))
}

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	v := domain.Vector{1, 2, 3}

	require.InDelta(t, 1.0, domain.CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthIsZero(t *testing.T) {
	a := domain.Vector{1, 2, 3}
	b := domain.Vector{1, 2}

	require.Equal(t, 0.0, domain.CosineSimilarity(a, b))
}

func TestCosineSimilarity_OrthogonalVectorsAreZero(t *testing.T) {
	a := domain.Vector{1, 0}
	b := domain.Vector{0, 1}

	require.InDelta(t, 0.0, domain.CosineSimilarity(a, b), 1e-9)
}

func TestMean_AveragesComponentwise(t *testing.T) {
	vs := []domain.Vector{{1, 1}, {3, 5}}

	mean := domain.Mean(vs)

	require.InDelta(t, 2.0, float64(mean[0]), 1e-6)
	require.InDelta(t, 3.0, float64(mean[1]), 1e-6)
}
