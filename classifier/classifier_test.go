package classifier_test

import (
	"context"
	"testing"

	"github.com/kazimov/jobtrail/classifier"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/internal/adapters/embedding"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	c, err := classifier.New(context.Background(), classifier.DefaultSeedDictionary(), embedding.NewLocal(64))
	require.NoError(t, err)
	return c
}

func TestClassify_BuilderListing(t *testing.T) {
	c := newTestClassifier(t)
	text := "We need someone to design and implement a new cloud-native data platform from the ground up."

	res, err := c.Classify(context.Background(), text, domain.RoleContract)
	require.NoError(t, err)

	require.Equal(t, domain.Builder, res.Primary)
	require.GreaterOrEqual(t, res.Scores[domain.Builder], 0.50)
	require.Greater(t, res.Scores[domain.Builder], res.Scores[domain.Fixer])
	require.Greater(t, res.Scores[domain.Builder], res.Scores[domain.Operator])
	require.Greater(t, res.Scores[domain.Builder], res.Scores[domain.Translator])

	var sum float64
	for _, v := range res.Scores {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 1e-6)
}

func TestClassify_FixerListing(t *testing.T) {
	c := newTestClassifier(t)
	text := "Migrate legacy Redshift warehouse to Snowflake and retire aging ETL."

	res, err := c.Classify(context.Background(), text, domain.RoleUnknown)
	require.NoError(t, err)

	require.Equal(t, domain.Fixer, res.Primary)
	top, second := res.Scores.Top2()
	require.False(t, top-second < 0.10, "fixer listing should not be a close call")
}

func TestClassify_UniformWhenNoSignal(t *testing.T) {
	c := newTestClassifier(t)
	res, err := c.Classify(context.Background(), "Lorem ipsum dolor sit amet.", domain.RoleUnknown)
	require.NoError(t, err)

	for _, arch := range domain.Archetypes {
		require.InDelta(t, 0.25, res.Scores[arch], 1e-6)
	}
}

func TestClassify_EmbeddingPopulated(t *testing.T) {
	c := newTestClassifier(t)
	res, err := c.Classify(context.Background(), "Operate and maintain production systems with an on-call rotation.", domain.RoleUnknown)
	require.NoError(t, err)
	require.NotEmpty(t, res.Embedding.Vector)
	require.Equal(t, "local-hash-v1", res.Embedding.ModelVersion)
}
