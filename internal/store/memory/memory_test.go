package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagescope/pagescope/internal/analysis"
)

func TestStore_Lifecycle(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	created := time.Unix(1000, 0).UTC()

	require.NoError(t, s.Create(ctx, "abc-123", "https://example.com", created))

	rec, err := s.Get(ctx, "abc-123")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusProcessing, rec.Status)
	require.Empty(t, rec.Report.Recommendations)
	require.Nil(t, rec.CompletedAt)

	report := analysis.Report{
		FrequencyDistribution: map[string]int{"hello": 1, "world": 1},
		Recommendations: []analysis.Recommendation{
			{Message: "missing title tag", Category: analysis.CategorySEO},
		},
	}
	completed := created.Add(time.Minute)
	require.NoError(t, s.Complete(ctx, "abc-123", report, completed))

	rec, err = s.Get(ctx, "abc-123")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusCompleted, rec.Status)
	require.Equal(t, report, rec.Report)
	require.Equal(t, completed, *rec.CompletedAt)
}

func TestStore_CompleteIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "abc-123", "https://example.com", time.Unix(1000, 0)))

	report := analysis.Report{FrequencyDistribution: map[string]int{"hello": 1}}
	now := time.Unix(1100, 0).UTC()
	require.NoError(t, s.Complete(ctx, "abc-123", report, now))
	first, err := s.Get(ctx, "abc-123")
	require.NoError(t, err)

	// Redelivery applies the same overwrite again.
	require.NoError(t, s.Complete(ctx, "abc-123", report, now))
	second, err := s.Get(ctx, "abc-123")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestStore_CompleteUnknownID(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.Complete(context.Background(), "ghost", analysis.Report{}, time.Now())
	require.ErrorIs(t, err, analysis.ErrNotFound)

	_, err = s.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestStore_CreateDuplicateFails(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "abc-123", "https://example.com", time.Unix(1000, 0)))
	require.Error(t, s.Create(ctx, "abc-123", "https://example.com", time.Unix(1001, 0)))
}

func TestStore_Fail(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "abc-123", "https://example.com", time.Unix(1000, 0)))
	require.NoError(t, s.Fail(ctx, "abc-123", "enqueue failed"))

	rec, err := s.Get(ctx, "abc-123")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusFailed, rec.Status)
	require.Equal(t, "enqueue failed", rec.ErrorText)
}
