package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/pagescope/pagescope/internal/analysis"
)

func sampleReport() analysis.Report {
	return analysis.Report{
		FrequencyDistribution: map[string]int{"hello": 1, "world": 1},
		Entities:              []analysis.Entity{{Name: "Example", Type: "ORG"}},
		Sentiment:             analysis.Sentiment{Neutral: 1},
		SEOData:               analysis.SEOData{HasTitleTag: false},
		Recommendations: []analysis.Recommendation{
			{Message: "missing title tag", Category: analysis.CategorySEO},
		},
	}
}

func TestCreateInsertsProcessingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "analysis_results")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO analysis_results").
		WithArgs("abc-123", "https://example.com", "processing", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Create(context.Background(), "abc-123", "https://example.com", now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteOverwritesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "analysis_results")
	require.NoError(t, err)

	now := time.Unix(1700000100, 0).UTC()
	report := sampleReport()

	mock.ExpectExec("UPDATE analysis_results SET").
		WithArgs(
			"abc-123",
			"completed",
			mustJSON(t, report.FrequencyDistribution),
			mustJSON(t, report.Entities),
			mustJSON(t, report.Sentiment),
			mustJSON(t, report.SEOData),
			mustJSON(t, report.PerformanceData),
			mustJSON(t, report.AccessibilityData),
			mustJSON(t, report.SecurityData),
			mustJSON(t, report.StructureData),
			mustJSON(t, report.Recommendations),
			now,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.Complete(context.Background(), "abc-123", report, now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteUnknownIDReturnsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "analysis_results")
	require.NoError(t, err)

	mock.ExpectExec("UPDATE analysis_results SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Complete(context.Background(), "ghost", sampleReport(), time.Now())
	require.ErrorIs(t, err, analysis.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailMarksRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "analysis_results")
	require.NoError(t, err)

	mock.ExpectExec("UPDATE analysis_results SET status").
		WithArgs("abc-123", "failed", "enqueue failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.Fail(context.Background(), "abc-123", "enqueue failed")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScansRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "analysis_results")
	require.NoError(t, err)

	created := time.Unix(1700000000, 0).UTC()
	completed := time.Unix(1700000100, 0).UTC()
	report := sampleReport()

	rows := pgxmock.NewRows([]string{
		"correlation_id", "url", "status",
		"frequency_distribution", "entities", "sentiment",
		"seo_data", "performance_data", "accessibility_data",
		"security_data", "structure_data", "recommendations",
		"error_text", "created_at", "completed_at",
	}).AddRow(
		"abc-123", "https://example.com", "completed",
		mustJSON(t, report.FrequencyDistribution),
		mustJSON(t, report.Entities),
		mustJSON(t, report.Sentiment),
		mustJSON(t, report.SEOData),
		mustJSON(t, report.PerformanceData),
		mustJSON(t, report.AccessibilityData),
		mustJSON(t, report.SecurityData),
		mustJSON(t, report.StructureData),
		mustJSON(t, report.Recommendations),
		"", created, &completed,
	)

	mock.ExpectQuery("SELECT").WithArgs("abc-123").WillReturnRows(rows)

	rec, err := store.Get(context.Background(), "abc-123")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusCompleted, rec.Status)
	require.Equal(t, map[string]int{"hello": 1, "world": 1}, rec.Report.FrequencyDistribution)
	require.Equal(t, report.Recommendations, rec.Report.Recommendations)
	require.Equal(t, created, rec.CreatedAt)
	require.NotNil(t, rec.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownIDReturnsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "analysis_results")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT").WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"correlation_id"}))

	_, err = store.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, analysis.ErrNotFound)
}

func TestNewWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "drop table; --")
	require.Error(t, err)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
