package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrisconley/arrbucket/internal/config"
	"github.com/chrisconley/arrbucket/internal/store"
	"github.com/chrisconley/arrbucket/specs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func useDefaults(t *testing.T) {
	t.Helper()
	cfg = config.DefaultConfig()
	logger = zap.NewNop()
	t.Cleanup(func() {
		cfg = nil
		logger = nil
	})
}

func rawRecord(customer, arr, period string) specs.RawRecordSpec {
	return specs.RawRecordSpec{CustomerID: customer, ARR: &arr, Period: period}
}

func storedRun(runID, period string, positions ...specs.CustomerPositionSpec) specs.ReportSpec {
	return specs.ReportSpec{
		RunID:       runID,
		Period:      period,
		Healthy:     true,
		GeneratedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Reconciliation: specs.ReconciliationResultSpec{
			Period:  period,
			Healthy: true,
			Buckets: []specs.BucketTotalSpec{{Bucket: "small", RecordCount: len(positions), TotalARR: "100"}},
		},
		Positions: positions,
	}
}

func openHistory(t *testing.T) *store.RunStore {
	t.Helper()
	history, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	return history
}

func TestResolveTotals(t *testing.T) {
	t.Run("derives the period and the total from the valid records", func(t *testing.T) {
		// Arrange
		useDefaults(t)
		input := specs.RunInputSpec{
			Records: []specs.RawRecordSpec{
				rawRecord("a", "100", "2024-01"),
				rawRecord("a", "150", "2024-02"),
				rawRecord("b", "50", "2024-02"),
				rawRecord("c", "lots", "2024-02"),
			},
			Contract: cfg.SchemaContractSpec(),
		}

		// Act
		err := resolveTotals(&input)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "2024-02", input.Checks.Period)
		assert.Equal(t, "200", input.Checks.GrandTotal)
	})

	t.Run("keeps a configured period and total", func(t *testing.T) {
		useDefaults(t)
		input := specs.RunInputSpec{
			Records: []specs.RawRecordSpec{rawRecord("a", "100", "2024-02")},
			Checks:  specs.CheckOptionsSpec{Period: "2024-01", GrandTotal: "999"},
		}

		err := resolveTotals(&input)

		require.NoError(t, err)
		assert.Equal(t, "2024-01", input.Checks.Period)
		assert.Equal(t, "999", input.Checks.GrandTotal)
	})

	t.Run("totals only the configured period", func(t *testing.T) {
		useDefaults(t)
		input := specs.RunInputSpec{
			Records: []specs.RawRecordSpec{
				rawRecord("a", "100", "2024-01"),
				rawRecord("a", "150", "2024-02"),
			},
			Checks: specs.CheckOptionsSpec{Period: "2024-01"},
		}

		err := resolveTotals(&input)

		require.NoError(t, err)
		assert.Equal(t, "100", input.Checks.GrandTotal)
	})
}

func TestLoadPrior(t *testing.T) {
	ctx := context.Background()

	t.Run("loads the comparison period with its positions", func(t *testing.T) {
		// Arrange
		useDefaults(t)
		history := openHistory(t)
		require.NoError(t, history.Save(ctx, storedRun("r1", "2023-12",
			specs.CustomerPositionSpec{Entity: "old", CustomerID: "old", Bucket: "small", ARR: "40"})))
		require.NoError(t, history.Save(ctx, storedRun("r2", "2024-01",
			specs.CustomerPositionSpec{Entity: "a", CustomerID: "a", Bucket: "small", ARR: "100"})))
		input := specs.RunInputSpec{Checks: specs.CheckOptionsSpec{Period: "2024-02"}}

		// Act
		err := loadPrior(ctx, history, &input)

		// Assert
		require.NoError(t, err)
		require.NotNil(t, input.Prior)
		assert.Equal(t, "2024-01", input.Prior.Period)
		assert.Equal(t, []specs.CustomerPositionSpec{{Entity: "a", CustomerID: "a", Bucket: "small", ARR: "100"}}, input.PriorPositions)
		assert.Equal(t, []string{"old"}, input.Returning)
	})

	t.Run("falls back to the latest earlier run", func(t *testing.T) {
		// Arrange
		useDefaults(t)
		history := openHistory(t)
		require.NoError(t, history.Save(ctx, storedRun("r1", "2023-11",
			specs.CustomerPositionSpec{Entity: "a", CustomerID: "a", Bucket: "small", ARR: "100"})))
		input := specs.RunInputSpec{Checks: specs.CheckOptionsSpec{Period: "2024-02"}}

		// Act
		err := loadPrior(ctx, history, &input)

		// Assert
		require.NoError(t, err)
		require.NotNil(t, input.Prior)
		assert.Equal(t, "2023-11", input.Prior.Period)
		assert.Len(t, input.PriorPositions, 1)
	})

	t.Run("ignores runs after the comparison period", func(t *testing.T) {
		useDefaults(t)
		history := openHistory(t)
		require.NoError(t, history.Save(ctx, storedRun("r1", "2024-02")))
		input := specs.RunInputSpec{Checks: specs.CheckOptionsSpec{Period: "2024-02"}}

		err := loadPrior(ctx, history, &input)

		require.NoError(t, err)
		assert.Nil(t, input.Prior)
		assert.Nil(t, input.PriorPositions)
	})

	t.Run("rejects a malformed period", func(t *testing.T) {
		useDefaults(t)
		input := specs.RunInputSpec{Checks: specs.CheckOptionsSpec{Period: "Feb 2024"}}

		err := loadPrior(ctx, openHistory(t), &input)

		require.Error(t, err)
	})
}

func TestLatestPeriod(t *testing.T) {
	assert.Equal(t, "2024-03", latestPeriod([]specs.RecordSpec{{Period: "2024-01"}, {Period: "2024-03"}, {Period: "2023-12"}}))
	assert.Empty(t, latestPeriod(nil))
}
