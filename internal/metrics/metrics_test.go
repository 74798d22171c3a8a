package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chrisconley/arrbucket/internal"
	"github.com/chrisconley/arrbucket/internal/infra"
	"github.com/chrisconley/arrbucket/specs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *infra.Bus) {
	t.Helper()
	c := New(prometheus.NewRegistry())
	bus := infra.NewBus()
	c.Subscribe(bus)
	return c, bus
}

func TestCollector(t *testing.T) {
	t.Run("counts pre-check outcomes", func(t *testing.T) {
		// Arrange
		c, bus := newTestCollector(t)

		// Act
		bus.Publish(internal.RecordsPreCheckedEvent{
			Valid:            8,
			Rejected:         3,
			RejectionsByRule: map[string]int{specs.RuleMissingField: 2, specs.RuleNegativeARR: 1},
		})

		// Assert
		assert.Equal(t, 8.0, testutil.ToFloat64(c.RecordsTotal.WithLabelValues("valid")))
		assert.Equal(t, 3.0, testutil.ToFloat64(c.RecordsTotal.WithLabelValues("rejected")))
		assert.Equal(t, 2.0, testutil.ToFloat64(c.RejectionsTotal.WithLabelValues(specs.RuleMissingField)))
	})

	t.Run("records the latest reconciliation", func(t *testing.T) {
		// Arrange
		c, bus := newTestCollector(t)
		result := specs.ReconciliationResultSpec{
			Buckets: []specs.BucketTotalSpec{
				{Bucket: "small", RecordCount: 3, TotalARR: "600"},
				{Bucket: "mid", RecordCount: 1, TotalARR: "12500.50"},
			},
			Delta: "50",
			Checks: []specs.CheckResultSpec{
				{Category: specs.CheckSum, Status: specs.StatusFail},
				{Category: specs.CheckOutliers, Status: specs.StatusWarn},
				{Category: specs.CheckCount, Status: specs.StatusPass},
			},
			Anomalies: []specs.AnomalySpec{{Kind: specs.AnomalyReconciliationMismatch}},
		}

		// Act
		bus.Publish(internal.ReconciliationCompletedEvent{Result: result})

		// Assert
		assert.Equal(t, 3.0, testutil.ToFloat64(c.BucketRecords.WithLabelValues("small")))
		assert.Equal(t, 12500.5, testutil.ToFloat64(c.BucketARR.WithLabelValues("mid")))
		assert.Equal(t, 2.0, testutil.ToFloat64(c.CheckStatus.WithLabelValues(specs.CheckSum)))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.CheckStatus.WithLabelValues(specs.CheckOutliers)))
		assert.Equal(t, 0.0, testutil.ToFloat64(c.CheckStatus.WithLabelValues(specs.CheckCount)))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.AnomaliesTotal.WithLabelValues(specs.AnomalyReconciliationMismatch)))
		assert.Equal(t, 50.0, testutil.ToFloat64(c.ReconDelta))
		assert.Equal(t, 0.0, testutil.ToFloat64(c.RunHealthy))
	})

	t.Run("drops buckets missing from a later run", func(t *testing.T) {
		c, bus := newTestCollector(t)

		bus.Publish(internal.ReconciliationCompletedEvent{Result: specs.ReconciliationResultSpec{
			Buckets: []specs.BucketTotalSpec{{Bucket: "old", RecordCount: 1, TotalARR: "1"}},
		}})
		bus.Publish(internal.ReconciliationCompletedEvent{Result: specs.ReconciliationResultSpec{
			Buckets: []specs.BucketTotalSpec{{Bucket: "new", RecordCount: 2, TotalARR: "2"}},
			Healthy: true,
		}})

		assert.Equal(t, 1, testutil.CollectAndCount(c.BucketRecords))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.RunHealthy))
	})

	t.Run("counts failed runs by stage", func(t *testing.T) {
		c, bus := newTestCollector(t)

		bus.Publish(internal.RunFailedEvent{Stage: internal.StagePreCheck, Err: errors.New("strict")})

		assert.Equal(t, 1.0, testutil.ToFloat64(c.RunsFailedTotal.WithLabelValues(internal.StagePreCheck)))
	})

	t.Run("writes a textfile", func(t *testing.T) {
		c, bus := newTestCollector(t)
		bus.Publish(internal.RecordsPreCheckedEvent{Valid: 1})
		path := filepath.Join(t.TempDir(), "arrbucket.prom")

		require.NoError(t, c.WriteTextfile(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `arrbucket_records_total{outcome="valid"} 1`)
	})
}
