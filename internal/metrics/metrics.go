// Package metrics exports run statistics in the Prometheus format.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/chrisconley/arrbucket/internal"
	"github.com/chrisconley/arrbucket/internal/infra"
	"github.com/chrisconley/arrbucket/specs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arrbucket"

// Check status values of the check_status gauge.
const (
	checkPass = 0
	checkWarn = 1
	checkFail = 2
)

// Collector holds the run metrics. Gauges describe the latest run; counters
// accumulate across runs sharing the registry.
type Collector struct {
	registry *prometheus.Registry

	RecordsTotal    *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	BucketRecords   *prometheus.GaugeVec
	BucketARR       *prometheus.GaugeVec
	CheckStatus     *prometheus.GaugeVec
	AnomaliesTotal  *prometheus.CounterVec
	ReconDelta      prometheus.Gauge
	RunHealthy      prometheus.Gauge
	RunsFailedTotal *prometheus.CounterVec
}

// New registers the metrics on reg.
func New(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records seen by the pre-checks, by outcome",
		}, []string{"outcome"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Records rejected by the pre-checks, by rule",
		}, []string{"rule"}),
		BucketRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bucket",
			Name:      "records",
			Help:      "Records assigned to each bucket in the latest run",
		}, []string{"bucket"}),
		BucketARR: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bucket",
			Name:      "arr",
			Help:      "Total ARR of each bucket in the latest run",
		}, []string{"bucket"}),
		CheckStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_status",
			Help:      "Status of each check category: 0 pass, 1 warn, 2 fail",
		}, []string{"category"}),
		AnomaliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Anomalies reported by the checker, by kind",
		}, []string{"kind"}),
		ReconDelta: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconciliation_delta",
			Help:      "Grand total minus bucket totals in the latest run",
		}),
		RunHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_healthy",
			Help:      "1 when every hard check of the latest run passed",
		}),
		RunsFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Runs aborted by a fatal error, by stage",
		}, []string{"stage"}),
	}
}

// Subscribe updates the collector from pipeline events.
func (c *Collector) Subscribe(bus *infra.Bus) {
	bus.Subscribe(infra.RecordsPreChecked, func(e infra.Event) {
		ev := e.(internal.RecordsPreCheckedEvent)
		c.RecordsTotal.WithLabelValues("valid").Add(float64(ev.Valid))
		c.RecordsTotal.WithLabelValues("rejected").Add(float64(ev.Rejected))
		for rule, n := range ev.RejectionsByRule {
			c.RejectionsTotal.WithLabelValues(rule).Add(float64(n))
		}
	})
	bus.Subscribe(infra.ReconciliationCompleted, func(e infra.Event) {
		c.observeReconciliation(e.(internal.ReconciliationCompletedEvent).Result)
	})
	bus.Subscribe(infra.RunFailed, func(e infra.Event) {
		c.RunsFailedTotal.WithLabelValues(e.(internal.RunFailedEvent).Stage).Inc()
	})
}

func (c *Collector) observeReconciliation(result specs.ReconciliationResultSpec) {
	c.BucketRecords.Reset()
	c.BucketARR.Reset()
	for _, b := range result.Buckets {
		c.BucketRecords.WithLabelValues(b.Bucket).Set(float64(b.RecordCount))
		c.BucketARR.WithLabelValues(b.Bucket).Set(parseFloat(b.TotalARR))
	}
	for _, check := range result.Checks {
		c.CheckStatus.WithLabelValues(check.Category).Set(statusValue(check.Status))
	}
	for _, a := range result.Anomalies {
		c.AnomaliesTotal.WithLabelValues(a.Kind).Inc()
	}
	c.ReconDelta.Set(parseFloat(result.Delta))
	if result.Healthy {
		c.RunHealthy.Set(1)
	} else {
		c.RunHealthy.Set(0)
	}
}

// WriteTextfile writes every registered metric to path for the node exporter's
// textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func statusValue(status string) float64 {
	switch status {
	case specs.StatusFail:
		return checkFail
	case specs.StatusWarn:
		return checkWarn
	default:
		return checkPass
	}
}

// parseFloat converts a decimal string for export; precision loss is acceptable
// for metrics.
func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
