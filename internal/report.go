package internal

import (
	"fmt"
	"time"

	"github.com/chrisconley/arrbucket/specs"
	"github.com/google/uuid"
)

// AssembleReport implements specs.AssembleReport.
// Converts specs to domain objects, assembles, and converts back to specs.
func AssembleReport(
	bucketedSpecs []specs.BucketedRecordSpec,
	reconciliation specs.ReconciliationResultSpec,
	prior *specs.ReconciliationResultSpec,
	rejections []specs.RejectionSpec,
) (specs.ReportSpec, error) {
	records := make([]RevenueRecord, len(bucketedSpecs))
	for i, b := range bucketedSpecs {
		bucketed, err := NewBucketedRecord(b)
		if err != nil {
			return specs.ReportSpec{}, fmt.Errorf("invalid bucketed record at index %d: %w", i, err)
		}
		records[i] = bucketed.Record
	}

	report, err := assembleReport(records, reconciliation, prior, rejections, nil, nil)
	if err != nil {
		return specs.ReportSpec{}, err
	}
	report.RunID = uuid.NewString()
	report.GeneratedAt = time.Now().UTC()
	return report, nil
}

// assembleReport builds everything but the run identity. records feed the data
// profile; bucket bounds are filled in when spec is known, customer movements when
// moves is.
func assembleReport(
	records []RevenueRecord,
	reconciliation specs.ReconciliationResultSpec,
	prior *specs.ReconciliationResultSpec,
	rejections []specs.RejectionSpec,
	spec *BucketSpec,
	moves *movementAnalysis,
) (specs.ReportSpec, error) {
	current, err := newPeriodTotals(reconciliation)
	if err != nil {
		return specs.ReportSpec{}, fmt.Errorf("invalid reconciliation: %w", err)
	}

	report := specs.ReportSpec{
		Period:           reconciliation.Period,
		Healthy:          reconciliation.Healthy,
		Buckets:          bucketReports(current, spec),
		Reconciliation:   reconciliation,
		Rejections:       rejections,
		RejectionSummary: summariseRejections(rejections),
		Profile:          profile(records),
	}
	if report.Rejections == nil {
		report.Rejections = []specs.RejectionSpec{}
	}

	if prior != nil {
		previous, err := newPeriodTotals(*prior)
		if err != nil {
			return specs.ReportSpec{}, fmt.Errorf("invalid prior reconciliation: %w", err)
		}
		report.PriorPeriod = prior.Period
		report.Growth = growth(previous, current)
	}
	if moves != nil {
		report.Movements = moves.ToSpec(current)
	}
	return report, nil
}

// periodTotals is the per-bucket view of one reconciliation, in bucket order.
type periodTotals struct {
	order  []string
	counts map[string]int
	totals map[string]Decimal
}

func newPeriodTotals(spec specs.ReconciliationResultSpec) (periodTotals, error) {
	p := periodTotals{
		order:  make([]string, 0, len(spec.Buckets)),
		counts: make(map[string]int, len(spec.Buckets)),
		totals: make(map[string]Decimal, len(spec.Buckets)),
	}
	for _, b := range spec.Buckets {
		if _, seen := p.totals[b.Bucket]; seen {
			return periodTotals{}, fmt.Errorf("bucket %q listed twice", b.Bucket)
		}
		total, err := NewDecimal(b.TotalARR)
		if err != nil {
			return periodTotals{}, fmt.Errorf("bucket %q: %w", b.Bucket, err)
		}
		if b.RecordCount < 0 {
			return periodTotals{}, fmt.Errorf("bucket %q: negative record count", b.Bucket)
		}
		p.order = append(p.order, b.Bucket)
		p.counts[b.Bucket] = b.RecordCount
		p.totals[b.Bucket] = total
	}
	return p, nil
}

// total is zero for a bucket the period does not list.
func (p periodTotals) total(bucket string) Decimal {
	if total, ok := p.totals[bucket]; ok {
		return total
	}
	return ZeroDecimal()
}

func (p periodTotals) sum() (int, Decimal) {
	count, total := 0, ZeroDecimal()
	for _, name := range p.order {
		count += p.counts[name]
		total = total.Add(p.totals[name])
	}
	return count, total
}

func bucketReports(current periodTotals, spec *BucketSpec) []specs.BucketReportSpec {
	count, total := current.sum()
	records := NewDecimalFromInt64(int64(count))

	out := make([]specs.BucketReportSpec, 0, len(current.order))
	for _, name := range current.order {
		n := current.counts[name]
		arr := current.totals[name]
		r := specs.BucketReportSpec{
			Bucket:      name,
			RecordCount: n,
			TotalARR:    arr.String(),
			AverageARR:  "0.00",
			ARRShare:    percentOrZero(arr, total),
			CountShare:  percentOrZero(NewDecimalFromInt64(int64(n)), records),
		}
		if n > 0 {
			r.AverageARR = arr.Div(NewDecimalFromInt64(int64(n))).Round(2).String()
		}
		if spec != nil {
			if rule, ok := spec.Lookup(name); ok {
				r.Lower = rule.Lower().Label(false)
				r.Upper = rule.Upper().Label(true)
			}
		}
		out = append(out, r)
	}
	return out
}

// growth lists current buckets in order, then buckets only the prior period had.
func growth(prior, current periodTotals) []specs.GrowthSpec {
	out := make([]specs.GrowthSpec, 0, len(current.order))
	for _, name := range current.order {
		now := current.totals[name]
		g := specs.GrowthSpec{
			Bucket:       name,
			CurrentTotal: now.String(),
			CurrentCount: current.counts[name],
		}

		before, ok := prior.totals[name]
		if !ok {
			before = ZeroDecimal()
		}
		g.PriorTotal = before.String()
		g.PriorCount = prior.counts[name]
		g.Delta = now.Sub(before).String()

		if pct, ok := Percent(now.Sub(before), before); ok {
			g.Status = specs.GrowthChanged
			g.Percentage = pct.String()
		} else {
			g.Status = specs.GrowthNew
		}
		out = append(out, g)
	}

	for _, name := range prior.order {
		if _, ok := current.totals[name]; ok {
			continue
		}
		before := prior.totals[name]
		g := specs.GrowthSpec{
			Bucket:       name,
			Status:       specs.GrowthDiscontinued,
			PriorTotal:   before.String(),
			CurrentTotal: ZeroDecimal().String(),
			Delta:        ZeroDecimal().Sub(before).String(),
			PriorCount:   prior.counts[name],
		}
		if pct, ok := Percent(ZeroDecimal().Sub(before), before); ok {
			g.Percentage = pct.String()
		}
		out = append(out, g)
	}
	return out
}

func summariseRejections(rejections []specs.RejectionSpec) map[string]int {
	summary := make(map[string]int)
	for _, r := range rejections {
		summary[r.Rule]++
	}
	return summary
}

func percentOrZero(part, whole Decimal) string {
	if pct, ok := Percent(part, whole); ok {
		return pct.String()
	}
	return "0.00"
}
