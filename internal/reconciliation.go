package internal

import (
	"fmt"
	"sort"

	"github.com/chrisconley/arrbucket/specs"
)

// maxAnomaliesPerKind caps per-record findings of one kind; the remainder is
// summarised in a single extra anomaly.
const maxAnomaliesPerKind = 100

// Reconcile implements specs.Reconcile.
// Converts specs to domain objects, checks, and converts back to specs.
func Reconcile(
	bucketedSpecs []specs.BucketedRecordSpec,
	configSpec specs.BucketConfigSpec,
	optionsSpec specs.CheckOptionsSpec,
) (specs.ReconciliationResultSpec, error) {
	spec, err := NewBucketSpec(configSpec)
	if err != nil {
		return specs.ReconciliationResultSpec{}, fmt.Errorf("invalid config: %w", err)
	}

	options, err := NewCheckOptions(optionsSpec)
	if err != nil {
		return specs.ReconciliationResultSpec{}, fmt.Errorf("invalid options: %w", err)
	}

	bucketed := make([]BucketedRecord, len(bucketedSpecs))
	for i, b := range bucketedSpecs {
		record, err := NewBucketedRecord(b)
		if err != nil {
			return specs.ReconciliationResultSpec{}, fmt.Errorf("invalid bucketed record at index %d: %w", i, err)
		}
		bucketed[i] = record
	}

	return reconcile(bucketed, TallyOf(bucketed), spec, options, nil).ToSpec(), nil
}

type ReconciliationResult struct {
	Period            string
	Buckets           []BucketTotal
	UnclassifiedCount int
	UnclassifiedARR   Decimal
	RecordCount       int
	BucketSum         Decimal
	GrandTotal        Decimal
	Delta             Decimal
	Checks            []specs.CheckResultSpec
	Anomalies         []specs.AnomalySpec
}

type BucketTotal struct {
	Bucket      string
	RecordCount int
	TotalARR    Decimal
}

// Healthy reports whether every hard check passed. Warnings do not count.
func (r ReconciliationResult) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status == specs.StatusFail {
			return false
		}
	}
	return true
}

func (r ReconciliationResult) ToSpec() specs.ReconciliationResultSpec {
	buckets := make([]specs.BucketTotalSpec, len(r.Buckets))
	for i, b := range r.Buckets {
		buckets[i] = specs.BucketTotalSpec{
			Bucket:      b.Bucket,
			RecordCount: b.RecordCount,
			TotalARR:    b.TotalARR.String(),
		}
	}
	anomalies := r.Anomalies
	if anomalies == nil {
		anomalies = []specs.AnomalySpec{}
	}
	return specs.ReconciliationResultSpec{
		Period:            r.Period,
		Buckets:           buckets,
		UnclassifiedCount: r.UnclassifiedCount,
		UnclassifiedARR:   r.UnclassifiedARR.String(),
		RecordCount:       r.RecordCount,
		BucketSum:         r.BucketSum.String(),
		GrandTotal:        r.GrandTotal.String(),
		Delta:             r.Delta.String(),
		Checks:            r.Checks,
		Anomalies:         anomalies,
		Healthy:           r.Healthy(),
	}
}

// reconcile runs the data-level checks. The spec has already passed its own checks
// at construction; the tally must be the tally of bucketed. The movement checks run
// only when moves is non-nil.
func reconcile(bucketed []BucketedRecord, tally BucketTally, spec BucketSpec, options CheckOptions, moves *movementAnalysis) ReconciliationResult {
	unclassifiedCount, unclassifiedARR := tally.Unclassified()
	result := ReconciliationResult{
		Period:            resolvePeriod(bucketed, options),
		UnclassifiedCount: unclassifiedCount,
		UnclassifiedARR:   unclassifiedARR,
		RecordCount:       len(bucketed),
		GrandTotal:        options.grandTotal,
	}

	sum := ZeroDecimal()
	classified := 0
	for _, rule := range spec.Rules() {
		name := rule.Name().ToString()
		total := BucketTotal{Bucket: name, RecordCount: tally.Count(name), TotalARR: tally.Total(name)}
		result.Buckets = append(result.Buckets, total)
		sum = sum.Add(total.TotalARR)
		classified += total.RecordCount
	}

	findings := newAnomalyLog()
	result.Checks = append(result.Checks, specs.CheckResultSpec{
		Category: specs.CheckSpec,
		Status:   specs.StatusPass,
		Message:  fmt.Sprintf("%d buckets, contiguous and non-overlapping", spec.Len()),
	})

	if options.allowUnmatched {
		sum = sum.Add(unclassifiedARR)
	}
	result.BucketSum = sum
	result.Checks = append(result.Checks, checkSum(&result, bucketed, options, findings))
	result.Checks = append(result.Checks, checkCount(classified, unclassifiedCount, len(bucketed), options, findings))
	result.Checks = append(result.Checks, checkDiagnostics(bucketed, options, findings))
	result.Checks = append(result.Checks, checkAssignment(bucketed, spec, findings))
	result.Checks = append(result.Checks, checkDuplicates(bucketed, findings))
	result.Checks = append(result.Checks, checkOutliers(result.Buckets, classified, options, findings))
	if moves != nil {
		result.Checks = append(result.Checks, checkMovementDirection(moves, findings))
		result.Checks = append(result.Checks, checkWaterfall(moves, totalsOf(result.Buckets), options, findings))
	}
	result.Anomalies = findings.list()
	return result
}

// checkMovementDirection fails on inflows that remove ARR and outflows that add it.
func checkMovementDirection(moves *movementAnalysis, findings *anomalyLog) specs.CheckResultSpec {
	wrong := 0
	for _, m := range moves.entries {
		if !wrongSign(m) {
			continue
		}
		wrong++
		findings.add(specs.AnomalySpec{
			Kind:       specs.AnomalyMovementDirection,
			Severity:   specs.StatusFail,
			Bucket:     m.bucket,
			CustomerID: m.customer,
			Message:    fmt.Sprintf("%s of %s for %s has the wrong sign", m.kind, m.arr, m.entity),
		})
	}
	if wrong > 0 {
		return failed(specs.CheckMovementDirection, "%d movements have the wrong sign", wrong)
	}
	return passed(specs.CheckMovementDirection, "%d movements, inflows non-negative and outflows non-positive", len(moves.entries))
}

func wrongSign(m movement) bool {
	if inflows[m.kind] {
		return m.arr.IsNegative()
	}
	return !m.arr.IsNegative() && !m.arr.IsZero()
}

// checkWaterfall fails when a bucket's prior total plus its movements misses its
// current total by more than epsilon.
func checkWaterfall(moves *movementAnalysis, current periodTotals, options CheckOptions, findings *anomalyLog) specs.CheckResultSpec {
	broken := 0
	buckets := moves.buckets(current)
	for _, name := range buckets {
		expected := moves.prior.totals.total(name).Add(moves.net(name))
		actual := current.total(name)
		if expected.Sub(actual).Abs().Cmp(options.epsilon) <= 0 {
			continue
		}
		broken++
		findings.add(specs.AnomalySpec{
			Kind:     specs.AnomalyWaterfallMismatch,
			Severity: specs.StatusFail,
			Bucket:   name,
			Message:  fmt.Sprintf("prior total plus movements is %s, current total is %s", expected, actual),
		})
	}
	if broken > 0 {
		return failed(specs.CheckWaterfall, "%d of %d buckets do not bridge from the prior period", broken, len(buckets))
	}
	return passed(specs.CheckWaterfall, "%d buckets bridge from the prior period", len(buckets))
}

// totalsOf views reconciled bucket totals as period totals.
func totalsOf(buckets []BucketTotal) periodTotals {
	p := periodTotals{
		order:  make([]string, 0, len(buckets)),
		counts: make(map[string]int, len(buckets)),
		totals: make(map[string]Decimal, len(buckets)),
	}
	for _, b := range buckets {
		p.order = append(p.order, b.Bucket)
		p.counts[b.Bucket] = b.RecordCount
		p.totals[b.Bucket] = b.TotalARR
	}
	return p
}

func checkSum(result *ReconciliationResult, bucketed []BucketedRecord, options CheckOptions, findings *anomalyLog) specs.CheckResultSpec {
	result.Delta = result.GrandTotal.Sub(result.BucketSum)
	if result.Delta.Abs().Cmp(options.epsilon) <= 0 {
		return passed(specs.CheckSum, "bucket totals %s match grand total %s", result.BucketSum, result.GrandTotal)
	}

	findings.add(specs.AnomalySpec{
		Kind:     specs.AnomalyReconciliationMismatch,
		Severity: specs.StatusFail,
		Period:   result.Period,
		Message: fmt.Sprintf("grand total %s differs from bucket totals %s by %s (epsilon %s)",
			result.GrandTotal, result.BucketSum, result.Delta, options.epsilon),
	})
	if options.expectedByCustomer != nil {
		customerMismatches(bucketed, options, findings)
	}
	return failed(specs.CheckSum, "delta %s exceeds epsilon %s", result.Delta, options.epsilon)
}

// customerMismatches lists customers whose bucketed ARR differs from the expected
// per-customer figure.
func customerMismatches(bucketed []BucketedRecord, options CheckOptions, findings *anomalyLog) {
	actual := make(map[string]Decimal)
	for _, b := range bucketed {
		id := b.Record.CustomerID.ToString()
		if total, ok := actual[id]; ok {
			actual[id] = total.Add(b.Record.ARR.Value())
		} else {
			actual[id] = b.Record.ARR.Value()
		}
	}

	ids := make([]string, 0, len(options.expectedByCustomer)+len(actual))
	for id := range options.expectedByCustomer {
		ids = append(ids, id)
	}
	for id := range actual {
		if _, ok := options.expectedByCustomer[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		expected, ok := options.expectedByCustomer[id]
		if !ok {
			expected = ZeroDecimal()
		}
		got, ok := actual[id]
		if !ok {
			got = ZeroDecimal()
		}
		if diff := expected.Sub(got); diff.Abs().Cmp(options.epsilon) > 0 {
			findings.add(specs.AnomalySpec{
				Kind:       specs.AnomalyCustomerMismatch,
				Severity:   specs.StatusFail,
				CustomerID: id,
				Message:    fmt.Sprintf("expected ARR %s, bucketed ARR %s", expected, got),
			})
		}
	}
}

func checkCount(classified, unclassified, records int, options CheckOptions, findings *anomalyLog) specs.CheckResultSpec {
	if classified+unclassified != records {
		findings.add(specs.AnomalySpec{
			Kind:     specs.AnomalyCountMismatch,
			Severity: specs.StatusFail,
			Message: fmt.Sprintf("%d records in buckets and %d unclassified, but %d records checked",
				classified, unclassified, records),
		})
		return failed(specs.CheckCount, "bucket counts sum to %d, expected %d", classified+unclassified, records)
	}
	if options.expectedRecordCount != nil && *options.expectedRecordCount != records {
		findings.add(specs.AnomalySpec{
			Kind:     specs.AnomalyCountMismatch,
			Severity: specs.StatusFail,
			Message:  fmt.Sprintf("%d records checked, %d expected", records, *options.expectedRecordCount),
		})
		return failed(specs.CheckCount, "%d records checked, expected %d", records, *options.expectedRecordCount)
	}
	return passed(specs.CheckCount, "%d records accounted for", records)
}

func checkDiagnostics(bucketed []BucketedRecord, options CheckOptions, findings *anomalyLog) specs.CheckResultSpec {
	var unmatched, ambiguous int
	for _, b := range bucketed {
		switch b.Diagnostic {
		case DiagnosticUnmatched:
			unmatched++
			severity := specs.StatusFail
			if options.allowUnmatched {
				severity = specs.StatusWarn
			}
			findings.add(recordAnomaly(specs.AnomalyUnclassified, severity, b,
				fmt.Sprintf("ARR %s matches no bucket", b.Record.ARR.Value())))
		case DiagnosticAmbiguous:
			ambiguous++
			findings.add(recordAnomaly(specs.AnomalyAmbiguous, specs.StatusFail, b,
				fmt.Sprintf("ARR %s matched more than one bucket", b.Record.ARR.Value())))
		}
	}

	switch {
	case ambiguous > 0:
		return failed(specs.CheckDiagnostics, "%d ambiguous and %d unmatched records", ambiguous, unmatched)
	case unmatched > 0 && !options.allowUnmatched:
		return failed(specs.CheckDiagnostics, "%d unmatched records", unmatched)
	case unmatched > 0:
		return warned(specs.CheckDiagnostics, "%d unmatched records permitted by policy", unmatched)
	}
	return passed(specs.CheckDiagnostics, "every record matched exactly one bucket")
}

// checkAssignment re-derives each record's bucket from the spec to catch boundary
// drift and records filed under buckets the spec does not define.
func checkAssignment(bucketed []BucketedRecord, spec BucketSpec, findings *anomalyLog) specs.CheckResultSpec {
	var drifted, orphaned int
	for _, b := range bucketed {
		arr := b.Record.ARR.Value()
		expected, matches := spec.Match(arr)

		switch b.Diagnostic {
		case DiagnosticMatched:
			rule, known := spec.Lookup(b.Bucket.ToString())
			if !known {
				orphaned++
				findings.add(recordAnomaly(specs.AnomalyOrphanedRecord, specs.StatusFail, b,
					fmt.Sprintf("bucket %q is not defined", b.Bucket.ToString())))
				continue
			}
			if !rule.Contains(arr) {
				drifted++
				want := "no bucket"
				if matches {
					want = fmt.Sprintf("bucket %q", expected.Name().ToString())
				}
				findings.add(recordAnomaly(specs.AnomalyBoundaryDrift, specs.StatusFail, b,
					fmt.Sprintf("ARR %s is outside %s; belongs in %s", arr, rule.Interval(), want)))
			}
		case DiagnosticUnmatched:
			if matches {
				drifted++
				findings.add(recordAnomaly(specs.AnomalyBoundaryDrift, specs.StatusFail, b,
					fmt.Sprintf("ARR %s was left unmatched but belongs in bucket %q", arr, expected.Name().ToString())))
			}
		}
	}

	if drifted+orphaned > 0 {
		return failed(specs.CheckAssignment, "%d records drifted across boundaries, %d orphaned", drifted, orphaned)
	}
	return passed(specs.CheckAssignment, "every assignment agrees with the bucket spec")
}

func checkDuplicates(bucketed []BucketedRecord, findings *anomalyLog) specs.CheckResultSpec {
	seen := make(map[string]int, len(bucketed))
	duplicates := 0
	for _, b := range bucketed {
		identity := b.Record.Identity()
		seen[identity]++
		if seen[identity] == 2 {
			duplicates++
			findings.add(recordAnomaly(specs.AnomalyDoubleCount, specs.StatusFail, b,
				"record is counted more than once"))
		}
	}
	if duplicates > 0 {
		return failed(specs.CheckDuplicates, "%d records counted more than once", duplicates)
	}
	return passed(specs.CheckDuplicates, "no record counted twice")
}

// checkOutliers compares each bucket's share of classified ARR and records with the
// configured ranges. Findings are warnings only.
func checkOutliers(buckets []BucketTotal, classified int, options CheckOptions, findings *anomalyLog) specs.CheckResultSpec {
	if options.arrShare == nil && options.countShare == nil {
		return passed(specs.CheckOutliers, "no share ranges configured")
	}

	total := ZeroDecimal()
	for _, b := range buckets {
		total = total.Add(b.TotalARR)
	}
	records := NewDecimalFromInt64(int64(classified))

	outliers := 0
	flag := func(bucket, measure string, share Decimal, r ShareRange) {
		outliers++
		findings.add(specs.AnomalySpec{
			Kind:     specs.AnomalyOutlier,
			Severity: specs.StatusWarn,
			Bucket:   bucket,
			Message: fmt.Sprintf("bucket holds %s%% of %s, expected %s%%-%s%%",
				share.Mul(NewDecimalFromInt64(100)).Round(2), measure,
				r.min.Mul(NewDecimalFromInt64(100)).Round(2), r.max.Mul(NewDecimalFromInt64(100)).Round(2)),
		})
	}

	for _, b := range buckets {
		if options.arrShare != nil && !total.IsZero() {
			share := b.TotalARR.Div(total)
			if !options.arrShare.contains(share) {
				flag(b.Bucket, "ARR", share, *options.arrShare)
			}
		}
		if options.countShare != nil && classified > 0 {
			share := NewDecimalFromInt64(int64(b.RecordCount)).Div(records)
			if !options.countShare.contains(share) {
				flag(b.Bucket, "records", share, *options.countShare)
			}
		}
	}

	if outliers > 0 {
		return warned(specs.CheckOutliers, "%d bucket shares outside the expected range", outliers)
	}
	return passed(specs.CheckOutliers, "bucket shares within the expected range")
}

func resolvePeriod(bucketed []BucketedRecord, options CheckOptions) string {
	if !options.period.IsZero() {
		return options.period.ToString()
	}
	var latest RecordPeriod
	for _, b := range bucketed {
		if latest.IsZero() || latest.Before(b.Record.Period) {
			latest = b.Record.Period
		}
	}
	if latest.IsZero() {
		return ""
	}
	return latest.ToString()
}

func recordAnomaly(kind, severity string, b BucketedRecord, message string) specs.AnomalySpec {
	return specs.AnomalySpec{
		Kind:       kind,
		Severity:   severity,
		Bucket:     b.Bucket.ToString(),
		CustomerID: b.Record.CustomerID.ToString(),
		Period:     b.Record.Period.ToString(),
		Message:    message,
	}
}

func passed(category, format string, args ...any) specs.CheckResultSpec {
	return specs.CheckResultSpec{Category: category, Status: specs.StatusPass, Message: fmt.Sprintf(format, args...)}
}

func warned(category, format string, args ...any) specs.CheckResultSpec {
	return specs.CheckResultSpec{Category: category, Status: specs.StatusWarn, Message: fmt.Sprintf(format, args...)}
}

func failed(category, format string, args ...any) specs.CheckResultSpec {
	return specs.CheckResultSpec{Category: category, Status: specs.StatusFail, Message: fmt.Sprintf(format, args...)}
}

// anomalyLog collects findings in discovery order, capping each kind.
type anomalyLog struct {
	anomalies  []specs.AnomalySpec
	perKind    map[string]int
	suppressed map[string]int
	kinds      []string
}

func newAnomalyLog() *anomalyLog {
	return &anomalyLog{perKind: make(map[string]int), suppressed: make(map[string]int)}
}

func (l *anomalyLog) add(a specs.AnomalySpec) {
	if l.perKind[a.Kind] >= maxAnomaliesPerKind {
		if l.suppressed[a.Kind] == 0 {
			l.kinds = append(l.kinds, a.Kind)
		}
		l.suppressed[a.Kind]++
		return
	}
	l.perKind[a.Kind]++
	l.anomalies = append(l.anomalies, a)
}

func (l *anomalyLog) list() []specs.AnomalySpec {
	out := l.anomalies
	for _, kind := range l.kinds {
		out = append(out, specs.AnomalySpec{
			Kind:     kind,
			Severity: severityOf(l.anomalies, kind),
			Message:  fmt.Sprintf("%d more %s findings not listed", l.suppressed[kind], kind),
		})
	}
	return out
}

func severityOf(anomalies []specs.AnomalySpec, kind string) string {
	for _, a := range anomalies {
		if a.Kind == kind {
			return a.Severity
		}
	}
	return specs.StatusWarn
}

// CheckOptions is the validated form of specs.CheckOptionsSpec.
type CheckOptions struct {
	period              RecordPeriod
	grandTotal          Decimal
	epsilon             Decimal
	allowUnmatched      bool
	expectedRecordCount *int
	arrShare            *ShareRange
	countShare          *ShareRange
	expectedByCustomer  map[string]Decimal
}

func NewCheckOptions(spec specs.CheckOptionsSpec) (CheckOptions, error) {
	var options CheckOptions

	if spec.Period != "" {
		period, err := NewRecordPeriod(spec.Period)
		if err != nil {
			return CheckOptions{}, fmt.Errorf("invalid period: %w", err)
		}
		options.period = period
	}

	if spec.GrandTotal == "" {
		return CheckOptions{}, fmt.Errorf("grand total is required")
	}
	grandTotal, err := NewDecimal(spec.GrandTotal)
	if err != nil {
		return CheckOptions{}, fmt.Errorf("invalid grand total: %w", err)
	}
	options.grandTotal = grandTotal

	options.epsilon = ZeroDecimal()
	if spec.Epsilon != "" {
		epsilon, err := NewDecimal(spec.Epsilon)
		if err != nil {
			return CheckOptions{}, fmt.Errorf("invalid epsilon: %w", err)
		}
		if epsilon.IsNegative() {
			return CheckOptions{}, fmt.Errorf("epsilon cannot be negative")
		}
		options.epsilon = epsilon
	}

	if spec.ExpectedRecordCount != nil {
		if *spec.ExpectedRecordCount < 0 {
			return CheckOptions{}, fmt.Errorf("expected record count cannot be negative")
		}
		n := *spec.ExpectedRecordCount
		options.expectedRecordCount = &n
	}

	if spec.ARRShare != nil {
		r, err := NewShareRange(*spec.ARRShare)
		if err != nil {
			return CheckOptions{}, fmt.Errorf("invalid ARR share range: %w", err)
		}
		options.arrShare = &r
	}
	if spec.CountShare != nil {
		r, err := NewShareRange(*spec.CountShare)
		if err != nil {
			return CheckOptions{}, fmt.Errorf("invalid count share range: %w", err)
		}
		options.countShare = &r
	}

	if spec.ExpectedByCustomer != nil {
		options.expectedByCustomer = make(map[string]Decimal, len(spec.ExpectedByCustomer))
		for id, raw := range spec.ExpectedByCustomer {
			d, err := NewDecimal(raw)
			if err != nil {
				return CheckOptions{}, fmt.Errorf("invalid expected ARR for customer %q: %w", id, err)
			}
			options.expectedByCustomer[id] = d
		}
	}

	options.allowUnmatched = spec.AllowUnmatched
	return options, nil
}

// ShareRange is an inclusive [min, max] range of fractions.
type ShareRange struct {
	min Decimal
	max Decimal
}

func NewShareRange(spec specs.ShareRangeSpec) (ShareRange, error) {
	one := NewDecimalFromInt64(1)
	parse := func(raw, fallback string) (Decimal, error) {
		if raw == "" {
			raw = fallback
		}
		d, err := NewDecimal(raw)
		if err != nil {
			return Decimal{}, err
		}
		if d.IsNegative() || d.Cmp(one) > 0 {
			return Decimal{}, fmt.Errorf("share %s must be between 0 and 1", d)
		}
		return d, nil
	}

	lo, err := parse(spec.Min, "0")
	if err != nil {
		return ShareRange{}, fmt.Errorf("invalid min: %w", err)
	}
	hi, err := parse(spec.Max, "1")
	if err != nil {
		return ShareRange{}, fmt.Errorf("invalid max: %w", err)
	}
	if lo.Cmp(hi) > 0 {
		return ShareRange{}, fmt.Errorf("min %s is greater than max %s", lo, hi)
	}
	return ShareRange{min: lo, max: hi}, nil
}

func (r ShareRange) contains(share Decimal) bool {
	return share.Cmp(r.min) >= 0 && share.Cmp(r.max) <= 0
}
