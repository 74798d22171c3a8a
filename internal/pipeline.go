package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/chrisconley/arrbucket/internal/infra"
	"github.com/chrisconley/arrbucket/specs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Validate implements specs.Validate with a default Runner.
func Validate(input specs.RunInputSpec) (specs.PreCheckResultSpec, error) {
	return NewRunner().Validate(input)
}

// Run implements specs.Run with a default Runner.
func Run(ctx context.Context, input specs.RunInputSpec) (specs.ReportSpec, error) {
	return NewRunner().Run(ctx, input)
}

// Runner wires the pure stages together and reports progress through a logger and an
// optional event bus. A Runner holds no per-run state and may be reused.
type Runner struct {
	logger  *zap.Logger
	bus     *infra.Bus
	workers int
	now     func() time.Time
	newID   func() string
}

type RunOption func(*Runner)

func WithLogger(logger *zap.Logger) RunOption {
	return func(r *Runner) { r.logger = logger }
}

func WithBus(bus *infra.Bus) RunOption {
	return func(r *Runner) { r.bus = bus }
}

// WithWorkers sets the assignment parallelism; zero or less means one per CPU.
func WithWorkers(n int) RunOption {
	return func(r *Runner) { r.workers = n }
}

func WithClock(now func() time.Time) RunOption {
	return func(r *Runner) { r.now = now }
}

func WithRunIDs(newID func() string) RunOption {
	return func(r *Runner) { r.newID = newID }
}

func NewRunner(opts ...RunOption) *Runner {
	r := &Runner{
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate checks the bucket configuration and runs the pre-checks only.
func (r *Runner) Validate(input specs.RunInputSpec) (specs.PreCheckResultSpec, error) {
	if _, err := r.bucketSpec(input.Buckets); err != nil {
		return specs.PreCheckResultSpec{}, err
	}
	contract, err := NewSchemaContract(input.Contract)
	if err != nil {
		return specs.PreCheckResultSpec{}, fmt.Errorf("invalid contract: %w", err)
	}

	result := preCheck(input.Records, contract)
	r.logger.Info("pre-checks complete",
		zap.Int("records", len(input.Records)),
		zap.Int("valid", len(result.Valid)),
		zap.Int("rejected", len(result.Rejections)))

	if contract.Policy().IsStrict() && len(result.Rejections) > 0 {
		return result.ToSpec(), &SchemaViolationError{Rejections: result.Rejections}
	}
	return result.ToSpec(), nil
}

// Run executes pre-checks, assignment, reconciliation and report assembly. Fatal
// errors abort the run and publish a RunFailedEvent; failed checks do not.
func (r *Runner) Run(ctx context.Context, input specs.RunInputSpec) (specs.ReportSpec, error) {
	runID := r.newID()
	logger := r.logger.With(zap.String("run_id", runID))

	fail := func(stage string, err error) (specs.ReportSpec, error) {
		logger.Error("run failed", zap.String("stage", stage), zap.Error(err))
		r.publish(RunFailedEvent{RunID: runID, Stage: stage, Err: err})
		return specs.ReportSpec{}, err
	}

	spec, err := r.bucketSpec(input.Buckets)
	if err != nil {
		return fail(StageConfig, err)
	}
	contract, err := NewSchemaContract(input.Contract)
	if err != nil {
		return fail(StageConfig, fmt.Errorf("invalid contract: %w", err))
	}
	options, err := NewCheckOptions(input.Checks)
	if err != nil {
		return fail(StageConfig, fmt.Errorf("invalid check options: %w", err))
	}

	checked := preCheck(input.Records, contract)
	r.publish(RecordsPreCheckedEvent{
		RunID:            runID,
		Valid:            len(checked.Valid),
		Rejected:         len(checked.Rejections),
		Warnings:         len(checked.Warnings),
		RejectionsByRule: summariseRejections(checked.Rejections),
	})
	logger.Info("pre-checks complete",
		zap.Int("valid", len(checked.Valid)),
		zap.Int("rejected", len(checked.Rejections)),
		zap.Int("warnings", len(checked.Warnings)))
	if contract.Policy().IsStrict() && len(checked.Rejections) > 0 {
		return fail(StagePreCheck, &SchemaViolationError{Rejections: checked.Rejections})
	}

	var prior *priorPeriod
	if input.Prior != nil && input.PriorPositions != nil {
		if prior, err = newPriorPeriod(*input.Prior, input.PriorPositions, input.Returning); err != nil {
			return fail(StageConfig, err)
		}
	}

	if options.period.IsZero() {
		options.period = latestPeriod(checked.Valid)
	}
	current := inPeriod(checked.Valid, options.period)
	bucketed, tally, err := AssignPartitioned(ctx, current, spec, r.workers)
	if err != nil {
		return fail(StageAssignment, fmt.Errorf("assignment: %w", err))
	}
	unmatched, _ := tally.Unclassified()
	r.publish(RecordsBucketedEvent{
		RunID:       runID,
		Partitions:  len(partitionRanges(len(current), r.workers)),
		Matched:     tally.Records() - unmatched,
		Unmatched:   unmatched,
		OutOfPeriod: len(checked.Valid) - len(current),
	})
	logger.Debug("records bucketed",
		zap.Int("matched", tally.Records()-unmatched),
		zap.Int("unmatched", unmatched),
		zap.Int("out_of_period", len(checked.Valid)-len(current)))

	positions := positionsOf(bucketed, spec, contract.KeyFields())
	var moves *movementAnalysis
	if prior != nil {
		moves = analyseMovements(positions, prior)
	}

	reconciliation := reconcile(bucketed, tally, spec, options, moves).ToSpec()
	r.publish(ReconciliationCompletedEvent{RunID: runID, Result: reconciliation})
	logger.Info("reconciliation complete",
		zap.String("period", reconciliation.Period),
		zap.Bool("healthy", reconciliation.Healthy),
		zap.String("delta", reconciliation.Delta),
		zap.Int("anomalies", len(reconciliation.Anomalies)))

	if err := ctx.Err(); err != nil {
		return fail(StageReconciliation, err)
	}

	report, err := assembleReport(checked.Valid, reconciliation, input.Prior, checked.Rejections, &spec, moves)
	if err != nil {
		return fail(StageReport, err)
	}
	report.RunID = runID
	report.GeneratedAt = r.now().UTC()
	report.Positions = positionSpecs(positions)
	report.Warnings = checked.Warnings
	r.publish(ReportAssembledEvent{RunID: runID, Report: report})
	logger.Info("report assembled",
		zap.String("period", report.Period),
		zap.String("prior_period", report.PriorPeriod),
		zap.Int("buckets", len(report.Buckets)),
		zap.Int("movements", len(report.Movements)))

	return report, nil
}

// latestPeriod is the zero period when there are no records.
func latestPeriod(records []RevenueRecord) RecordPeriod {
	var latest RecordPeriod
	for _, r := range records {
		if latest.IsZero() || latest.Before(r.Period) {
			latest = r.Period
		}
	}
	return latest
}

// inPeriod keeps the records of period; a zero period keeps everything.
func inPeriod(records []RevenueRecord, period RecordPeriod) []RevenueRecord {
	if period.IsZero() {
		return records
	}
	out := make([]RevenueRecord, 0, len(records))
	for _, record := range records {
		if record.Period.Equal(period) {
			out = append(out, record)
		}
	}
	return out
}

// bucketSpec builds the spec, logging every defect before returning the first.
func (r *Runner) bucketSpec(config specs.BucketConfigSpec) (BucketSpec, error) {
	if defects := CheckBucketSpec(config); len(defects) > 0 {
		r.logger.Error("bucket spec rejected",
			zap.Int("defects", len(defects)),
			zap.String("details", joinDefects(defects)))
		return BucketSpec{}, fmt.Errorf("invalid config: %w", defects[0])
	}
	return NewBucketSpec(config)
}

func (r *Runner) publish(e infra.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

// TotalARR sums the ARR of the validated records that a run over period would
// bucket. It is the grand total to use when the source system supplies none.
func TotalARR(records []specs.RecordSpec, period string) (string, error) {
	var want RecordPeriod
	if period != "" {
		p, err := NewRecordPeriod(period)
		if err != nil {
			return "", err
		}
		want = p
	}
	total := ZeroDecimal()
	for _, spec := range records {
		record, err := NewRevenueRecord(spec)
		if err != nil {
			return "", err
		}
		if want.IsZero() || record.Period.Equal(want) {
			total = total.Add(record.ARR.Value())
		}
	}
	return total.String(), nil
}
