package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/chrisconley/arrbucket/internal"
	"github.com/chrisconley/arrbucket/internal/config"
	"github.com/chrisconley/arrbucket/internal/infra"
	"github.com/chrisconley/arrbucket/internal/logging"
	"github.com/chrisconley/arrbucket/internal/metrics"
	"github.com/chrisconley/arrbucket/internal/output"
	"github.com/chrisconley/arrbucket/internal/source"
	"github.com/chrisconley/arrbucket/internal/store"
	"github.com/chrisconley/arrbucket/specs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const periodLayout = "2006-01"

// errUnhealthy is returned when the report fails a hard check.
var errUnhealthy = errors.New("reconciliation failed")

func runValidate(cmd *cobra.Command, args []string) error {
	input, err := loadInput()
	if err != nil {
		return err
	}

	runner := internal.NewRunner(internal.WithLogger(logger))
	result, err := runner.Validate(input)
	if writeErr := output.WriteRejectionsCSV(os.Stdout, result.Rejections); writeErr != nil {
		return writeErr
	}
	return err
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	input, err := loadInput()
	if err != nil {
		return err
	}

	bus := infra.NewBus()
	logging.Subscribe(bus, logger)
	collector := metrics.New(prometheus.NewRegistry())
	collector.Subscribe(bus)
	if path := cfg.Metrics.TextfilePath; path != "" {
		defer func() {
			if err := collector.WriteTextfile(path); err != nil {
				logger.Warn("failed to write metrics", zap.String("path", path), zap.Error(err))
			}
		}()
	}

	if err := resolveTotals(&input); err != nil {
		return err
	}

	var history *store.RunStore
	if cfg.Store.Path != "" {
		history, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer history.Close()

		if err := loadPrior(ctx, history, &input); err != nil {
			return err
		}
	}

	runner := internal.NewRunner(
		internal.WithLogger(logger),
		internal.WithBus(bus),
		internal.WithWorkers(cfg.Run.Workers),
	)
	report, err := runner.Run(ctx, input)
	if err != nil {
		return err
	}

	if err := output.Write(cfg.Output.Path, cfg.Output.Format, report); err != nil {
		return err
	}
	if history != nil {
		if err := history.Save(ctx, report); err != nil {
			return err
		}
	}

	if !report.Healthy && !allowUnhealthy {
		return fmt.Errorf("%w for period %s: %s", errUnhealthy, report.Period, failedChecks(report.Reconciliation))
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("no run history configured; set --store or store.path")
	}
	history, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer history.Close()

	runs, err := history.Runs(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tPERIOD\tHEALTHY\tGENERATED AT")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", r.RunID, r.Period, r.Healthy, r.GeneratedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}

// loadInput reads the records and converts the configuration.
func loadInput() (specs.RunInputSpec, error) {
	if cfg.Input.Path == "" {
		return specs.RunInputSpec{}, fmt.Errorf("no input file; set --input or input.path")
	}
	records, err := source.Load(cfg.Input.Path, cfg.Input.Columns)
	if err != nil {
		return specs.RunInputSpec{}, err
	}
	logger.Info("input loaded", zap.String("path", cfg.Input.Path), zap.Int("records", len(records)))

	return specs.RunInputSpec{
		Records:  records,
		Buckets:  cfg.BucketConfigSpec(),
		Contract: cfg.SchemaContractSpec(),
		Checks:   cfg.CheckOptionsSpec(cfg.Run.GrandTotal),
	}, nil
}

// resolveTotals fixes the reporting period to the latest valid period when none
// is configured, and derives the grand total from the valid records when none is
// supplied.
func resolveTotals(input *specs.RunInputSpec) error {
	if input.Checks.Period != "" && input.Checks.GrandTotal != "" {
		return nil
	}

	checked, err := internal.PreCheck(input.Records, input.Contract)
	var violation *internal.SchemaViolationError
	if err != nil && !errors.As(err, &violation) {
		return err
	}

	if input.Checks.Period == "" {
		input.Checks.Period = latestPeriod(checked.Valid)
	}
	if input.Checks.GrandTotal == "" {
		total, err := internal.TotalARR(checked.Valid, input.Checks.Period)
		if err != nil {
			return err
		}
		input.Checks.GrandTotal = total
		logger.Info("grand total computed from input",
			zap.String("period", input.Checks.Period),
			zap.String("grand_total", total))
	}
	return nil
}

// loadPrior fills in the stored period growth and customer movements are measured
// against. When the comparison period was never run, the latest healthy run before
// it stands in.
func loadPrior(ctx context.Context, history *store.RunStore, input *specs.RunInputSpec) error {
	current := input.Checks.Period
	if current == "" {
		return nil
	}
	t, err := time.Parse(periodLayout, current)
	if err != nil {
		return fmt.Errorf("invalid period %q: %w", current, err)
	}
	target := cfg.PriorPeriod(t)
	priorPeriod := target.Format(periodLayout)
	if priorPeriod == current {
		return nil
	}

	prior, found, err := history.Load(ctx, priorPeriod)
	if err != nil {
		return err
	}
	if !found {
		prior, found, err = history.LatestBefore(ctx, target.AddDate(0, 1, 0).Format(periodLayout))
		if err != nil {
			return err
		}
		if !found {
			logger.Info("no prior run stored", zap.String("prior_period", priorPeriod))
			return nil
		}
		logger.Info("comparing with the latest earlier run",
			zap.String("prior_period", priorPeriod),
			zap.String("stored_period", prior.Period))
	}

	positions, _, err := history.Positions(ctx, prior.Period)
	if err != nil {
		return err
	}
	returning, err := history.Returning(ctx, prior.Period)
	if err != nil {
		return err
	}
	input.Prior = prior
	input.PriorPositions = positions
	input.Returning = returning
	return nil
}

// latestPeriod relies on validated periods being normalised to YYYY-MM.
func latestPeriod(records []specs.RecordSpec) string {
	var latest string
	for _, r := range records {
		if r.Period > latest {
			latest = r.Period
		}
	}
	return latest
}

func failedChecks(result specs.ReconciliationResultSpec) string {
	var failed []string
	for _, c := range result.Checks {
		if c.Status == specs.StatusFail {
			failed = append(failed, c.Category+": "+c.Message)
		}
	}
	if len(failed) == 0 {
		return "no failed checks recorded"
	}
	msg := failed[0]
	if len(failed) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(failed)-1)
	}
	return msg
}
