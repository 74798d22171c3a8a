package main

import (
	"fmt"
	"os"

	"github.com/chrisconley/arrbucket/internal/config"
	"github.com/chrisconley/arrbucket/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath     string
	verbose        bool
	inputPath      string
	period         string
	grandTotal     string
	outputPath     string
	outputFormat   string
	workers        int
	storePath      string
	metricsFile    string
	allowUnhealthy bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "arrbucket",
	Short: "Bucket customers by ARR and reconcile the totals",
	Long: `arrbucket assigns customer revenue records to ARR size buckets, checks that
the bucketed totals reconcile with the grand total, and reports per-bucket
aggregates and period-over-period growth.

Configuration is read from a YAML file (--config), then ARRBUCKET_* environment
variables, then command line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the pre-checks only and print the rejections as CSV",
	RunE:  runValidate,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bucket, reconcile and report on the input",
	Long: `Runs the full pipeline:
  1. Pre-check the input records against the schema contract
  2. Assign every record of the period to its bucket
  3. Reconcile bucket totals against the grand total
  4. Assemble the report, with growth against the stored prior period

Exits non-zero when a hard check fails unless --allow-unhealthy is set.`,
	RunE: runPipeline,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the run history",
	RunE:  listRuns,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write the default configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "arrbucket.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&inputPath, "input", "i", "", "Input CSV file")
	rootCmd.PersistentFlags().StringVar(&period, "period", "", "Reporting period (YYYY-MM)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Run history database")

	runCmd.Flags().StringVar(&grandTotal, "grand-total", "", "Grand total to reconcile against (default: sum of valid input)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Report destination (default: stdout)")
	runCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "Report format: json or csv")
	runCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Assignment workers (0: one per CPU)")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	runCmd.Flags().BoolVar(&allowUnhealthy, "allow-unhealthy", false, "Exit zero even when a hard check fails")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input.Path = inputPath
	}
	if flags.Changed("period") {
		cfg.Run.Period = period
	}
	if flags.Changed("store") {
		cfg.Store.Path = storePath
	}
	if flags.Changed("grand-total") {
		cfg.Run.GrandTotal = grandTotal
	}
	if flags.Changed("output") {
		cfg.Output.Path = outputPath
	}
	if flags.Changed("format") {
		cfg.Output.Format = outputFormat
	}
	if flags.Changed("workers") {
		cfg.Run.Workers = workers
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.TextfilePath = metricsFile
	}
}
