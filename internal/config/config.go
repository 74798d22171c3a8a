package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chrisconley/arrbucket/specs"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all arrbucket configuration.
type Config struct {
	// Bucket rules, in any order
	Buckets []BucketConfig `yaml:"buckets" validate:"required,min=1,dive"`

	// Pre-check contract
	Schema SchemaConfig `yaml:"schema"`

	// Consistency and reconciliation checks
	Checks ChecksConfig `yaml:"checks"`

	// Run settings
	Run RunConfig `yaml:"run"`

	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// BucketConfig is one bucket rule. Bounds are decimal strings; an omitted bound is
// unbounded. Intervals default to [lower, upper).
type BucketConfig struct {
	Name           string  `yaml:"name" validate:"required"`
	Lower          *string `yaml:"lower,omitempty"`
	Upper          *string `yaml:"upper,omitempty"`
	LowerInclusive *bool   `yaml:"lower_inclusive,omitempty"`
	UpperInclusive *bool   `yaml:"upper_inclusive,omitempty"`
}

// SchemaConfig configures the pre-check validator.
type SchemaConfig struct {
	RequiredFields []string `yaml:"required_fields"`
	KeyFields      []string `yaml:"key_fields"`
	DateFormat     string   `yaml:"date_format" validate:"omitempty,oneof=iso us uk"`
	MaxARR         *string  `yaml:"max_arr,omitempty"`
	NullARR        string   `yaml:"null_arr" validate:"omitempty,oneof=reject zero"`
	RecurringOnly  bool     `yaml:"recurring_only"`
	Policy         string   `yaml:"policy" validate:"omitempty,oneof=strict quarantine"`
}

// ChecksConfig configures the consistency checker.
type ChecksConfig struct {
	Epsilon             string      `yaml:"epsilon"`
	AllowUnmatched      bool        `yaml:"allow_unmatched"`
	ExpectedRecordCount *int        `yaml:"expected_record_count,omitempty" validate:"omitempty,min=0"`
	ARRShare            *ShareRange `yaml:"arr_share,omitempty"`
	CountShare          *ShareRange `yaml:"count_share,omitempty"`
}

// ShareRange bounds a bucket's share as fractions between 0 and 1.
type ShareRange struct {
	Min string `yaml:"min"`
	Max string `yaml:"max"`
}

// Comparison types select which earlier period growth is measured against.
const (
	CompareMonths = "number_of_months"
	CompareYTD    = "YTD"
	CompareQTD    = "QTD"
	CompareFYTD   = "FYTD"
	CompareFQTD   = "FQTD"
)

// ValidComparisons lists all supported comparison types.
var ValidComparisons = []string{CompareMonths, CompareYTD, CompareQTD, CompareFYTD, CompareFQTD}

// RunConfig configures a single run.
type RunConfig struct {
	// Parallel assignment workers; 0 means one per CPU
	Workers int `yaml:"workers" validate:"min=0"`

	// Reporting period (YYYY-MM); derived from the data when empty
	Period string `yaml:"period"`

	// Caller-supplied grand total; computed from the input when empty
	GrandTotal string `yaml:"grand_total"`

	Comparison   string `yaml:"comparison" validate:"required"`
	Months       int    `yaml:"months" validate:"min=0"`
	FYStartMonth int    `yaml:"fy_start_month" validate:"min=0,max=12"`
}

// InputConfig configures the CSV source.
type InputConfig struct {
	Path string `yaml:"path"`

	// Source column name -> record field or dimension name
	Columns map[string]string `yaml:"columns"`
}

type OutputConfig struct {
	Format string `yaml:"format" validate:"oneof=json csv"`
	Path   string `yaml:"path"`
}

type StoreConfig struct {
	// SQLite run history; empty disables history
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	// Prometheus textfile; empty disables export
	TextfilePath string `yaml:"textfile_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Buckets: []BucketConfig{
			{Name: "0-10k", Lower: ptr("0"), Upper: ptr("10000")},
			{Name: "10k-50k", Lower: ptr("10000"), Upper: ptr("50000")},
			{Name: "50k-100k", Lower: ptr("50000"), Upper: ptr("100000")},
			{Name: "100k+", Lower: ptr("100000")},
		},
		Schema: SchemaConfig{
			DateFormat: "iso",
			NullARR:    specs.NullARRReject,
			Policy:     specs.PolicyQuarantine,
		},
		Checks: ChecksConfig{
			Epsilon: "0.01",
		},
		Run: RunConfig{
			Comparison: CompareMonths,
			Months:     1,
		},
		Output: OutputConfig{
			Format: "json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		// A buckets list in the file replaces the default list.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies ARRBUCKET_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("ARRBUCKET_INPUT"); v != "" {
		c.Input.Path = v
	}
	if v := os.Getenv("ARRBUCKET_PERIOD"); v != "" {
		c.Run.Period = v
	}
	if v := os.Getenv("ARRBUCKET_GRAND_TOTAL"); v != "" {
		c.Run.GrandTotal = v
	}
	if v := os.Getenv("ARRBUCKET_EPSILON"); v != "" {
		c.Checks.Epsilon = v
	}
	if v := os.Getenv("ARRBUCKET_POLICY"); v != "" {
		c.Schema.Policy = v
	}
	if v := os.Getenv("ARRBUCKET_STORE"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ARRBUCKET_METRICS_FILE"); v != "" {
		c.Metrics.TextfilePath = v
	}
	if v := os.Getenv("ARRBUCKET_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ARRBUCKET_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ARRBUCKET_WORKERS %q: %w", v, err)
		}
		c.Run.Workers = n
	}
	return nil
}

var validate = validator.New()

// Validate validates the configuration: struct constraints first, then the
// comparison window and the reporting period.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Run.Comparison {
	case CompareMonths:
		if c.Run.Months < 1 {
			return fmt.Errorf("invalid config: comparison %s needs months >= 1", CompareMonths)
		}
	case CompareYTD, CompareQTD:
	case CompareFYTD, CompareFQTD:
		if c.Run.FYStartMonth < 1 {
			return fmt.Errorf("invalid config: comparison %s needs fy_start_month between 1 and 12", c.Run.Comparison)
		}
	default:
		return fmt.Errorf("invalid config: comparison %q (valid: %v)", c.Run.Comparison, ValidComparisons)
	}

	if c.Run.Period != "" {
		if _, err := time.Parse("2006-01", c.Run.Period); err != nil {
			return fmt.Errorf("invalid config: period %q is not in YYYY-MM form", c.Run.Period)
		}
	}
	return nil
}

// PriorPeriod returns the period that growth for period is measured against.
func (c *Config) PriorPeriod(period time.Time) time.Time {
	month := int(period.Month())
	switch c.Run.Comparison {
	case CompareYTD:
		return monthStart(period.Year(), 0)
	case CompareQTD:
		return monthStart(period.Year(), month-(month-1)%3-1)
	case CompareFYTD:
		offset := (month - c.Run.FYStartMonth + 12) % 12
		return monthStart(period.Year(), month-offset-1)
	case CompareFQTD:
		offset := (month - c.Run.FYStartMonth + 12) % 3
		return monthStart(period.Year(), month-offset-1)
	default:
		return monthStart(period.Year(), month-c.Run.Months)
	}
}

// monthStart normalises month overflow, so month 0 is December of the prior year.
func monthStart(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// BucketConfigSpec converts the bucket rules.
func (c *Config) BucketConfigSpec() specs.BucketConfigSpec {
	rules := make([]specs.BucketRuleSpec, len(c.Buckets))
	for i, b := range c.Buckets {
		rules[i] = specs.BucketRuleSpec{
			Name:           b.Name,
			Lower:          b.Lower,
			Upper:          b.Upper,
			LowerInclusive: b.LowerInclusive == nil || *b.LowerInclusive,
			UpperInclusive: b.UpperInclusive != nil && *b.UpperInclusive,
		}
	}
	return specs.BucketConfigSpec{Rules: rules}
}

// SchemaContractSpec converts the pre-check contract.
func (c *Config) SchemaContractSpec() specs.SchemaContractSpec {
	return specs.SchemaContractSpec{
		RequiredFields: c.Schema.RequiredFields,
		KeyFields:      c.Schema.KeyFields,
		DateFormat:     c.Schema.DateFormat,
		MaxARR:         c.Schema.MaxARR,
		NullARR:        c.Schema.NullARR,
		RecurringOnly:  c.Schema.RecurringOnly,
		Policy:         c.Schema.Policy,
	}
}

// CheckOptionsSpec converts the check settings for the given grand total.
func (c *Config) CheckOptionsSpec(grandTotal string) specs.CheckOptionsSpec {
	options := specs.CheckOptionsSpec{
		Period:              c.Run.Period,
		GrandTotal:          grandTotal,
		Epsilon:             c.Checks.Epsilon,
		AllowUnmatched:      c.Checks.AllowUnmatched,
		ExpectedRecordCount: c.Checks.ExpectedRecordCount,
	}
	if r := c.Checks.ARRShare; r != nil {
		options.ARRShare = &specs.ShareRangeSpec{Min: r.Min, Max: r.Max}
	}
	if r := c.Checks.CountShare; r != nil {
		options.CountShare = &specs.ShareRangeSpec{Min: r.Min, Max: r.Max}
	}
	return options
}

func ptr(s string) *string { return &s }
