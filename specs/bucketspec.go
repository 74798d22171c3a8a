package specs

// BucketConfigSpec declares the ARR buckets used for a run.
//
// Bucket configurations are supplied by the run configuration as an ordered list of
// rules. Order is only used to produce stable diagnostics: assignment does not depend
// on it, and two rules that both accept a value are a configuration defect rather
// than a priority decision.
type BucketConfigSpec struct {
	// Bucket rules in configuration order.
	//
	// Taken together the rules must tile the ARR line without gaps or overlaps once
	// inclusivity flags are resolved. The outermost rules may be open-ended (nil
	// bound) to catch every value; otherwise values beyond them are reported as
	// unmatched.
	Rules []BucketRuleSpec `json:"rules" yaml:"rules"`
}

// BucketRuleSpec declares a single named ARR interval.
//
// Bounds are decimal strings so that boundaries such as 10000 and 50000 compare
// exactly against record ARR values.
type BucketRuleSpec struct {
	// Unique, human readable bucket name.
	//
	// Used as the bucket key in bucketed records, reconciliation totals and reports.
	// Examples: "<10k", "10k-50k", ">50k".
	Name string `json:"name" yaml:"name"`

	// Lower bound as a decimal string, or nil for negative infinity.
	Lower *string `json:"lower,omitempty" yaml:"lower,omitempty"`

	// Upper bound as a decimal string, or nil for positive infinity.
	Upper *string `json:"upper,omitempty" yaml:"upper,omitempty"`

	// Whether a value equal to Lower belongs to this bucket.
	//
	// Ignored when Lower is nil.
	LowerInclusive bool `json:"lowerInclusive" yaml:"lower_inclusive"`

	// Whether a value equal to Upper belongs to this bucket.
	//
	// Ignored when Upper is nil.
	UpperInclusive bool `json:"upperInclusive" yaml:"upper_inclusive"`
}
