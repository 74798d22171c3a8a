package specs

// Reconcile checks bucketed records against the bucket configuration and an
// independently supplied grand total.
//
// Returns an error only for fatal conditions (an invalid bucket configuration or
// unparseable options). Reconciliation mismatches and outliers are reported in the
// result as failing or warning checks.
//
// See internal.Reconcile for the reference implementation.
type Reconcile func(
	bucketed []BucketedRecordSpec,
	config BucketConfigSpec,
	options CheckOptionsSpec,
) (ReconciliationResultSpec, error)

// Check categories.
const (
	CheckSpec        = "spec"
	CheckSum         = "sum"
	CheckCount       = "count"
	CheckDiagnostics = "diagnostics"
	CheckAssignment  = "assignment"
	CheckDuplicates  = "duplicates"
	CheckOutliers    = "outliers"

	// Present only when customer movements were computed.
	CheckMovementDirection = "movement_direction"
	CheckWaterfall         = "waterfall"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// Anomaly kinds.
const (
	AnomalyReconciliationMismatch = "reconciliation_mismatch"
	AnomalyCountMismatch          = "count_mismatch"
	AnomalyUnclassified           = "unclassified"
	AnomalyAmbiguous              = "ambiguous"
	AnomalyBoundaryDrift          = "boundary_drift"
	AnomalyOrphanedRecord         = "orphaned_record"
	AnomalyDoubleCount            = "double_count"
	AnomalyOutlier                = "outlier"
	AnomalyCustomerMismatch       = "customer_mismatch"
	AnomalyMovementDirection      = "movement_direction"
	AnomalyWaterfallMismatch      = "waterfall_mismatch"
)

// CheckOptionsSpec configures the consistency and reconciliation checks.
type CheckOptionsSpec struct {
	// Period the run reports on ("2006-01"). Defaults to the latest record period.
	Period string `json:"period,omitempty"`

	// Independently computed grand-total ARR as a decimal string.
	//
	// Required. The checker never recomputes it from the bucketed records.
	GrandTotal string `json:"grandTotal"`

	// Absolute tolerance for the sum check as a decimal string. Defaults to "0".
	Epsilon string `json:"epsilon,omitempty"`

	// Allow records with the "unmatched" diagnostic without failing the run.
	//
	// When allowed, the unmatched ARR is counted towards the sum check as an
	// explicit unclassified residue.
	AllowUnmatched bool `json:"allowUnmatched"`

	// Number of records expected to reach the checker, nil to skip.
	ExpectedRecordCount *int `json:"expectedRecordCount,omitempty"`

	// Expected share of total ARR per bucket, nil to skip.
	ARRShare *ShareRangeSpec `json:"arrShare,omitempty"`

	// Expected share of record count per bucket, nil to skip.
	CountShare *ShareRangeSpec `json:"countShare,omitempty"`

	// Expected ARR per customer id, used to list offending customers when the sum
	// check fails. Nil to skip.
	ExpectedByCustomer map[string]string `json:"expectedByCustomer,omitempty"`
}

// ShareRangeSpec bounds a bucket's share as fractions between "0" and "1".
type ShareRangeSpec struct {
	Min string `json:"min" yaml:"min"`
	Max string `json:"max" yaml:"max"`
}

// BucketTotalSpec is the per-bucket aggregate of a run.
type BucketTotalSpec struct {
	Bucket      string `json:"bucket"`
	RecordCount int    `json:"recordCount"`
	TotalARR    string `json:"totalARR"`
}

// CheckResultSpec is the status of one check category.
type CheckResultSpec struct {
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// AnomalySpec is a single finding of the checker.
type AnomalySpec struct {
	// One of the Anomaly* constants.
	Kind string `json:"kind"`

	// "fail" for hard findings, "warn" for soft signals.
	Severity string `json:"severity"`

	// Bucket involved, if any.
	Bucket string `json:"bucket,omitempty"`

	// Customer involved, if any.
	CustomerID string `json:"customerID,omitempty"`

	// Period involved, if any.
	Period string `json:"period,omitempty"`

	Message string `json:"message"`
}

// ReconciliationResultSpec is the outcome of the consistency checker.
type ReconciliationResultSpec struct {
	// Period reported on ("2006-01").
	Period string `json:"period"`

	// Per-bucket totals in bucket order (ascending lower bound).
	Buckets []BucketTotalSpec `json:"buckets"`

	// Records and ARR not assigned to any bucket.
	UnclassifiedCount int    `json:"unclassifiedCount"`
	UnclassifiedARR   string `json:"unclassifiedARR"`

	// Number of bucketed records checked.
	RecordCount int `json:"recordCount"`

	// Sum of the bucket totals (plus unclassified ARR when unmatched records are allowed).
	BucketSum string `json:"bucketSum"`

	// Grand total supplied by the caller.
	GrandTotal string `json:"grandTotal"`

	// GrandTotal minus BucketSum.
	Delta string `json:"delta"`

	// One result per check category.
	Checks []CheckResultSpec `json:"checks"`

	Anomalies []AnomalySpec `json:"anomalies"`

	// True when no check category failed.
	Healthy bool `json:"healthy"`
}
