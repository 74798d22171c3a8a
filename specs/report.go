package specs

import "time"

// AssembleReport turns checked, bucketed records into a report structure.
//
// The prior period's reconciliation is optional; when present, growth and churn
// deltas are computed per bucket. Serialisation is left to the caller.
//
// See internal.AssembleReport for the reference implementation.
type AssembleReport func(
	bucketed []BucketedRecordSpec,
	reconciliation ReconciliationResultSpec,
	prior *ReconciliationResultSpec,
	rejections []RejectionSpec,
) (ReportSpec, error)

// Growth statuses.
const (
	GrowthChanged      = "changed"
	GrowthNew          = "new"
	GrowthDiscontinued = "discontinued"
)

// ReportSpec is the format-agnostic output of a run.
type ReportSpec struct {
	RunID       string    `json:"runID"`
	Period      string    `json:"period"`
	PriorPeriod string    `json:"priorPeriod,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`

	// True when every hard check passed.
	Healthy bool `json:"healthy"`

	Buckets []BucketReportSpec `json:"buckets"`

	// Period-over-period movement per bucket, empty without a prior period.
	Growth []GrowthSpec `json:"growth,omitempty"`

	// Customer flows per bucket, empty unless the prior period's positions are known.
	Movements []BucketMovementSpec `json:"movements,omitempty"`

	// Every matched customer's bucket in this period.
	//
	// Kept by the run store as the next period's prior positions; not rendered.
	Positions []CustomerPositionSpec `json:"-"`

	// Non-fatal pre-check findings such as month gaps.
	Warnings []PreCheckWarningSpec `json:"warnings,omitempty"`

	Reconciliation ReconciliationResultSpec `json:"reconciliation"`

	Rejections []RejectionSpec `json:"rejections"`

	// Rejection count per rule.
	RejectionSummary map[string]int `json:"rejectionSummary"`

	Profile DataProfileSpec `json:"profile"`
}

// BucketReportSpec holds the aggregates of one bucket.
type BucketReportSpec struct {
	Bucket      string `json:"bucket"`
	Lower       string `json:"lower"`
	Upper       string `json:"upper"`
	RecordCount int    `json:"recordCount"`
	TotalARR    string `json:"totalARR"`
	AverageARR  string `json:"averageARR"`

	// Percentages with two decimal places.
	ARRShare   string `json:"arrShare"`
	CountShare string `json:"countShare"`
}

// GrowthSpec is the movement of one bucket between the prior and current period.
type GrowthSpec struct {
	Bucket string `json:"bucket"`

	// "changed", "new" or "discontinued".
	Status string `json:"status"`

	PriorTotal   string `json:"priorTotal"`
	CurrentTotal string `json:"currentTotal"`
	Delta        string `json:"delta"`

	// Percentage change with two decimal places, empty when Status is "new".
	Percentage string `json:"percentage,omitempty"`

	PriorCount   int `json:"priorCount"`
	CurrentCount int `json:"currentCount"`
}

// DataProfileSpec summarises the bucketed input.
type DataProfileSpec struct {
	UniqueCustomers int    `json:"uniqueCustomers"`
	UniqueProducts  int    `json:"uniqueProducts"`
	FirstPeriod     string `json:"firstPeriod"`
	LastPeriod      string `json:"lastPeriod"`

	// Total ARR per calendar year.
	ARRByYear map[string]string `json:"arrByYear"`

	// Customers with positive ARR in the twelve months ending at LastPeriod.
	ActiveCustomersLast12Months int `json:"activeCustomersLast12Months"`

	Warnings []string `json:"warnings,omitempty"`
}

// CustomerPositionSpec is where one customer stood in one period.
type CustomerPositionSpec struct {
	// Customer id plus the values of the contract's key dimensions.
	//
	// Equal to CustomerID when the contract has no key dimensions.
	Entity string `json:"entity"`

	CustomerID string `json:"customerID"`
	Bucket     string `json:"bucket"`

	// ARR as a decimal string.
	ARR string `json:"arr"`
}

// Movement kinds, in waterfall order.
const (
	MovementNew      = "new"
	MovementWinBack  = "win_back"
	MovementChurn    = "churn"
	MovementMovedIn  = "moved_in"
	MovementMovedOut = "moved_out"
	MovementUpsell   = "upsell"
	MovementDownsell = "downsell"
)

// BucketMovementSpec splits a bucket's change between two periods by customer flow.
//
// PriorTotal plus every ARR field equals CurrentTotal. Inflows (new, win-back, moved
// in, upsell) are non-negative; outflows (churn, moved out, downsell) are
// non-positive.
type BucketMovementSpec struct {
	Bucket       string `json:"bucket"`
	PriorTotal   string `json:"priorTotal"`
	CurrentTotal string `json:"currentTotal"`

	// Customers absent from the prior period and never seen before it.
	NewCount int    `json:"newCount"`
	NewARR   string `json:"newARR"`

	// Customers absent from the prior period but seen in an earlier one.
	WinBackCount int    `json:"winBackCount"`
	WinBackARR   string `json:"winBackARR"`

	// Customers of the prior period absent from this one.
	ChurnCount int    `json:"churnCount"`
	ChurnARR   string `json:"churnARR"`

	// Customers that arrived from, or left for, another bucket.
	MovedInCount  int    `json:"movedInCount"`
	MovedInARR    string `json:"movedInARR"`
	MovedOutCount int    `json:"movedOutCount"`
	MovedOutARR   string `json:"movedOutARR"`

	// Customers that stayed in the bucket with more, or less, ARR.
	UpsellCount   int    `json:"upsellCount"`
	UpsellARR     string `json:"upsellARR"`
	DownsellCount int    `json:"downsellCount"`
	DownsellARR   string `json:"downsellARR"`

	// Customers that stayed in the bucket, whatever their ARR change.
	RetainedCount int `json:"retainedCount"`
}
