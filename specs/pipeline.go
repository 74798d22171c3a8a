package specs

import "context"

// RunInputSpec is the shared input of the validate-only and full-run entry points.
type RunInputSpec struct {
	Records  []RawRecordSpec           `json:"records"`
	Buckets  BucketConfigSpec          `json:"buckets"`
	Contract SchemaContractSpec        `json:"contract"`
	Checks   CheckOptionsSpec          `json:"checks"`
	Prior    *ReconciliationResultSpec `json:"prior,omitempty"`

	// Customer positions of the prior period. Customer movements are computed only
	// when Prior is set and this is non-nil.
	PriorPositions []CustomerPositionSpec `json:"priorPositions,omitempty"`

	// Entities seen in any period before the prior one; they count as win-backs
	// rather than new customers when they reappear.
	Returning []string `json:"returning,omitempty"`
}

// Validate runs the bucket configuration checks and the pre-check validator only.
//
// See internal.Validate for the reference implementation.
type Validate func(input RunInputSpec) (PreCheckResultSpec, error)

// Run executes pre-checks, assignment, reconciliation and report assembly.
//
// See internal.Run for the reference implementation.
type Run func(ctx context.Context, input RunInputSpec) (ReportSpec, error)
