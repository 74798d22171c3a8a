package specs

// RawRecordSpec is a customer revenue record as delivered by the data loader.
//
// Raw records are the input boundary of the system. Every field is kept in its
// source representation so that the pre-check validator can report exactly what
// was received when a record is rejected.
type RawRecordSpec struct {
	// Customer identifier.
	//
	// Together with the period (and any configured key dimensions) it identifies a
	// record. Duplicate keys within a period are rejected by the pre-check validator.
	CustomerID string `json:"customerID"`

	// ARR as a decimal string, or nil when the source value was null.
	ARR *string `json:"arr,omitempty"`

	// Period tag in the contract's date format.
	//
	// Normalised to the first day of its month ("2006-01") once validated.
	Period string `json:"period"`

	// Optional recurring-revenue flag, nil when the source does not carry one.
	Recurring *bool `json:"recurring,omitempty"`

	// Dimension tags and any extra source columns.
	//
	// Examples: {"product_id": "payroll", "region": "emea", "sales_rep": "jdoe"}.
	// Unknown columns are preserved here rather than dropped.
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// RecordSpec is a record that passed the pre-check validator.
type RecordSpec struct {
	// Customer identifier.
	CustomerID string `json:"customerID"`

	// ARR as a decimal string.
	//
	// Always a parseable, non-negative decimal for records produced by the pre-check
	// validator. An empty string is a null ARR and is refused by the assignment engine.
	ARR string `json:"arr"`

	// Period normalised to "2006-01".
	Period string `json:"period"`

	// Dimension tags, preserved from the raw record.
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// Assignment diagnostics.
const (
	DiagnosticMatched   = "matched"
	DiagnosticUnmatched = "unmatched"
	DiagnosticAmbiguous = "ambiguous"
)

// BucketedRecordSpec is a record together with its assigned bucket.
type BucketedRecordSpec struct {
	// The record that was assigned.
	Record RecordSpec `json:"record"`

	// Assigned bucket name, empty when the record is unmatched.
	Bucket string `json:"bucket"`

	// Outcome of the assignment: "matched", "unmatched" or "ambiguous".
	Diagnostic string `json:"diagnostic"`
}
