package specs

// PreCheck partitions raw records into valid records and rejections.
//
// Process:
//  1. Required-field presence
//  2. Type conformance (ARR is a decimal, period parses in the contract's date format)
//  3. ARR range sanity (non-negative, below the implausibility ceiling)
//  4. Recurring flag (when the contract only admits recurring revenue)
//  5. Duplicate key detection within the same period
//  6. Month completeness per customer and product (warning only)
//
// Under the strict policy any rejection fails the whole call. Under the quarantine
// policy the valid records are returned alongside the rejection report.
//
// See internal.PreCheck for the reference implementation.
type PreCheck func(records []RawRecordSpec, contract SchemaContractSpec) (PreCheckResultSpec, error)

// Pre-check policies.
const (
	PolicyStrict     = "strict"
	PolicyQuarantine = "quarantine"
)

// Null ARR policies.
const (
	NullARRReject = "reject"
	NullARRZero   = "zero"
)

// Rejection rules.
const (
	RuleMissingField   = "missing_field"
	RuleInvalidType    = "invalid_type"
	RuleNegativeARR    = "negative_arr"
	RuleImplausibleARR = "implausible_arr"
	RuleNonRecurring   = "non_recurring"
	RuleDuplicateKey   = "duplicate_key"
)

// Pre-check warning kinds.
const (
	WarningMonthGap = "month_gap"
)

// SchemaContractSpec describes what a valid raw record looks like.
type SchemaContractSpec struct {
	// Fields that must be present and non-empty.
	//
	// "customer_id", "arr" and "period" name the record's own fields; any other
	// name refers to a dimension tag. Defaults to the three record fields.
	RequiredFields []string `json:"requiredFields,omitempty" yaml:"required_fields"`

	// Dimension names that, together with the customer id, form the record key.
	//
	// Duplicate keys within the same period are rejected. Empty means the customer
	// id alone is the key.
	KeyFields []string `json:"keyFields,omitempty" yaml:"key_fields"`

	// Date format of the period tag: "iso" (default), "us" or "uk".
	DateFormat string `json:"dateFormat,omitempty" yaml:"date_format"`

	// Exclusive implausibility ceiling for ARR as a decimal string, nil for none.
	MaxARR *string `json:"maxARR,omitempty" yaml:"max_arr"`

	// What to do with a null ARR: "reject" (default) or "zero".
	NullARR string `json:"nullARR,omitempty" yaml:"null_arr"`

	// Reject records flagged as non-recurring revenue.
	RecurringOnly bool `json:"recurringOnly" yaml:"recurring_only"`

	// "strict" fails the run on any rejection, "quarantine" (default) continues
	// with the valid records and reports rejections separately.
	Policy string `json:"policy,omitempty" yaml:"policy"`
}

// RejectionSpec explains why a raw record was excluded.
type RejectionSpec struct {
	// Position of the record in the input.
	Index int `json:"index"`

	// Customer identifier as received (may be empty).
	CustomerID string `json:"customerID"`

	// Period tag as received.
	Period string `json:"period"`

	// Violated rule, one of the Rule* constants.
	Rule string `json:"rule"`

	// Field the rule was evaluated against.
	Field string `json:"field"`

	// Raw value of the field, empty when it was missing.
	RawValue string `json:"rawValue"`

	// Human readable explanation.
	Message string `json:"message"`
}

// PreCheckResultSpec is the outcome of the pre-check validator.
type PreCheckResultSpec struct {
	// Records that passed every check, in input order.
	Valid []RecordSpec `json:"valid"`

	// One entry per rejected record, in input order.
	Rejections []RejectionSpec `json:"rejections"`

	// Findings that do not reject any record.
	Warnings []PreCheckWarningSpec `json:"warnings,omitempty"`
}

// PreCheckWarningSpec is a non-fatal finding over the valid records.
type PreCheckWarningSpec struct {
	// One of the Warning* constants.
	Kind string `json:"kind"`

	CustomerID string `json:"customerID"`

	// Value of the product dimension, empty when records carry none.
	Product string `json:"product,omitempty"`

	// Month the finding is about ("2006-01").
	Period string `json:"period"`

	Message string `json:"message"`
}
