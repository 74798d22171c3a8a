package internal

import (
	"fmt"

	"github.com/chrisconley/arrbucket/specs"
)

// Assign implements specs.Assign.
// Converts specs to domain objects, assigns, and converts back to specs.
func Assign(recordSpecs []specs.RecordSpec, configSpec specs.BucketConfigSpec) ([]specs.BucketedRecordSpec, error) {
	spec, err := NewBucketSpec(configSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	records, err := recordsForAssignment(recordSpecs)
	if err != nil {
		return nil, err
	}

	bucketed := assign(records, spec)

	out := make([]specs.BucketedRecordSpec, len(bucketed))
	for i, b := range bucketed {
		out[i] = b.ToSpec()
	}
	return out, nil
}

// recordsForAssignment converts pre-checked records. Anything the pre-checks should
// have refused is a contract violation, not a data-quality finding.
func recordsForAssignment(recordSpecs []specs.RecordSpec) ([]RevenueRecord, error) {
	records := make([]RevenueRecord, len(recordSpecs))
	for i, spec := range recordSpecs {
		if spec.ARR == "" {
			return nil, &AssignmentContractError{Index: i, CustomerID: spec.CustomerID, Reason: "null ARR"}
		}
		record, err := NewRevenueRecord(spec)
		if err != nil {
			return nil, &AssignmentContractError{Index: i, CustomerID: spec.CustomerID, Reason: err.Error()}
		}
		records[i] = record
	}
	return records, nil
}

// assign maps every record to its bucket. It has no side effects and depends only
// on each record and the spec, so any partition of the input may be assigned
// independently.
func assign(records []RevenueRecord, spec BucketSpec) []BucketedRecord {
	out := make([]BucketedRecord, len(records))
	for i, record := range records {
		out[i] = assignRecord(record, spec)
	}
	return out
}

func assignRecord(record RevenueRecord, spec BucketSpec) BucketedRecord {
	rule, ok := spec.Match(record.ARR.Value())
	if !ok {
		return BucketedRecord{Record: record, Diagnostic: DiagnosticUnmatched}
	}
	return BucketedRecord{Record: record, Bucket: rule.Name(), Diagnostic: DiagnosticMatched}
}

type BucketedRecord struct {
	Record     RevenueRecord
	Bucket     BucketName
	Diagnostic AssignmentDiagnostic
}

func NewBucketedRecord(spec specs.BucketedRecordSpec) (BucketedRecord, error) {
	record, err := NewRevenueRecord(spec.Record)
	if err != nil {
		return BucketedRecord{}, fmt.Errorf("invalid record: %w", err)
	}

	diagnostic, err := NewAssignmentDiagnostic(spec.Diagnostic)
	if err != nil {
		return BucketedRecord{}, fmt.Errorf("invalid diagnostic: %w", err)
	}

	// Unmatched records carry no bucket; ambiguous ones may name either candidate.
	var bucket BucketName
	if spec.Bucket != "" {
		bucket = BucketName{value: spec.Bucket}
	} else if diagnostic == DiagnosticMatched {
		return BucketedRecord{}, fmt.Errorf("matched record has no bucket")
	}

	return BucketedRecord{Record: record, Bucket: bucket, Diagnostic: diagnostic}, nil
}

func (b BucketedRecord) ToSpec() specs.BucketedRecordSpec {
	return specs.BucketedRecordSpec{
		Record:     b.Record.ToSpec(),
		Bucket:     b.Bucket.ToString(),
		Diagnostic: b.Diagnostic.ToString(),
	}
}

type AssignmentDiagnostic struct {
	value string
}

var (
	DiagnosticMatched   = AssignmentDiagnostic{value: specs.DiagnosticMatched}
	DiagnosticUnmatched = AssignmentDiagnostic{value: specs.DiagnosticUnmatched}
	DiagnosticAmbiguous = AssignmentDiagnostic{value: specs.DiagnosticAmbiguous}
)

func NewAssignmentDiagnostic(value string) (AssignmentDiagnostic, error) {
	switch value {
	case specs.DiagnosticMatched, specs.DiagnosticUnmatched, specs.DiagnosticAmbiguous:
		return AssignmentDiagnostic{value: value}, nil
	case "":
		return AssignmentDiagnostic{}, fmt.Errorf("diagnostic is required")
	default:
		return AssignmentDiagnostic{}, fmt.Errorf("invalid diagnostic: %q", value)
	}
}

func (d AssignmentDiagnostic) ToString() string {
	return d.value
}

func (d AssignmentDiagnostic) IsMatched() bool {
	return d == DiagnosticMatched
}
