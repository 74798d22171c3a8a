package internal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chrisconley/arrbucket/specs"
)

var (
	// ErrSchemaViolation is returned when records fail pre-checks under the strict policy.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrSpecDefect is returned for a malformed, gapped or overlapping bucket configuration.
	ErrSpecDefect = errors.New("bucket spec defect")

	// ErrAssignmentContract is returned when a record that should have been filtered
	// by the pre-checks reaches the assignment engine.
	ErrAssignmentContract = errors.New("assignment contract violation")
)

// Spec defect kinds.
const (
	DefectEmpty       = "empty"
	DefectMalformed   = "malformed"
	DefectDuplicate   = "duplicate_name"
	DefectUnreachable = "unreachable"
	DefectGap         = "gap"
	DefectOverlap     = "overlap"
)

// SpecDefectError names the offending rules of an invalid bucket configuration.
type SpecDefectError struct {
	Kind   string
	Rule   string
	Other  string
	Detail string
}

func (e *SpecDefectError) Error() string {
	switch {
	case e.Rule == "":
		return fmt.Sprintf("%s: %s: %s", ErrSpecDefect, e.Kind, e.Detail)
	case e.Other == "":
		return fmt.Sprintf("%s: %s in rule %q: %s", ErrSpecDefect, e.Kind, e.Rule, e.Detail)
	default:
		return fmt.Sprintf("%s: %s between rules %q and %q: %s", ErrSpecDefect, e.Kind, e.Rule, e.Other, e.Detail)
	}
}

func (e *SpecDefectError) Unwrap() error {
	return ErrSpecDefect
}

// SchemaViolationError carries every rejection of a strict pre-check.
type SchemaViolationError struct {
	Rejections []specs.RejectionSpec
}

func (e *SchemaViolationError) Error() string {
	if len(e.Rejections) == 0 {
		return ErrSchemaViolation.Error()
	}
	first := e.Rejections[0]
	msg := fmt.Sprintf("%s: record %d (customer %q) failed %s on %s: %s",
		ErrSchemaViolation, first.Index, first.CustomerID, first.Rule, first.Field, first.Message)
	if n := len(e.Rejections) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

func (e *SchemaViolationError) Unwrap() error {
	return ErrSchemaViolation
}

// AssignmentContractError identifies the record that broke the engine's input contract.
type AssignmentContractError struct {
	Index      int
	CustomerID string
	Reason     string
}

func (e *AssignmentContractError) Error() string {
	return fmt.Sprintf("%s: record %d (customer %q): %s", ErrAssignmentContract, e.Index, e.CustomerID, e.Reason)
}

func (e *AssignmentContractError) Unwrap() error {
	return ErrAssignmentContract
}

// joinDefects renders several spec defects for a single log line.
func joinDefects(defects []*SpecDefectError) string {
	parts := make([]string, len(defects))
	for i, d := range defects {
		parts[i] = d.Error()
	}
	return strings.Join(parts, "; ")
}
