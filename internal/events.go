package internal

import (
	"github.com/chrisconley/arrbucket/internal/infra"
	"github.com/chrisconley/arrbucket/specs"
)

// RecordsPreCheckedEvent is published once the validator has split the input.
type RecordsPreCheckedEvent struct {
	RunID            string
	Valid            int
	Rejected         int
	Warnings         int
	RejectionsByRule map[string]int
}

func (e RecordsPreCheckedEvent) EventType() infra.EventType {
	return infra.RecordsPreChecked
}

// RecordsBucketedEvent is published after assignment. Valid records outside the
// reporting period are counted but not assigned.
type RecordsBucketedEvent struct {
	RunID       string
	Partitions  int
	Matched     int
	Unmatched   int
	OutOfPeriod int
}

func (e RecordsBucketedEvent) EventType() infra.EventType {
	return infra.RecordsBucketed
}

type ReconciliationCompletedEvent struct {
	RunID  string
	Result specs.ReconciliationResultSpec
}

func (e ReconciliationCompletedEvent) EventType() infra.EventType {
	return infra.ReconciliationCompleted
}

type ReportAssembledEvent struct {
	RunID  string
	Report specs.ReportSpec
}

func (e ReportAssembledEvent) EventType() infra.EventType {
	return infra.ReportAssembled
}

// RunFailedEvent carries the stage that aborted a run and its error.
type RunFailedEvent struct {
	RunID string
	Stage string
	Err   error
}

func (e RunFailedEvent) EventType() infra.EventType {
	return infra.RunFailed
}

// Run stages, as reported by RunFailedEvent.
const (
	StageConfig         = "config"
	StagePreCheck       = "precheck"
	StageAssignment     = "assignment"
	StageReconciliation = "reconciliation"
	StageReport         = "report"
)
