package tasks

import (
	"fmt"
	"time"

	"extracto/internal/services"
)

// NewStatusDocument returns the status document assigned to freshly created
// tasks.
func NewStatusDocument() StatusDocument {
	return StatusDocument{Status: StatusNotStarted, Metadata: []StepRecord{}}
}

// StartStep appends a new IN_PROGRESS record for method and moves the
// overall status to IN_PROGRESS. At most one step may be running at a time;
// starting while another record is still IN_PROGRESS is a state error.
func (doc *StatusDocument) StartStep(method StepMethod, now time.Time) error {
	for i := range doc.Metadata {
		if doc.Metadata[i].Status == StatusInProgress {
			return services.Wrap(services.ErrInvalidState, string(method), "start step",
				fmt.Sprintf("step %s is still in progress", doc.Metadata[i].Method), nil)
		}
	}
	doc.Metadata = append(doc.Metadata, StepRecord{
		Method:    method,
		Status:    StatusInProgress,
		StartedAt: now.UTC(),
	})
	doc.Status = StatusInProgress
	return nil
}

// CompleteStep marks the most recent record for method as SUCCESS. When the
// record already carries a terminal status the call is a no-op, so replayed
// completions are harmless. The overall status stays IN_PROGRESS; only
// Finalize rolls it up, so a snapshot taken between steps never reads
// SUCCESS for a task whose run is still underway.
func (doc *StatusDocument) CompleteStep(method StepMethod, now time.Time) {
	record := doc.latest(method)
	if record != nil && record.Status == StatusInProgress {
		completed := now.UTC()
		record.Status = StatusSuccess
		record.CompletedAt = &completed
	}
	if doc.Status != StatusFailure {
		doc.Status = StatusInProgress
	}
}

// Finalize computes the overall rollup at the end of a run. The status
// becomes SUCCESS when every record succeeded, or when the run produced no
// records at all; a pinned FAILURE is left alone.
func (doc *StatusDocument) Finalize() {
	if doc.Status == StatusFailure {
		return
	}
	if len(doc.Metadata) == 0 || doc.allSucceeded() {
		doc.Status = StatusSuccess
	}
}

// FailStep marks the most recent record for method as FAILURE, stores the
// error text on the record, and pins the overall status to FAILURE.
func (doc *StatusDocument) FailStep(method StepMethod, message string, now time.Time) {
	record := doc.latest(method)
	if record == nil {
		doc.Metadata = append(doc.Metadata, StepRecord{
			Method:    method,
			Status:    StatusInProgress,
			StartedAt: now.UTC(),
		})
		record = &doc.Metadata[len(doc.Metadata)-1]
	}
	completed := now.UTC()
	record.Status = StatusFailure
	record.CompletedAt = &completed
	record.Error = message
	doc.Status = StatusFailure
}

// Reset returns the document to its initial state so a task can be
// re-queued from scratch.
func (doc *StatusDocument) Reset() {
	doc.Status = StatusNotStarted
	doc.Metadata = []StepRecord{}
}

// StepStatus reports the status of the most recent record for method, or
// false when the step never started.
func (doc *StatusDocument) StepStatus(method StepMethod) (Status, bool) {
	record := doc.latest(method)
	if record == nil {
		return "", false
	}
	return record.Status, true
}

func (doc *StatusDocument) latest(method StepMethod) *StepRecord {
	for i := len(doc.Metadata) - 1; i >= 0; i-- {
		if doc.Metadata[i].Method == method {
			return &doc.Metadata[i]
		}
	}
	return nil
}

func (doc *StatusDocument) allSucceeded() bool {
	if len(doc.Metadata) == 0 {
		return false
	}
	for i := range doc.Metadata {
		if doc.Metadata[i].Status != StatusSuccess {
			return false
		}
	}
	return true
}
