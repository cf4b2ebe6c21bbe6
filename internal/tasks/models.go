package tasks

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a task and of individual step records.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
)

var allStatuses = []Status{
	StatusNotStarted,
	StatusInProgress,
	StatusSuccess,
	StatusFailure,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// StepMethod identifies one pipeline stage.
type StepMethod string

const (
	StepIngesting   StepMethod = "INGESTING"
	StepParsing     StepMethod = "PARSING"
	StepExtracting  StepMethod = "EXTRACTING"
	StepSummarizing StepMethod = "SUMMARIZING"
)

var allStepMethods = []StepMethod{
	StepIngesting,
	StepParsing,
	StepExtracting,
	StepSummarizing,
}

// AllStepMethods returns the ordered list of known pipeline steps.
func AllStepMethods() []StepMethod {
	cp := make([]StepMethod, len(allStepMethods))
	copy(cp, allStepMethods)
	return cp
}

// ParseStepMethod converts a string into a known StepMethod.
func ParseStepMethod(value string) (StepMethod, bool) {
	normalized := StepMethod(strings.ToUpper(strings.TrimSpace(value)))
	for _, method := range allStepMethods {
		if method == normalized {
			return method, true
		}
	}
	return "", false
}

// StepRecord captures the progress of one pipeline step inside a task's
// status document.
type StepRecord struct {
	Method      StepMethod `json:"method"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Error       string     `json:"error,omitempty"`
}

// StatusDocument is the structured, embedded record of overall and per-step
// progress for a task. It is owned and exclusively mutated by the worker
// currently holding the task.
type StatusDocument struct {
	Status   Status       `json:"status"`
	Metadata []StepRecord `json:"metadata"`
}

// Task is one unit of document-processing work.
type Task struct {
	ID            string
	ProjectID     string
	DocumentIDs   []string
	Status        StatusDocument
	AIResult      json.RawMessage
	Output        json.RawMessage
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

// Document is a read-only pipeline input describing one uploaded file and
// where its bytes live. StorageJSON holds the structured storage location
// ({storage_type, container_name, absolute_path}) as written by the upload
// surface; the ingest step decodes it.
type Document struct {
	ID          string
	ProjectID   string
	Name        string
	Type        string
	Folder      string
	StorageJSON string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// Project owns documents and references the workflow configuration used for
// all of its tasks.
type Project struct {
	ID          string
	Name        string
	WorkflowID  string
	Description string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// WorkflowConfig carries the declarative workflow document interpreted by
// the executor. WorkflowJSON is the raw JSON column value.
type WorkflowConfig struct {
	ID           string
	Name         string
	WorkflowJSON string
	Description  string
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// HealthSummary describes aggregated task counts per lifecycle state.
type HealthSummary struct {
	Total      int
	NotStarted int
	InProgress int
	Succeeded  int
	Failed     int
}
