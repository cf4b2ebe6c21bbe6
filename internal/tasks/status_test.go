package tasks_test

import (
	"errors"
	"testing"
	"time"

	"extracto/internal/services"
	"extracto/internal/tasks"
)

func TestNewStatusDocument(t *testing.T) {
	doc := tasks.NewStatusDocument()
	if doc.Status != tasks.StatusNotStarted {
		t.Fatalf("unexpected status %s", doc.Status)
	}
	if len(doc.Metadata) != 0 {
		t.Fatalf("expected no records, got %d", len(doc.Metadata))
	}
}

func TestStartStepRejectsConcurrentSteps(t *testing.T) {
	doc := tasks.NewStatusDocument()
	now := time.Now()

	if err := doc.StartStep(tasks.StepIngesting, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	if doc.Status != tasks.StatusInProgress {
		t.Fatalf("unexpected status %s", doc.Status)
	}

	err := doc.StartStep(tasks.StepParsing, now)
	if !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state marker, got %v", err)
	}
	if len(doc.Metadata) != 1 {
		t.Fatalf("rejected start should not append a record, got %d", len(doc.Metadata))
	}
}

func TestRollupStaysInProgressUntilFinalize(t *testing.T) {
	doc := tasks.NewStatusDocument()
	now := time.Now()

	steps := []tasks.StepMethod{tasks.StepIngesting, tasks.StepParsing, tasks.StepExtracting}
	for _, step := range steps {
		if err := doc.StartStep(step, now); err != nil {
			t.Fatalf("StartStep %s failed: %v", step, err)
		}
		doc.CompleteStep(step, now)
		// A snapshot between steps must never read SUCCESS while the run
		// has more work to do.
		if doc.Status != tasks.StatusInProgress {
			t.Fatalf("expected IN_PROGRESS after %s, got %s", step, doc.Status)
		}
	}

	doc.Finalize()
	if doc.Status != tasks.StatusSuccess {
		t.Fatalf("expected SUCCESS after finalize, got %s", doc.Status)
	}
}

func TestFinalizeEmptyRunSucceeds(t *testing.T) {
	doc := tasks.NewStatusDocument()
	doc.Finalize()
	if doc.Status != tasks.StatusSuccess {
		t.Fatalf("expected SUCCESS for a run with no records, got %s", doc.Status)
	}
}

func TestFinalizeLeavesFailurePinned(t *testing.T) {
	doc := tasks.NewStatusDocument()
	now := time.Now()
	if err := doc.StartStep(tasks.StepIngesting, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	doc.FailStep(tasks.StepIngesting, "boom", now)

	doc.Finalize()
	if doc.Status != tasks.StatusFailure {
		t.Fatalf("expected FAILURE to stay pinned, got %s", doc.Status)
	}
}

func TestCompleteStepIsIdempotent(t *testing.T) {
	doc := tasks.NewStatusDocument()
	now := time.Now()

	if err := doc.StartStep(tasks.StepIngesting, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	doc.CompleteStep(tasks.StepIngesting, now)
	first := *doc.Metadata[0].CompletedAt

	doc.CompleteStep(tasks.StepIngesting, now.Add(time.Hour))
	if !doc.Metadata[0].CompletedAt.Equal(first) {
		t.Fatal("replayed completion must not change the record")
	}
	if doc.Status != tasks.StatusInProgress {
		t.Fatalf("unexpected status %s", doc.Status)
	}
}

func TestFailStepPinsFailure(t *testing.T) {
	doc := tasks.NewStatusDocument()
	now := time.Now()

	if err := doc.StartStep(tasks.StepIngesting, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	doc.CompleteStep(tasks.StepIngesting, now)
	if err := doc.StartStep(tasks.StepParsing, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	doc.FailStep(tasks.StepParsing, "conversion exploded", now)

	if doc.Status != tasks.StatusFailure {
		t.Fatalf("expected FAILURE, got %s", doc.Status)
	}
	status, ok := doc.StepStatus(tasks.StepParsing)
	if !ok || status != tasks.StatusFailure {
		t.Fatalf("unexpected step status %s", status)
	}
	record := doc.Metadata[len(doc.Metadata)-1]
	if record.Error != "conversion exploded" {
		t.Fatalf("unexpected error text %q", record.Error)
	}
	if record.CompletedAt == nil {
		t.Fatal("failed record missing completion time")
	}
}

func TestResetClearsDocument(t *testing.T) {
	doc := tasks.NewStatusDocument()
	now := time.Now()
	if err := doc.StartStep(tasks.StepIngesting, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	doc.FailStep(tasks.StepIngesting, "boom", now)

	doc.Reset()
	if doc.Status != tasks.StatusNotStarted || len(doc.Metadata) != 0 {
		t.Fatalf("unexpected document after reset: %+v", doc)
	}
}

func TestParseStepMethod(t *testing.T) {
	cases := []struct {
		input string
		want  tasks.StepMethod
		ok    bool
	}{
		{"INGESTING", tasks.StepIngesting, true},
		{"summarizing", tasks.StepSummarizing, true},
		{" Parsing ", tasks.StepParsing, true},
		{"TRANSMOGRIFY", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := tasks.ParseStepMethod(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseStepMethod(%q) = %q, %v", tc.input, got, ok)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := tasks.ParseStatus("in_progress"); !ok || status != tasks.StatusInProgress {
		t.Fatalf("unexpected parse result %q %v", status, ok)
	}
	if _, ok := tasks.ParseStatus("SORT_OF_DONE"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
