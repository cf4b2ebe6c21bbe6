package pipeline

import (
	"context"
	"encoding/json"

	"extracto/internal/services/objectstore"
	"extracto/internal/tasks"
)

// Handle pairs a resolved catalog document with its decoded storage
// location.
type Handle struct {
	Document *tasks.Document
	Location objectstore.Location
}

// Context carries intermediate pipeline state between steps. Ingest fills
// Handles, Parse fills Text, Extract fills Extracted, Summarize fills
// Summaries.
type Context struct {
	Handles   []Handle
	Text      string
	Extracted json.RawMessage
	Summaries map[string]string
}

// StepReporter persists step transitions on the task's status document.
// Every transition is committed before processing continues so observers
// always see current progress.
type StepReporter interface {
	StartStep(ctx context.Context, method tasks.StepMethod) error
	CompleteStep(ctx context.Context, method tasks.StepMethod) error
	FailStep(ctx context.Context, method tasks.StepMethod, message string) error
}

func runStep(ctx context.Context, reporter StepReporter, method tasks.StepMethod, work func() error) error {
	if err := reporter.StartStep(ctx, method); err != nil {
		return err
	}
	if err := work(); err != nil {
		if failErr := reporter.FailStep(ctx, method, err.Error()); failErr != nil {
			return failErr
		}
		return err
	}
	return reporter.CompleteStep(ctx, method)
}

func truncateText(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
