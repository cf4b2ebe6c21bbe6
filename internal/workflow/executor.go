package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"extracto/internal/logging"
	"extracto/internal/pipeline"
	"extracto/internal/services"
	"extracto/internal/services/llm"
	"extracto/internal/services/objectstore"
	"extracto/internal/tasks"
)

// Executor runs a workflow definition against one claimed task, threading
// the pipeline context through the enabled steps and committing the results
// at the end.
type Executor struct {
	store      *tasks.Store
	ingestor   *pipeline.Ingestor
	parser     *pipeline.Parser
	extractor  *pipeline.Extractor
	summarizer *pipeline.Summarizer
	logger     *slog.Logger
}

// NewExecutor constructs the executor and its step processors.
func NewExecutor(store *tasks.Store, objects *objectstore.Router, service llm.Service, logger *slog.Logger) *Executor {
	execLogger := logging.NewComponentLogger(logger, "executor")
	return &Executor{
		store:      store,
		ingestor:   pipeline.NewIngestor(store, objects, logger),
		parser:     pipeline.NewParser(objects, logger),
		extractor:  pipeline.NewExtractor(service, logger),
		summarizer: pipeline.NewSummarizer(service, logger),
		logger:     execLogger,
	}
}

// Execute runs the definition's steps in declaration order. Disabled steps
// are skipped without a status record. The first failing step aborts the
// run; remaining steps are not attempted. On success the extraction result
// and the summary output are committed together with the final status.
func (e *Executor) Execute(ctx context.Context, task *tasks.Task, def *Definition) error {
	pc := &pipeline.Context{}
	reporter := &statusReporter{store: e.store, task: task}
	logger := logging.WithContext(ctx, e.logger)

	for _, step := range def.Steps {
		if !step.IsEnabled() {
			logger.Debug("step disabled, skipping", logging.String("method", step.Method))
			continue
		}
		method, ok := tasks.ParseStepMethod(step.Method)
		if !ok {
			return services.Wrap(services.ErrConfiguration, step.Method, "dispatch step",
				fmt.Sprintf("unknown step method %q", step.Method), nil)
		}

		stepCtx := services.WithStep(ctx, string(method))
		var err error
		switch method {
		case tasks.StepIngesting:
			err = e.ingestor.Run(stepCtx, task, pc, reporter)
		case tasks.StepParsing:
			err = e.parser.Run(stepCtx, task, pc, reporter)
		case tasks.StepExtracting:
			var cfg pipeline.ExtractConfig
			if err = decodeStepConfig(step.Config, &cfg); err != nil {
				return err
			}
			if cfg.Model == "" {
				cfg.Model = def.Model
			}
			err = e.extractor.Run(stepCtx, task, pc, cfg, reporter)
		case tasks.StepSummarizing:
			var cfg pipeline.SummarizeConfig
			if err = decodeStepConfig(step.Config, &cfg); err != nil {
				return err
			}
			if cfg.Model == "" {
				cfg.Model = def.Model
			}
			err = e.summarizer.Run(stepCtx, task, pc, cfg, reporter)
		}
		if err != nil {
			return err
		}
	}

	// The rollup stays IN_PROGRESS while steps run; only now, with every
	// enabled step done, does the document read SUCCESS. A workflow with no
	// enabled steps finishes successfully with an empty record list.
	task.Status.Finalize()

	output, err := json.Marshal(map[string]any{"summary": pc.Summaries})
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := e.store.CompleteTask(ctx, task.ID, task.Status, pc.Extracted, output); err != nil {
		return err
	}
	logger.Info("workflow complete",
		logging.String(logging.FieldTaskID, task.ID),
		logging.Int("steps", len(task.Status.Metadata)),
	)
	return nil
}

func decodeStepConfig(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return services.Wrap(services.ErrConfiguration, "", "decode step config",
			"malformed step config", err)
	}
	return nil
}

// statusReporter persists every step transition on the task's status
// document as it happens.
type statusReporter struct {
	store *tasks.Store
	task  *tasks.Task
}

func (r *statusReporter) StartStep(ctx context.Context, method tasks.StepMethod) error {
	if err := r.task.Status.StartStep(method, time.Now()); err != nil {
		return err
	}
	return r.store.UpdateStatus(ctx, r.task.ID, r.task.Status)
}

func (r *statusReporter) CompleteStep(ctx context.Context, method tasks.StepMethod) error {
	r.task.Status.CompleteStep(method, time.Now())
	return r.store.UpdateStatus(ctx, r.task.ID, r.task.Status)
}

func (r *statusReporter) FailStep(ctx context.Context, method tasks.StepMethod, message string) error {
	r.task.Status.FailStep(method, message, time.Now())
	return r.store.UpdateStatus(ctx, r.task.ID, r.task.Status)
}
