package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"extracto/internal/config"
	"extracto/internal/logging"
	"extracto/internal/services"
	"extracto/internal/tasks"
	"extracto/internal/workflow"
)

// Executor runs a workflow definition against one claimed task.
type Executor interface {
	Execute(ctx context.Context, task *tasks.Task, def *workflow.Definition) error
}

// Worker drives the claim, execute, persist loop.
type Worker struct {
	cfg      *config.Config
	store    *tasks.Store
	executor Executor
	logger   *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	heartbeat          *HeartbeatMonitor

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// New constructs a worker from configuration.
func New(cfg *config.Config, store *tasks.Store, executor Executor, logger *slog.Logger) *Worker {
	workerLogger := logging.NewComponentLogger(logger, "worker")
	return &Worker{
		cfg:                cfg,
		store:              store,
		executor:           executor,
		logger:             workerLogger,
		pollInterval:       cfg.Worker.Poll(),
		errorRetryInterval: cfg.Worker.ErrorRetry(),
		heartbeat:          NewHeartbeatMonitor(store, workerLogger, cfg.Worker.Heartbeat(), cfg.Worker.HeartbeatExpiry()),
	}
}

// Start begins background processing.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// LastError returns the most recent loop-level error, if any.
func (w *Worker) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastErr
}

func (w *Worker) setLastError(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

// RunOnce claims and processes at most one task. It returns true when a
// task was claimed; a non-nil error alongside true means the task failed
// and its FAILURE was persisted. Exposed for tests; Start uses the same
// path in a loop.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if err := w.heartbeat.ReclaimStale(ctx, w.logger); err != nil {
		w.logger.Warn("reclaim stale tasks failed", logging.Error(err))
	}

	task, err := w.store.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	return true, w.processTask(ctx, task)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("worker started",
		logging.Duration("poll_interval", w.pollInterval),
		logging.String(logging.FieldEventType, "worker_started"),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stopped"))
			return
		default:
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.setLastError(err)
			// Task failures are logged where they are persisted; only a
			// claim that never produced a task needs a loop-level record.
			if !processed {
				w.logger.Error("failed to claim next task",
					logging.Error(err),
					logging.String(logging.FieldEventType, "claim_failed"),
				)
			}
			w.sleep(ctx, w.errorRetryInterval)
			continue
		}
		if !processed {
			w.sleep(ctx, w.pollInterval)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (w *Worker) processTask(ctx context.Context, task *tasks.Task) error {
	runCtx := services.WithRequestID(services.WithTaskID(ctx, task.ID), uuid.NewString())
	taskCtx, cancelHeartbeat := context.WithCancel(runCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go w.heartbeat.StartLoop(taskCtx, &hbWG, task.ID)
	defer func() {
		cancelHeartbeat()
		hbWG.Wait()
	}()

	logger := logging.WithContext(taskCtx, w.logger)
	logger.Info("task claimed",
		logging.Int("documents", len(task.DocumentIDs)),
		logging.String(logging.FieldEventType, "task_claimed"),
	)

	def, err := w.resolveWorkflow(taskCtx, task)
	if err == nil {
		err = w.executor.Execute(taskCtx, task, def)
	}
	if err != nil {
		w.failTask(taskCtx, logger, task, err)
		return err
	}
	logger.Info("task complete",
		logging.String(logging.FieldEventType, "task_complete"),
	)
	return nil
}

func (w *Worker) resolveWorkflow(ctx context.Context, task *tasks.Task) (*workflow.Definition, error) {
	project, err := w.store.ProjectByID(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "resolve workflow",
			fmt.Sprintf("project %s not found", task.ProjectID), nil)
	}
	cfg, err := w.store.WorkflowConfigByID(ctx, project.WorkflowID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "resolve workflow",
			fmt.Sprintf("workflow config %s not found", project.WorkflowID), nil)
	}
	return workflow.ParseDefinition(cfg.WorkflowJSON)
}

func (w *Worker) failTask(ctx context.Context, logger *slog.Logger, task *tasks.Task, cause error) {
	// Failures outside a step (workflow resolution, config decode) have no
	// failed record yet; pin the rollup status directly.
	task.Status.Status = tasks.StatusFailure

	message := cause.Error()
	if err := w.store.FailTask(ctx, task.ID, task.Status, message); err != nil {
		logger.Error("failed to persist task failure", logging.Error(err))
	}
	logger.Error("task failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorKind, services.Kind(cause)),
		logging.Bool("retryable", services.Retryable(cause)),
		logging.String(logging.FieldEventType, "task_failed"),
	)
}
