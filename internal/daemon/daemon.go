package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"extracto/internal/config"
	"extracto/internal/logging"
	"extracto/internal/tasks"
	"extracto/internal/worker"
)

// Daemon coordinates the worker loop and enforces single-instance
// execution via a file lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *tasks.Store
	worker *worker.Worker

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Tasks        tasks.HealthSummary
	DBPath       string
	LockFilePath string
	LastError    string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *tasks.Store, logger *slog.Logger, w *worker.Worker) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || w == nil {
		return nil, errors.New("daemon requires config, store, logger, and worker")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "extractod.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		worker:   w,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the worker loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another extracto daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.worker.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start worker: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("extracto daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.worker.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("extracto daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports a snapshot of daemon state and task counts.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	status := Status{
		Running:      d.running.Load(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if err := d.worker.LastError(); err != nil {
		status.LastError = err.Error()
	}
	health, err := d.store.Health(ctx)
	if err != nil {
		return status, err
	}
	status.Tasks = health
	return status, nil
}
