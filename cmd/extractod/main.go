package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"extracto/internal/config"
	"extracto/internal/daemon"
	"extracto/internal/logging"
	"extracto/internal/services/llm"
	"extracto/internal/services/objectstore"
	"extracto/internal/tasks"
	"extracto/internal/worker"
	"extracto/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(os.Getenv("EXTRACTO_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := tasks.Open(cfg)
	if err != nil {
		logger.Error("open task store", logging.Error(err))
		os.Exit(1)
	}

	objects, err := objectstore.NewRouter(cfg.Storage)
	if err != nil {
		logger.Error("init object storage", logging.Error(err))
		_ = store.Close()
		os.Exit(1)
	}

	executor := workflow.NewExecutor(store, objects, llm.NewClient(cfg.LLM), logger)
	w := worker.New(cfg, store, executor, logger)

	d, err := daemon.New(cfg, store, logger, w)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("extractod shutting down")
}
