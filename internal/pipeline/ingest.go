package pipeline

import (
	"context"
	"fmt"

	"log/slog"

	"extracto/internal/logging"
	"extracto/internal/services"
	"extracto/internal/services/objectstore"
	"extracto/internal/tasks"
)

// Catalog is the document lookup the ingest step depends on.
type Catalog interface {
	DocumentsByIDs(ctx context.Context, ids []string) ([]*tasks.Document, error)
}

// Ingestor resolves a task's document IDs to readable storage handles.
type Ingestor struct {
	catalog Catalog
	objects *objectstore.Router
	logger  *slog.Logger
}

// NewIngestor constructs the ingest step.
func NewIngestor(catalog Catalog, objects *objectstore.Router, logger *slog.Logger) *Ingestor {
	return &Ingestor{catalog: catalog, objects: objects, logger: logging.NewComponentLogger(logger, "ingest")}
}

// Run resolves every document ID on the task and verifies its bytes are
// reachable. A task with no documents, an unresolvable ID, or a document
// without a usable storage location fails the step with a not-found error.
func (i *Ingestor) Run(ctx context.Context, task *tasks.Task, pc *Context, reporter StepReporter) error {
	return runStep(ctx, reporter, tasks.StepIngesting, func() error {
		logger := logging.WithContext(ctx, i.logger)

		docs, err := i.catalog.DocumentsByIDs(ctx, task.DocumentIDs)
		if err != nil {
			return services.Wrap(services.ErrTransient, "ingesting", "resolve documents", "", err)
		}
		if len(docs) == 0 {
			return services.Wrap(services.ErrNotFound, "ingesting", "resolve documents",
				"no documents found for ingestion", nil)
		}
		if len(docs) != len(task.DocumentIDs) {
			resolved := make(map[string]struct{}, len(docs))
			for _, doc := range docs {
				resolved[doc.ID] = struct{}{}
			}
			for _, id := range task.DocumentIDs {
				if _, ok := resolved[id]; !ok {
					return services.Wrap(services.ErrNotFound, "ingesting", "resolve documents",
						fmt.Sprintf("document %s not found", id), nil)
				}
			}
		}

		handles := make([]Handle, 0, len(docs))
		for _, doc := range docs {
			loc, err := objectstore.ParseLocation(doc.StorageJSON)
			if err != nil {
				return services.Wrap(services.ErrNotFound, "ingesting", "resolve storage",
					fmt.Sprintf("document %s", doc.ID), err)
			}
			if _, err := i.objects.Stat(ctx, loc); err != nil {
				return err
			}
			handles = append(handles, Handle{Document: doc, Location: loc})
		}

		pc.Handles = handles
		logger.Info("documents resolved", logging.Int("count", len(handles)))
		return nil
	})
}
