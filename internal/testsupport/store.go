package testsupport

import (
	"context"
	"testing"

	"extracto/internal/config"
	"extracto/internal/tasks"
)

// MustOpenStore opens the task store for a test config and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedWorkflow inserts a workflow configuration with the given JSON document
// and returns it.
func SeedWorkflow(t testing.TB, store *tasks.Store, workflowJSON string) *tasks.WorkflowConfig {
	t.Helper()

	cfg := &tasks.WorkflowConfig{
		Name:         "test workflow",
		WorkflowJSON: workflowJSON,
	}
	if err := store.PutWorkflowConfig(context.Background(), cfg); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	return cfg
}

// SeedProject inserts a project bound to the given workflow and returns it.
func SeedProject(t testing.TB, store *tasks.Store, workflowID string) *tasks.Project {
	t.Helper()

	project := &tasks.Project{
		Name:       "test project",
		WorkflowID: workflowID,
	}
	if err := store.PutProject(context.Background(), project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project
}

// SeedDocument inserts a document with the given storage location JSON and
// returns it.
func SeedDocument(t testing.TB, store *tasks.Store, projectID, name, storageJSON string) *tasks.Document {
	t.Helper()

	doc := &tasks.Document{
		ProjectID:   projectID,
		Name:        name,
		StorageJSON: storageJSON,
	}
	if err := store.PutDocument(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}
