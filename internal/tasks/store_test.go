package tasks_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"extracto/internal/tasks"
	"extracto/internal/testsupport"
)

func seedProject(t *testing.T, store *tasks.Store) *tasks.Project {
	t.Helper()
	workflow := testsupport.SeedWorkflow(t, store, `{"steps":[]}`)
	return testsupport.SeedProject(t, store, workflow.ID)
}

func TestNewTaskStartsNotStarted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)

	ctx := context.Background()
	task, err := store.NewTask(ctx, project.ID, []string{"doc-1", "doc-2"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected task ID to be assigned")
	}
	if task.Status.Status != tasks.StatusNotStarted {
		t.Fatalf("unexpected status %s", task.Status.Status)
	}
	if len(task.DocumentIDs) != 2 || task.DocumentIDs[0] != "doc-1" {
		t.Fatalf("unexpected document ids %v", task.DocumentIDs)
	}

	missing, err := store.GetTask(ctx, "no-such-task")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing task, got %+v", missing)
	}
}

func TestClaimNextPrefersRecentlyModified(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)
	ctx := context.Background()

	older, err := store.NewTask(ctx, project.ID, []string{"a"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	newer, err := store.NewTask(ctx, project.ID, []string{"b"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed == nil || claimed.ID != newer.ID {
		t.Fatalf("expected most recently modified task %s, got %+v", newer.ID, claimed)
	}
	if claimed.Status.Status != tasks.StatusInProgress {
		t.Fatalf("claimed task should be IN_PROGRESS, got %s", claimed.Status.Status)
	}
	if claimed.LastHeartbeat == nil {
		t.Fatal("claimed task should carry a heartbeat")
	}

	second, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if second == nil || second.ID != older.ID {
		t.Fatalf("expected older task next, got %+v", second)
	}

	third, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if third != nil {
		t.Fatalf("expected nil when nothing claimable, got %+v", third)
	}
}

func TestClaimNextIsExclusiveUnderConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)
	ctx := context.Background()

	if _, err := store.NewTask(ctx, project.ID, []string{"only"}); err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	const claimers = 8
	var wg sync.WaitGroup
	results := make(chan *tasks.Task, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimNext(ctx)
			if err != nil {
				t.Errorf("ClaimNext failed: %v", err)
				return
			}
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)

	var won int
	for claimed := range results {
		if claimed != nil {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
}

func TestCompleteTaskPersistsResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)
	ctx := context.Background()

	task, err := store.NewTask(ctx, project.ID, []string{"doc"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim failed: %v %v", claimed, err)
	}

	now := time.Now()
	if err := claimed.Status.StartStep(tasks.StepIngesting, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	claimed.Status.CompleteStep(tasks.StepIngesting, now)
	claimed.Status.Finalize()

	aiResult := json.RawMessage(`{"title":"Report"}`)
	output := json.RawMessage(`{"summary":{"executive":"done"}}`)
	if err := store.CompleteTask(ctx, task.ID, claimed.Status, aiResult, output); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	stored, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.Status.Status != tasks.StatusSuccess {
		t.Fatalf("unexpected status %s", stored.Status.Status)
	}
	if string(stored.AIResult) != string(aiResult) {
		t.Fatalf("unexpected ai_result %s", stored.AIResult)
	}
	if string(stored.Output) != string(output) {
		t.Fatalf("unexpected output %s", stored.Output)
	}
	if stored.LastHeartbeat != nil {
		t.Fatal("completion should release the heartbeat lease")
	}
}

func TestFailTaskWritesErrorOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)
	ctx := context.Background()

	task, err := store.NewTask(ctx, project.ID, []string{"doc"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim failed: %v %v", claimed, err)
	}
	now := time.Now()
	if err := claimed.Status.StartStep(tasks.StepIngesting, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	claimed.Status.FailStep(tasks.StepIngesting, "no documents found", now)

	if err := store.FailTask(ctx, task.ID, claimed.Status, "no documents found"); err != nil {
		t.Fatalf("FailTask failed: %v", err)
	}

	stored, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.Status.Status != tasks.StatusFailure {
		t.Fatalf("unexpected status %s", stored.Status.Status)
	}
	var output map[string]string
	if err := json.Unmarshal(stored.Output, &output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if output["error"] != "no documents found" {
		t.Fatalf("unexpected output %v", output)
	}
}

func TestRetryTaskRequeuesOnlyFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)
	ctx := context.Background()

	task, err := store.NewTask(ctx, project.ID, []string{"doc"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	// NOT_STARTED tasks are not retryable.
	retried, err := store.RetryTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("RetryTask failed: %v", err)
	}
	if retried {
		t.Fatal("retry should be a no-op for NOT_STARTED tasks")
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim failed: %v %v", claimed, err)
	}
	now := time.Now()
	if err := claimed.Status.StartStep(tasks.StepIngesting, now); err != nil {
		t.Fatalf("StartStep failed: %v", err)
	}
	claimed.Status.FailStep(tasks.StepIngesting, "boom", now)
	if err := store.FailTask(ctx, task.ID, claimed.Status, "boom"); err != nil {
		t.Fatalf("FailTask failed: %v", err)
	}

	retried, err = store.RetryTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("RetryTask failed: %v", err)
	}
	if !retried {
		t.Fatal("expected failed task to be retried")
	}

	stored, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.Status.Status != tasks.StatusNotStarted {
		t.Fatalf("unexpected status %s", stored.Status.Status)
	}
	if len(stored.Status.Metadata) != 0 {
		t.Fatalf("retry should reset step records, got %d", len(stored.Status.Metadata))
	}
	if stored.AIResult != nil || stored.Output != nil {
		t.Fatal("retry should clear prior results")
	}
}

func TestReclaimStaleReturnsExpiredTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)
	ctx := context.Background()

	task, err := store.NewTask(ctx, project.ID, []string{"doc"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim failed: %v %v", claimed, err)
	}

	// Heartbeat is fresh, nothing to reclaim.
	reclaimed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("expected no reclaims, got %d", reclaimed)
	}

	// A cutoff in the future expires the lease.
	reclaimed, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected one reclaim, got %d", reclaimed)
	}

	stored, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.Status.Status != tasks.StatusNotStarted {
		t.Fatalf("unexpected status %s", stored.Status.Status)
	}
	if stored.LastHeartbeat != nil {
		t.Fatal("reclaimed task should not carry a heartbeat")
	}
}

func TestHeartbeatOnlyTouchesInProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)
	ctx := context.Background()

	task, err := store.NewTask(ctx, project.ID, []string{"doc"})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	if err := store.Heartbeat(ctx, task.ID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	stored, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.LastHeartbeat != nil {
		t.Fatal("NOT_STARTED task should not receive heartbeats")
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim failed: %v %v", claimed, err)
	}
	before := *claimed.LastHeartbeat
	time.Sleep(5 * time.Millisecond)
	if err := store.Heartbeat(ctx, task.ID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	stored, err = store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.LastHeartbeat == nil || !stored.LastHeartbeat.After(before) {
		t.Fatal("heartbeat should advance the lease timestamp")
	}
}

func TestListTasksAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	project := seedProject(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.NewTask(ctx, project.ID, []string{"doc"}); err != nil {
			t.Fatalf("NewTask failed: %v", err)
		}
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	all, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}

	pending, err := store.ListTasks(ctx, tasks.StatusNotStarted)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", len(pending))
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.NotStarted != 2 || health.InProgress != 1 {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	workflow := testsupport.SeedWorkflow(t, store, `{"steps":[{"method":"INGESTING"}]}`)
	fetched, err := store.WorkflowConfigByID(ctx, workflow.ID)
	if err != nil {
		t.Fatalf("WorkflowConfigByID failed: %v", err)
	}
	if fetched == nil || fetched.WorkflowJSON != workflow.WorkflowJSON {
		t.Fatalf("unexpected workflow %+v", fetched)
	}

	project := testsupport.SeedProject(t, store, workflow.ID)
	gotProject, err := store.ProjectByID(ctx, project.ID)
	if err != nil {
		t.Fatalf("ProjectByID failed: %v", err)
	}
	if gotProject == nil || gotProject.WorkflowID != workflow.ID {
		t.Fatalf("unexpected project %+v", gotProject)
	}

	docA := testsupport.SeedDocument(t, store, project.ID, "a.txt", `{"storage_type":"file","absolute_path":"/tmp/a.txt"}`)
	docB := testsupport.SeedDocument(t, store, project.ID, "b.txt", `{"storage_type":"file","absolute_path":"/tmp/b.txt"}`)

	// Requested order is preserved regardless of insert order.
	docs, err := store.DocumentsByIDs(ctx, []string{docB.ID, docA.ID})
	if err != nil {
		t.Fatalf("DocumentsByIDs failed: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != docB.ID || docs[1].ID != docA.ID {
		t.Fatalf("unexpected order %v", docs)
	}

	// Missing IDs are absent, not errors.
	docs, err = store.DocumentsByIDs(ctx, []string{docA.ID, "missing"})
	if err != nil {
		t.Fatalf("DocumentsByIDs failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	missingProject, err := store.ProjectByID(ctx, "nope")
	if err != nil {
		t.Fatalf("ProjectByID failed: %v", err)
	}
	if missingProject != nil {
		t.Fatal("expected nil for missing project")
	}
}
