package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"extracto/internal/config"
	"extracto/internal/logging"
	"extracto/internal/pipeline"
	"extracto/internal/services"
	"extracto/internal/services/objectstore"
	"extracto/internal/tasks"
	"extracto/internal/testsupport"
)

type recordingReporter struct {
	events []string
}

func (r *recordingReporter) StartStep(_ context.Context, method tasks.StepMethod) error {
	r.events = append(r.events, "start:"+string(method))
	return nil
}

func (r *recordingReporter) CompleteStep(_ context.Context, method tasks.StepMethod) error {
	r.events = append(r.events, "complete:"+string(method))
	return nil
}

func (r *recordingReporter) FailStep(_ context.Context, method tasks.StepMethod, message string) error {
	r.events = append(r.events, "fail:"+string(method)+":"+message)
	return nil
}

func (r *recordingReporter) last() string {
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

func newRouter(t *testing.T) *objectstore.Router {
	t.Helper()
	router, err := objectstore.NewRouter(config.Storage{})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	return router
}

func seedTaskWithFiles(t *testing.T, store *tasks.Store, contents ...string) *tasks.Task {
	t.Helper()

	workflow := testsupport.SeedWorkflow(t, store, `{"steps":[]}`)
	project := testsupport.SeedProject(t, store, workflow.ID)

	ids := make([]string, 0, len(contents))
	for i, content := range contents {
		path := filepath.Join(t.TempDir(), "doc.txt")
		testsupport.WriteFile(t, path, []byte(content))
		doc := testsupport.SeedDocument(t, store, project.ID, "doc"+string(rune('a'+i))+".txt",
			testsupport.FileStorageJSON(t, path))
		ids = append(ids, doc.ID)
	}

	task, err := store.NewTask(context.Background(), project.ID, ids)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	return task
}

func TestIngestorResolvesDocuments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := seedTaskWithFiles(t, store, "first document", "second document")

	ingestor := pipeline.NewIngestor(store, newRouter(t), logging.NewNop())
	reporter := &recordingReporter{}
	pc := &pipeline.Context{}

	if err := ingestor.Run(context.Background(), task, pc, reporter); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if len(pc.Handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(pc.Handles))
	}
	if reporter.last() != "complete:INGESTING" {
		t.Fatalf("unexpected reporter trail %v", reporter.events)
	}
}

func TestIngestorEmptyDocumentListIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	workflow := testsupport.SeedWorkflow(t, store, `{"steps":[]}`)
	project := testsupport.SeedProject(t, store, workflow.ID)
	task, err := store.NewTask(context.Background(), project.ID, nil)
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	ingestor := pipeline.NewIngestor(store, newRouter(t), logging.NewNop())
	reporter := &recordingReporter{}

	err = ingestor.Run(context.Background(), task, &pipeline.Context{}, reporter)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
	if !strings.HasPrefix(reporter.last(), "fail:INGESTING") {
		t.Fatalf("expected failure record, got %v", reporter.events)
	}
}

func TestIngestorMissingDocumentIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := seedTaskWithFiles(t, store, "present document")
	task.DocumentIDs = append(task.DocumentIDs, "missing-id")

	ingestor := pipeline.NewIngestor(store, newRouter(t), logging.NewNop())
	err := ingestor.Run(context.Background(), task, &pipeline.Context{}, &recordingReporter{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestIngestorMissingBytesIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	workflow := testsupport.SeedWorkflow(t, store, `{"steps":[]}`)
	project := testsupport.SeedProject(t, store, workflow.ID)
	doc := testsupport.SeedDocument(t, store, project.ID, "gone.txt",
		testsupport.FileStorageJSON(t, filepath.Join(t.TempDir(), "gone.txt")))
	task, err := store.NewTask(context.Background(), project.ID, []string{doc.ID})
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	ingestor := pipeline.NewIngestor(store, newRouter(t), logging.NewNop())
	err = ingestor.Run(context.Background(), task, &pipeline.Context{}, &recordingReporter{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestParserJoinsDocumentTexts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := seedTaskWithFiles(t, store, "alpha text", "beta text")

	router := newRouter(t)
	pc := &pipeline.Context{}
	if err := pipeline.NewIngestor(store, router, logging.NewNop()).
		Run(context.Background(), task, pc, &recordingReporter{}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	reporter := &recordingReporter{}
	if err := pipeline.NewParser(router, logging.NewNop()).
		Run(context.Background(), task, pc, reporter); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if pc.Text != "alpha text\n\nbeta text" {
		t.Fatalf("unexpected joined text %q", pc.Text)
	}
	if reporter.last() != "complete:PARSING" {
		t.Fatalf("unexpected reporter trail %v", reporter.events)
	}
}

func TestParserFailsWholeStepOnOneBadDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := seedTaskWithFiles(t, store, "good document")

	pc := &pipeline.Context{}
	router := newRouter(t)
	if err := pipeline.NewIngestor(store, router, logging.NewNop()).
		Run(context.Background(), task, pc, &recordingReporter{}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	pc.Handles = append(pc.Handles, pipeline.Handle{
		Document: &tasks.Document{ID: "broken", Name: "broken.txt"},
		Location: objectstore.Location{Kind: objectstore.KindFile, Path: filepath.Join(t.TempDir(), "broken.txt")},
	})

	reporter := &recordingReporter{}
	err := pipeline.NewParser(router, logging.NewNop()).Run(context.Background(), task, pc, reporter)
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse marker, got %v", err)
	}
	if pc.Text != "" {
		t.Fatalf("expected no partial text, got %q", pc.Text)
	}
	if !strings.HasPrefix(reporter.last(), "fail:PARSING") {
		t.Fatalf("expected failure record, got %v", reporter.events)
	}
}

func TestExtractorRequiresSchema(t *testing.T) {
	extractor := pipeline.NewExtractor(testsupport.NewScriptedLLM(), logging.NewNop())
	reporter := &recordingReporter{}

	err := extractor.Run(context.Background(), &tasks.Task{}, &pipeline.Context{Text: "text"},
		pipeline.ExtractConfig{}, reporter)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
	if !strings.HasPrefix(reporter.last(), "fail:EXTRACTING") {
		t.Fatalf("expected failure record, got %v", reporter.events)
	}
}

func TestExtractorDecodesModelJSON(t *testing.T) {
	stub := testsupport.NewScriptedLLM("```json\n{\"title\":\"Q3 Report\"}\n```")
	extractor := pipeline.NewExtractor(stub, logging.NewNop())
	pc := &pipeline.Context{Text: "document body"}

	err := extractor.Run(context.Background(), &tasks.Task{}, pc,
		pipeline.ExtractConfig{Schema: json.RawMessage(`{"title":"string"}`)}, &recordingReporter{})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	var parsed struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(pc.Extracted, &parsed); err != nil {
		t.Fatalf("decode extracted: %v", err)
	}
	if parsed.Title != "Q3 Report" {
		t.Fatalf("unexpected extraction %s", pc.Extracted)
	}

	req := stub.Requests[0]
	if req.Temperature != 0.1 || req.MaxTokens != 2000 || !req.ResponseJSON {
		t.Fatalf("unexpected request knobs %+v", req)
	}
	if !strings.Contains(req.Prompt, "Schema:") || !strings.Contains(req.Prompt, "document body") {
		t.Fatalf("unexpected prompt %q", req.Prompt)
	}
}

func TestExtractorKeepsRawResponseOnInvalidJSON(t *testing.T) {
	stub := testsupport.NewScriptedLLM("definitely not json")
	extractor := pipeline.NewExtractor(stub, logging.NewNop())
	pc := &pipeline.Context{Text: "document body"}
	reporter := &recordingReporter{}

	err := extractor.Run(context.Background(), &tasks.Task{}, pc,
		pipeline.ExtractConfig{Schema: json.RawMessage(`{"title":"string"}`)}, reporter)
	if err != nil {
		t.Fatalf("extract should degrade, not fail: %v", err)
	}

	var fallback map[string]string
	if err := json.Unmarshal(pc.Extracted, &fallback); err != nil {
		t.Fatalf("decode fallback: %v", err)
	}
	if fallback["raw_response"] != "definitely not json" || fallback["error"] != "invalid_json" {
		t.Fatalf("unexpected fallback %v", fallback)
	}
	if reporter.last() != "complete:EXTRACTING" {
		t.Fatalf("step should complete on degraded result, got %v", reporter.events)
	}
}

func TestExtractorLLMFailure(t *testing.T) {
	stub := testsupport.FailingLLM(errors.New("model offline"))
	extractor := pipeline.NewExtractor(stub, logging.NewNop())
	reporter := &recordingReporter{}

	err := extractor.Run(context.Background(), &tasks.Task{}, &pipeline.Context{Text: "text"},
		pipeline.ExtractConfig{Schema: json.RawMessage(`{}`)}, reporter)
	if !errors.Is(err, services.ErrLLM) {
		t.Fatalf("expected llm marker, got %v", err)
	}
	if !strings.HasPrefix(reporter.last(), "fail:EXTRACTING") {
		t.Fatalf("expected failure record, got %v", reporter.events)
	}
}

func TestSummarizerDefaultLevels(t *testing.T) {
	stub := testsupport.NewScriptedLLM("executive summary text", "detailed summary text")
	summarizer := pipeline.NewSummarizer(stub, logging.NewNop())
	pc := &pipeline.Context{Text: "document body"}

	err := summarizer.Run(context.Background(), &tasks.Task{}, pc,
		pipeline.SummarizeConfig{}, &recordingReporter{})
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if len(pc.Summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %v", pc.Summaries)
	}
	if pc.Summaries["executive"] != "executive summary text" {
		t.Fatalf("unexpected executive summary %q", pc.Summaries["executive"])
	}
	if pc.Summaries["detailed"] != "detailed summary text" {
		t.Fatalf("unexpected detailed summary %q", pc.Summaries["detailed"])
	}

	req := stub.Requests[0]
	if req.Temperature != 0.3 || req.MaxTokens != 500 {
		t.Fatalf("unexpected request knobs %+v", req)
	}
	if !strings.Contains(req.Prompt, "max 300 words") {
		t.Fatalf("prompt missing word limit: %q", req.Prompt)
	}
}

func TestSummarizerCustomLevels(t *testing.T) {
	stub := testsupport.NewScriptedLLM("only summary")
	summarizer := pipeline.NewSummarizer(stub, logging.NewNop())
	pc := &pipeline.Context{Text: "document body"}

	err := summarizer.Run(context.Background(), &tasks.Task{}, pc,
		pipeline.SummarizeConfig{Levels: []string{"Technical"}}, &recordingReporter{})
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if pc.Summaries["technical"] != "only summary" {
		t.Fatalf("unexpected summaries %v", pc.Summaries)
	}
	if stub.RequestCount() != 1 {
		t.Fatalf("expected one request, got %d", stub.RequestCount())
	}
}

func TestSummarizerLLMFailureFailsStep(t *testing.T) {
	stub := testsupport.FailingLLM(errors.New("model offline"))
	summarizer := pipeline.NewSummarizer(stub, logging.NewNop())
	reporter := &recordingReporter{}

	err := summarizer.Run(context.Background(), &tasks.Task{}, &pipeline.Context{Text: "text"},
		pipeline.SummarizeConfig{}, reporter)
	if !errors.Is(err, services.ErrLLM) {
		t.Fatalf("expected llm marker, got %v", err)
	}
	if !strings.HasPrefix(reporter.last(), "fail:SUMMARIZING") {
		t.Fatalf("expected failure record, got %v", reporter.events)
	}
}
