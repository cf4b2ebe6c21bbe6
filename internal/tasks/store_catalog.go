package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PutWorkflowConfig inserts or updates a workflow configuration. An empty ID
// is assigned a new one.
func (s *Store) PutWorkflowConfig(ctx context.Context, cfg *WorkflowConfig) error {
	if cfg == nil {
		return errors.New("workflow config is nil")
	}
	now := time.Now().UTC()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
		cfg.CreatedAt = now
	}
	cfg.ModifiedAt = now

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO workflow_configs (id, name, workflow_json, description, created_at, modified_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            workflow_json = excluded.workflow_json,
            description = excluded.description,
            modified_at = excluded.modified_at`,
		cfg.ID,
		cfg.Name,
		cfg.WorkflowJSON,
		nullableString(cfg.Description),
		timestampOrNow(cfg.CreatedAt, now),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put workflow config: %w", err)
	}
	return nil
}

// WorkflowConfigByID fetches a workflow configuration. Missing rows return
// nil without an error.
func (s *Store) WorkflowConfigByID(ctx context.Context, id string) (*WorkflowConfig, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, workflow_json, description, created_at, modified_at
        FROM workflow_configs WHERE id = ?`,
		id,
	)

	var (
		cfg         WorkflowConfig
		description sql.NullString
		createdRaw  sql.NullString
		modifiedRaw sql.NullString
	)
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.WorkflowJSON, &description, &createdRaw, &modifiedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow config: %w", err)
	}
	cfg.Description = description.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		cfg.CreatedAt = created
	}
	if modified, err := parseTimeString(modifiedRaw.String); err == nil {
		cfg.ModifiedAt = modified
	}
	return &cfg, nil
}

// ListWorkflowConfigs returns all workflow configurations ordered by name.
func (s *Store) ListWorkflowConfigs(ctx context.Context) ([]*WorkflowConfig, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, workflow_json, description, created_at, modified_at
        FROM workflow_configs ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflow configs: %w", err)
	}
	defer rows.Close()

	var configs []*WorkflowConfig
	for rows.Next() {
		var (
			cfg         WorkflowConfig
			description sql.NullString
			createdRaw  sql.NullString
			modifiedRaw sql.NullString
		)
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.WorkflowJSON, &description, &createdRaw, &modifiedRaw); err != nil {
			return nil, err
		}
		cfg.Description = description.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			cfg.CreatedAt = created
		}
		if modified, err := parseTimeString(modifiedRaw.String); err == nil {
			cfg.ModifiedAt = modified
		}
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// PutProject inserts or updates a project. An empty ID is assigned a new
// one.
func (s *Store) PutProject(ctx context.Context, project *Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	now := time.Now().UTC()
	if project.ID == "" {
		project.ID = uuid.NewString()
		project.CreatedAt = now
	}
	project.ModifiedAt = now

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO projects (id, name, workflow_id, description, created_at, modified_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            workflow_id = excluded.workflow_id,
            description = excluded.description,
            modified_at = excluded.modified_at`,
		project.ID,
		project.Name,
		project.WorkflowID,
		nullableString(project.Description),
		timestampOrNow(project.CreatedAt, now),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put project: %w", err)
	}
	return nil
}

// ProjectByID fetches a project. Missing rows return nil without an error.
func (s *Store) ProjectByID(ctx context.Context, id string) (*Project, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, workflow_id, description, created_at, modified_at
        FROM projects WHERE id = ?`,
		id,
	)

	var (
		project     Project
		description sql.NullString
		createdRaw  sql.NullString
		modifiedRaw sql.NullString
	)
	err := row.Scan(&project.ID, &project.Name, &project.WorkflowID, &description, &createdRaw, &modifiedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	project.Description = description.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		project.CreatedAt = created
	}
	if modified, err := parseTimeString(modifiedRaw.String); err == nil {
		project.ModifiedAt = modified
	}
	return &project, nil
}

// PutDocument inserts or updates a document. An empty ID is assigned a new
// one.
func (s *Store) PutDocument(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
		doc.CreatedAt = now
	}
	doc.ModifiedAt = now

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO documents (id, project_id, name, type, folder, storage_json, created_at, modified_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            project_id = excluded.project_id,
            name = excluded.name,
            type = excluded.type,
            folder = excluded.folder,
            storage_json = excluded.storage_json,
            modified_at = excluded.modified_at`,
		doc.ID,
		doc.ProjectID,
		doc.Name,
		nullableString(doc.Type),
		nullableString(doc.Folder),
		nullableString(doc.StorageJSON),
		timestampOrNow(doc.CreatedAt, now),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// DocumentByID fetches a document. Missing rows return nil without an
// error.
func (s *Store) DocumentByID(ctx context.Context, id string) (*Document, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// DocumentsByIDs fetches the documents for the given identifiers, preserving
// the requested order. Identifiers with no matching row are simply absent
// from the result.
func (s *Store) DocumentsByIDs(ctx context.Context, ids []string) ([]*Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)

	placeholders := makePlaceholders(len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			ordered = append(ordered, doc)
		}
	}
	return ordered, nil
}

// DocumentsByProject lists a project's documents ordered by creation time.
func (s *Store) DocumentsByProject(ctx context.Context, projectID string) ([]*Document, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = ? ORDER BY created_at`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query project documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const documentColumns = "id, project_id, name, type, folder, storage_json, created_at, modified_at"

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		doc         Document
		docType     sql.NullString
		folder      sql.NullString
		storageJSON sql.NullString
		createdRaw  sql.NullString
		modifiedRaw sql.NullString
	)
	if err := scanner.Scan(
		&doc.ID,
		&doc.ProjectID,
		&doc.Name,
		&docType,
		&folder,
		&storageJSON,
		&createdRaw,
		&modifiedRaw,
	); err != nil {
		return nil, err
	}
	doc.Type = docType.String
	doc.Folder = folder.String
	doc.StorageJSON = storageJSON.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		doc.CreatedAt = created
	}
	if modified, err := parseTimeString(modifiedRaw.String); err == nil {
		doc.ModifiedAt = modified
	}
	return &doc, nil
}

func timestampOrNow(value time.Time, now time.Time) string {
	if value.IsZero() {
		return now.Format(time.RFC3339Nano)
	}
	return value.UTC().Format(time.RFC3339Nano)
}
