package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "id, project_id, document_ids, status, status_json, ai_result, output, last_heartbeat, created_at, modified_at"

// NewTask inserts a NOT_STARTED task for a project over the given documents.
func (s *Store) NewTask(ctx context.Context, projectID string, documentIDs []string) (*Task, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	id := uuid.NewString()
	docsJSON, err := json.Marshal(documentIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal document ids: %w", err)
	}
	statusJSON, err := json.Marshal(NewStatusDocument())
	if err != nil {
		return nil, fmt.Errorf("marshal status document: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            id, project_id, document_ids, status, status_json,
            ai_result, output, last_heartbeat, created_at, modified_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		projectID,
		string(docsJSON),
		StatusNotStarted,
		string(statusJSON),
		nil,
		nil,
		nil,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask fetches a task by identifier. Missing tasks return nil without an
// error.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ClaimNext atomically claims the most recently modified NOT_STARTED task.
// The conditional update serializes concurrent claimers on the write lock,
// so a task is handed to at most one worker. Returns nil when no claimable
// task exists.
func (s *Store) ClaimNext(ctx context.Context) (*Task, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		task    *Task
		scanErr error
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE tasks
            SET status = ?,
                status_json = json_set(status_json, '$.status', ?),
                last_heartbeat = ?,
                modified_at = ?
            WHERE id = (
                SELECT id FROM tasks
                WHERE status = ?
                ORDER BY modified_at DESC
                LIMIT 1
            ) AND status = ?
            RETURNING `+taskColumns,
			StatusInProgress,
			StatusInProgress,
			now,
			now,
			StatusNotStarted,
			StatusNotStarted,
		)
		task, scanErr = scanTask(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// UpdateStatus persists a task's status document and mirrors its rollup
// status into the status column.
func (s *Store) UpdateStatus(ctx context.Context, id string, doc StatusDocument) error {
	statusJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal status document: %w", err)
	}
	_, err = s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, status_json = ?, modified_at = ? WHERE id = ?`,
		doc.Status,
		string(statusJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// CompleteTask records a finished run: the final status document plus the
// extraction result and workflow output, and releases the heartbeat lease.
func (s *Store) CompleteTask(ctx context.Context, id string, doc StatusDocument, aiResult, output json.RawMessage) error {
	statusJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal status document: %w", err)
	}
	_, err = s.execWithRetry(
		ctx,
		`UPDATE tasks
        SET status = ?, status_json = ?, ai_result = ?, output = ?,
            last_heartbeat = NULL, modified_at = ?
        WHERE id = ?`,
		doc.Status,
		string(statusJSON),
		nullableString(string(aiResult)),
		nullableString(string(output)),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// FailTask records a failed run: the status document, an error output, and
// a released heartbeat lease. Partial results accumulated before the
// failure are not persisted.
func (s *Store) FailTask(ctx context.Context, id string, doc StatusDocument, message string) error {
	statusJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal status document: %w", err)
	}
	output, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return fmt.Errorf("marshal error output: %w", err)
	}
	_, err = s.execWithRetry(
		ctx,
		`UPDATE tasks
        SET status = ?, status_json = ?, output = ?, last_heartbeat = NULL, modified_at = ?
        WHERE id = ?`,
		doc.Status,
		string(statusJSON),
		string(output),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// Heartbeat refreshes the lease timestamp for an in-flight task.
func (s *Store) Heartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET last_heartbeat = ?, modified_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns in-flight tasks with expired heartbeats to
// NOT_STARTED so another worker can pick them up. The status document is
// reset along with the rollup status.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	statusJSON, err := json.Marshal(NewStatusDocument())
	if err != nil {
		return 0, fmt.Errorf("marshal status document: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
        SET status = ?, status_json = ?, last_heartbeat = NULL, modified_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusNotStarted,
		string(statusJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusInProgress,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryTask re-queues a failed task from scratch, clearing prior results.
func (s *Store) RetryTask(ctx context.Context, id string) (bool, error) {
	statusJSON, err := json.Marshal(NewStatusDocument())
	if err != nil {
		return false, fmt.Errorf("marshal status document: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
        SET status = ?, status_json = ?, ai_result = NULL, output = NULL,
            last_heartbeat = NULL, modified_at = ?
        WHERE id = ? AND status = ?`,
		StatusNotStarted,
		string(statusJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusFailure,
	)
	if err != nil {
		return false, fmt.Errorf("retry task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListTasks returns tasks filtered by status set, or all tasks when no
// status is provided, newest first.
func (s *Store) ListTasks(ctx context.Context, statuses ...Status) ([]*Task, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var list []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, task)
	}
	return list, rows.Err()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates task state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusNotStarted:
			health.NotStarted += count
		case StatusInProgress:
			health.InProgress += count
		case StatusSuccess:
			health.Succeeded += count
		case StatusFailure:
			health.Failed += count
		}
	}
	return health, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id               string
		projectID        string
		documentIDsRaw   string
		statusStr        string
		statusJSON       string
		aiResult         sql.NullString
		output           sql.NullString
		lastHeartbeatRaw sql.NullString
		createdRaw       sql.NullString
		modifiedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&documentIDsRaw,
		&statusStr,
		&statusJSON,
		&aiResult,
		&output,
		&lastHeartbeatRaw,
		&createdRaw,
		&modifiedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:        id,
		ProjectID: projectID,
	}

	if err := json.Unmarshal([]byte(documentIDsRaw), &task.DocumentIDs); err != nil {
		return nil, fmt.Errorf("decode document ids for task %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(statusJSON), &task.Status); err != nil {
		return nil, fmt.Errorf("decode status document for task %s: %w", id, err)
	}
	if task.Status.Status == "" {
		task.Status.Status = Status(statusStr)
	}
	if aiResult.Valid && aiResult.String != "" {
		task.AIResult = json.RawMessage(aiResult.String)
	}
	if output.Valid && output.String != "" {
		task.Output = json.RawMessage(output.String)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if modified, err := parseTimeString(modifiedRaw.String); err == nil {
		task.ModifiedAt = modified
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			task.LastHeartbeat = &heartbeat
		}
	}
	return task, nil
}
