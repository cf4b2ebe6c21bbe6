package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"extracto/internal/tasks"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage processing tasks",
	}

	taskCmd.AddCommand(newTaskAddCommand(ctx))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskShowCommand(ctx))
	taskCmd.AddCommand(newTaskRetryCommand(ctx))

	return taskCmd
}

func newTaskAddCommand(ctx *commandContext) *cobra.Command {
	var projectID string
	var documentIDs []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a new processing task",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID = strings.TrimSpace(projectID)
			if projectID == "" {
				return fmt.Errorf("--project is required")
			}
			return ctx.withStore(func(store *tasks.Store) error {
				runCtx := cmd.Context()
				project, err := store.ProjectByID(runCtx, projectID)
				if err != nil {
					return err
				}
				if project == nil {
					return fmt.Errorf("project %s not found", projectID)
				}

				docs := documentIDs
				if len(docs) == 0 {
					projectDocs, err := store.DocumentsByProject(runCtx, projectID)
					if err != nil {
						return err
					}
					for _, doc := range projectDocs {
						docs = append(docs, doc.ID)
					}
				}

				task, err := store.NewTask(runCtx, projectID, docs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued task %s with %d document(s)\n", task.ID, len(docs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project the task belongs to")
	cmd.Flags().StringSliceVar(&documentIDs, "doc", nil, "Document IDs to process (defaults to all project documents)")
	return cmd
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filters []tasks.Status
			for _, raw := range statusFilters {
				status, ok := tasks.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filters = append(filters, status)
			}
			return ctx.withStore(func(store *tasks.Store) error {
				items, err := store.ListTasks(cmd.Context(), filters...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No tasks found")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, task := range items {
					rows = append(rows, []string{
						task.ID,
						string(task.Status.Status),
						currentStepLabel(task),
						fmt.Sprintf("%d", len(task.DocumentIDs)),
						task.ModifiedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Status", "Step", "Docs", "Modified"}, rows, 3))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newTaskShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task details and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *tasks.Store) error {
				task, err := store.GetTask(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %s not found", args[0])
				}
				renderTask(cmd, task)
				return nil
			})
		},
	}
}

func newTaskRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Requeue a failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *tasks.Store) error {
				id := strings.TrimSpace(args[0])
				retried, err := store.RetryTask(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !retried {
					fmt.Fprintf(out, "Task %s is not in a failed state; nothing to retry\n", id)
					return nil
				}
				fmt.Fprintf(out, "Task %s requeued\n", id)
				return nil
			})
		},
	}
}

func renderTask(cmd *cobra.Command, task *tasks.Task) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Task "+task.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", string(task.Status.Status),
		statusColor(task.Status.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Project", task.ProjectID, "", colorize))
	fmt.Fprintln(out, renderStatusLine("Documents", strings.Join(task.DocumentIDs, ", "), "", colorize))
	fmt.Fprintln(out, renderStatusLine("Created", task.CreatedAt.Local().Format(time.RFC3339), "", colorize))
	fmt.Fprintln(out, renderStatusLine("Modified", task.ModifiedAt.Local().Format(time.RFC3339), "", colorize))

	if len(task.Status.Metadata) > 0 {
		rows := make([][]string, 0, len(task.Status.Metadata))
		for _, record := range task.Status.Metadata {
			started := "-"
			if !record.StartedAt.IsZero() {
				started = record.StartedAt.Local().Format("15:04:05")
			}
			rows = append(rows, []string{
				string(record.Method),
				string(record.Status),
				started,
				formatStepTime(record.CompletedAt),
				record.Error,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Step", "Status", "Started", "Completed", "Error"}, rows))
	}

	if len(task.AIResult) > 0 {
		fmt.Fprintln(out, "Extracted data:")
		fmt.Fprintln(out, indentJSON(task.AIResult))
	}
	renderSummaries(out, task.Output)
}

// renderSummaries prints each summary level from the task output with a
// human readable heading.
func renderSummaries(out io.Writer, output json.RawMessage) {
	if len(output) == 0 {
		return
	}
	var payload struct {
		Summary map[string]string `json:"summary"`
		Error   string            `json:"error"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		fmt.Fprintln(out, "Output:")
		fmt.Fprintln(out, indentJSON(output))
		return
	}
	if payload.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", payload.Error)
		return
	}
	if len(payload.Summary) == 0 {
		return
	}

	levels := make([]string, 0, len(payload.Summary))
	for level := range payload.Summary {
		levels = append(levels, level)
	}
	sort.Strings(levels)

	titler := cases.Title(language.English)
	for _, level := range levels {
		fmt.Fprintf(out, "%s summary:\n", titler.String(level))
		fmt.Fprintf(out, "%s%s\n", statusIndent, payload.Summary[level])
	}
}

func currentStepLabel(task *tasks.Task) string {
	if len(task.Status.Metadata) == 0 {
		return "-"
	}
	last := task.Status.Metadata[len(task.Status.Metadata)-1]
	return string(last.Method)
}

func formatStepTime(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.Local().Format("15:04:05")
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, statusIndent, "  "); err != nil {
		return statusIndent + string(raw)
	}
	return statusIndent + buf.String()
}
