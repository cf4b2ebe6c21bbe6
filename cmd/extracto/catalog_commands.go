package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"extracto/internal/config"
	"extracto/internal/services/objectstore"
	"extracto/internal/tasks"
	"extracto/internal/workflow"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflow configurations",
	}
	workflowCmd.AddCommand(newWorkflowAddCommand(ctx))
	workflowCmd.AddCommand(newWorkflowListCommand(ctx))
	return workflowCmd
}

func newWorkflowAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var description string
	var definitionPath string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a workflow configuration from a JSON definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if strings.TrimSpace(definitionPath) == "" {
				return fmt.Errorf("--definition is required")
			}
			path, err := config.ExpandPath(definitionPath)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read workflow definition: %w", err)
			}
			if _, err := workflow.ParseDefinition(string(raw)); err != nil {
				return err
			}
			return ctx.withStore(func(store *tasks.Store) error {
				cfg := &tasks.WorkflowConfig{
					Name:         name,
					WorkflowJSON: string(raw),
					Description:  strings.TrimSpace(description),
				}
				if err := store.PutWorkflowConfig(cmd.Context(), cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered workflow %s (%s)\n", cfg.Name, cfg.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name")
	cmd.Flags().StringVar(&description, "description", "", "Workflow description")
	cmd.Flags().StringVar(&definitionPath, "definition", "", "Path to the workflow definition JSON file")
	return cmd
}

func newWorkflowListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *tasks.Store) error {
				configs, err := store.ListWorkflowConfigs(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(configs) == 0 {
					fmt.Fprintln(out, "No workflows registered")
					return nil
				}
				rows := make([][]string, 0, len(configs))
				for _, cfg := range configs {
					rows = append(rows, []string{cfg.ID, cfg.Name, workflowStepSummary(cfg.WorkflowJSON), cfg.Description})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Steps", "Description"}, rows))
				return nil
			})
		},
	}
}

func workflowStepSummary(workflowJSON string) string {
	def, err := workflow.ParseDefinition(workflowJSON)
	if err != nil {
		return "invalid"
	}
	names := make([]string, 0, len(def.Steps))
	for _, step := range def.Steps {
		if step.IsEnabled() {
			names = append(names, strings.ToLower(step.Method))
		}
	}
	return strings.Join(names, ",")
}

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	projectCmd.AddCommand(newProjectAddCommand(ctx))
	return projectCmd
}

func newProjectAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var workflowID string
	var description string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a project bound to a workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			workflowID = strings.TrimSpace(workflowID)
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if workflowID == "" {
				return fmt.Errorf("--workflow is required")
			}
			return ctx.withStore(func(store *tasks.Store) error {
				runCtx := cmd.Context()
				cfg, err := store.WorkflowConfigByID(runCtx, workflowID)
				if err != nil {
					return err
				}
				if cfg == nil {
					return fmt.Errorf("workflow %s not found", workflowID)
				}
				project := &tasks.Project{
					Name:        name,
					WorkflowID:  workflowID,
					Description: strings.TrimSpace(description),
				}
				if err := store.PutProject(runCtx, project); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", project.Name, project.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project name")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "Workflow configuration ID")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	return cmd
}

func newDocumentCommand(ctx *commandContext) *cobra.Command {
	documentCmd := &cobra.Command{
		Use:   "document",
		Short: "Manage documents",
	}
	documentCmd.AddCommand(newDocumentAddCommand(ctx))
	documentCmd.AddCommand(newDocumentListCommand(ctx))
	return documentCmd
}

func newDocumentAddCommand(ctx *commandContext) *cobra.Command {
	var projectID string
	var bucket string
	var remotePath string
	var folder string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a document for processing",
		Long: "Register a local file, or a remote object when --bucket is set. " +
			"The document bytes are read at processing time, not at registration.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID = strings.TrimSpace(projectID)
			if projectID == "" {
				return fmt.Errorf("--project is required")
			}

			location := objectstore.Location{Kind: objectstore.KindFile}
			name := args[0]
			if strings.TrimSpace(bucket) != "" {
				location.Kind = objectstore.KindS3
				location.Bucket = strings.TrimSpace(bucket)
				location.Path = strings.TrimSpace(remotePath)
				if location.Path == "" {
					location.Path = name
				}
			} else {
				expanded, err := config.ExpandPath(args[0])
				if err != nil {
					return err
				}
				if _, err := os.Stat(expanded); err != nil {
					return fmt.Errorf("inspect document %q: %w", expanded, err)
				}
				location.Path = expanded
			}

			storageJSON, err := json.Marshal(location)
			if err != nil {
				return err
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
				doc := &tasks.Document{
					ProjectID:   projectID,
					Name:        documentName(location),
					Folder:      strings.TrimSpace(folder),
					StorageJSON: string(storageJSON),
				}
				if err := store.PutDocument(runCtx, doc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered document %s (%s)\n", doc.Name, doc.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project the document belongs to")
	cmd.Flags().StringVar(&bucket, "bucket", "", "Object store bucket holding the document")
	cmd.Flags().StringVar(&remotePath, "path", "", "Object key inside the bucket")
	cmd.Flags().StringVar(&folder, "folder", "", "Logical folder for the document")
	return cmd
}

func newDocumentListCommand(ctx *commandContext) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID = strings.TrimSpace(projectID)
			if projectID == "" {
				return fmt.Errorf("--project is required")
			}
			return ctx.withStore(func(store *tasks.Store) error {
				docs, err := store.DocumentsByProject(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(docs) == 0 {
					fmt.Fprintln(out, "No documents registered")
					return nil
				}
				rows := make([][]string, 0, len(docs))
				for _, doc := range docs {
					location, err := objectstore.ParseLocation(doc.StorageJSON)
					target := "invalid storage"
					if err == nil {
						target = locationLabel(location)
					}
					rows = append(rows, []string{doc.ID, doc.Name, doc.Folder, target})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Folder", "Location"}, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project to list documents for")
	return cmd
}

func documentName(location objectstore.Location) string {
	path := strings.TrimRight(location.Path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		path = path[idx+1:]
	}
	return path
}

func locationLabel(location objectstore.Location) string {
	if location.Kind == objectstore.KindFile {
		return location.Path
	}
	return fmt.Sprintf("%s://%s/%s", location.Kind, location.Bucket, strings.TrimPrefix(location.Path, "/"))
}
