package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"extracto/internal/tasks"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lockPath := filepath.Join(cfg.Paths.DataDir, "extractod.lock")
			running := daemonLockHeld(lockPath)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			daemonState := "stopped"
			daemonColor := ansiYellow
			if running {
				daemonState = "running"
				daemonColor = ansiGreen
			}
			fmt.Fprintln(out, renderStatusLine("State", daemonState, daemonColor, colorize))
			fmt.Fprintln(out, renderStatusLine("Database", cfg.DatabasePath(), "", colorize))
			fmt.Fprintln(out, renderStatusLine("Lock file", lockPath, "", colorize))

			return ctx.withStore(func(store *tasks.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				for _, line := range renderSectionHeader("Tasks", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Total", "Not Started", "In Progress", "Succeeded", "Failed"},
					[][]string{{
						fmt.Sprintf("%d", health.Total),
						fmt.Sprintf("%d", health.NotStarted),
						fmt.Sprintf("%d", health.InProgress),
						fmt.Sprintf("%d", health.Succeeded),
						fmt.Sprintf("%d", health.Failed),
					}},
					0, 1, 2, 3, 4))
				return nil
			})
		},
	}
}

// daemonLockHeld probes the daemon lock file without disturbing a holder. A
// successful trial lock is released immediately.
func daemonLockHeld(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	probe := flock.New(path)
	acquired, err := probe.TryLock()
	if err != nil {
		return false
	}
	if acquired {
		_ = probe.Unlock()
		return false
	}
	return true
}
