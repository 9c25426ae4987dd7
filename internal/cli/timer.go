package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Manage the running timer",
	Long:  `Start, stop, or check the status of the running timer. Only one timer runs at a time.`,
}

var timerStartCmd = &cobra.Command{
	Use:   "start <project_id_or_name> [description...]",
	Short: "Start a timer on a project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()

		project, err := appInstance.Catalog.ResolveProject(ctx, owner, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve project: %w", err)
		}

		description := strings.Join(args[1:], " ")

		entry, err := appInstance.Timer.Start(ctx, owner, project.ID, description)
		if err != nil {
			return fmt.Errorf("failed to start timer: %w", err)
		}

		fmt.Printf("✓ Timer started for %s\n", project.Name)
		fmt.Printf("  Entry: %s\n", shortID(entry.ID))
		if entry.Description != "" {
			fmt.Printf("  Description: %s\n", entry.Description)
		}

		return nil
	},
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		entry, err := appInstance.Timer.Stop(ctx, appInstance.Owner())
		if err != nil {
			return fmt.Errorf("failed to stop timer: %w", err)
		}

		names, err := projectNames(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Timer stopped\n")
		fmt.Printf("  Project: %s\n", names.name(entry.ProjectID))
		fmt.Printf("  Duration: %s\n", formatDuration(entry.ComputedDuration()))
		if entry.Description != "" {
			fmt.Printf("  Description: %s\n", entry.Description)
		}

		return nil
	},
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		running, err := appInstance.Timer.Running(ctx, appInstance.Owner())
		if err != nil {
			return fmt.Errorf("failed to get timer status: %w", err)
		}
		if running == nil {
			fmt.Println("No timer running")
			return nil
		}

		names, err := projectNames(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Timer running\n")
		fmt.Printf("  Project: %s\n", names.name(running.Entry.ProjectID))
		fmt.Printf("  Started: %s\n", formatLocal(running.Entry.StartTime))
		fmt.Printf("  Elapsed: %s\n", formatDuration(running.ElapsedSeconds))
		if running.Entry.Description != "" {
			fmt.Printf("  Description: %s\n", running.Entry.Description)
		}

		return nil
	},
}

func init() {
	timerCmd.AddCommand(timerStartCmd)
	timerCmd.AddCommand(timerStopCmd)
	timerCmd.AddCommand(timerStatusCmd)
}
