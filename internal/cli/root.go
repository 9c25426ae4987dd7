package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/timebill/internal/app"
)

var (
	appInstance *app.App
	configPath  string
)

var rootCmd = &cobra.Command{
	Use:   "timebill",
	Short: "Time tracking and invoicing for freelancers",
	Long: `Timebill tracks billable time against projects and turns unbilled time
into numbered client invoices.

Running timebill without arguments launches the interactive timer.
Use subcommands for CLI operations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Help and completion must not open the database, which may prompt
		if appInstance != nil || skipInit(cmd) {
			return nil
		}
		a, err := app.New(context.Background(), configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		appInstance = a
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return launchTUI(cmd, args)
	},
}

// Execute runs the root command and closes the app it opened
func Execute() error {
	defer func() {
		if appInstance != nil {
			appInstance.Close()
		}
	}()
	return rootCmd.Execute()
}

// SetApp sets the app instance for commands to use. Commands skip their own
// initialization when one is set.
func SetApp(a *app.App) {
	appInstance = a
}

func skipInit(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion":
			return true
		}
	}
	return false
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/timebill/config.yaml)")

	rootCmd.AddCommand(timerCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(invoicesCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
}
