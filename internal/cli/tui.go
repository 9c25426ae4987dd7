package cli

import (
	"github.com/spf13/cobra"

	"github.com/andy/timebill/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive timer",
	Long:  `Launch the terminal timer: pick a project, start and stop the timer, and watch recent entries.`,
	RunE:  launchTUI,
}

func launchTUI(cmd *cobra.Command, args []string) error {
	return tui.Run(appInstance)
}
