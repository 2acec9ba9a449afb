package cli

import (
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/parley/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch chat activity in a live terminal view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()
		return tui.Run(a.router, a.bus)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
