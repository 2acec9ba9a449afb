package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List known agent profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		p := colorProfile()
		for _, id := range registry.IDs() {
			profile, _ := registry.Get(id)
			fmt.Printf("%s  %s %s  (%s)\n",
				bold(p, id), profile.Command, strings.Join(profile.Args, " "), profile.Format)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
