package cli

import (
	"fmt"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/parley/internal/util"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored chats",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore(cfg)
		summaries, err := store.List()
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No chats. Create one with: parley create <chat-id>")
			return nil
		}

		p := colorProfile()
		idWidth := len("CHAT")
		for _, s := range summaries {
			if w := runewidth.StringWidth(s.ChatID); w > idWidth {
				idWidth = w
			}
		}
		if max := terminalWidth() - 45; idWidth > max && max > 8 {
			idWidth = max
		}

		fmt.Printf("%s  %12s  %7s  %8s  %-16s  %s\n",
			bold(p, runewidth.FillRight("CHAT", idWidth)),
			"PARTICIPANTS", "ENTRIES", "SIZE", "UPDATED", "STATUS")
		for _, s := range summaries {
			status := "active"
			if s.Archived {
				status = faint(p, "archived")
			}
			id := runewidth.Truncate(s.ChatID, idWidth, "…")
			fmt.Printf("%s  %12d  %7d  %8s  %-16s  %s\n",
				runewidth.FillRight(id, idWidth),
				s.Participants, s.Entries,
				util.FormatBytes(s.FileSize),
				s.UpdatedAt.Local().Format("2006-01-02 15:04"),
				status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
