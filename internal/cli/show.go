package cli

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/parley/internal/chat"
)

var showTail int

var showCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Print a chat transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore(cfg)
		g, err := store.Load(args[0])
		if err != nil {
			return err
		}

		p := colorProfile()
		header := fmt.Sprintf("%s  moderator=%s", g.ChatID, g.ModeratorAgentID)
		if g.Archived {
			header += "  [archived]"
		} else if g.ReadOnly {
			header += "  [read-only]"
		}
		fmt.Println(bold(p, header))
		for _, part := range g.Participants {
			fmt.Printf("  %s (%s)\n", part.Name, part.AgentID)
		}
		fmt.Println()

		entries := g.Transcript
		if showTail > 0 && len(entries) > showTail {
			fmt.Println(faint(p, fmt.Sprintf("... %d earlier entries", len(entries)-showTail)))
			entries = entries[len(entries)-showTail:]
		}
		width := terminalWidth()
		for _, e := range entries {
			fmt.Println(renderEntry(p, e, width))
		}
		return nil
	},
}

// renderEntry formats one transcript entry with a colored author line and
// wrapped, indented body.
func renderEntry(p termenv.Profile, e chat.Entry, width int) string {
	color := "245"
	switch e.Role {
	case chat.EntryUser:
		color = "81"
	case chat.EntryModerator:
		color = "205"
	case chat.EntryParticipant:
		color = "114"
	}
	author := colored(p, color, e.Author)
	if e.IsError {
		author += " " + colored(p, "196", "(error)")
	}
	stamp := faint(p, e.Timestamp.Local().Format("15:04:05"))

	body := wordwrap.String(e.Text, width-2)
	var b strings.Builder
	b.WriteString(author + "  " + stamp + "\n")
	for _, line := range strings.Split(body, "\n") {
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}

func init() {
	showCmd.Flags().IntVarP(&showTail, "tail", "n", 0, "show only the last N entries")
	rootCmd.AddCommand(showCmd)
}
