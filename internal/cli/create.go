package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/parley/internal/chat"
)

var (
	createModerator    string
	createParticipants []string
)

var createCmd = &cobra.Command{
	Use:   "create <chat-id>",
	Short: "Create a new group chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore(cfg)
		registry, err := openRegistry(cfg)
		if err != nil {
			return err
		}

		chatID := args[0]
		if _, err := store.Load(chatID); err == nil {
			return fmt.Errorf("chat %q already exists", chatID)
		}
		if _, ok := registry.Get(createModerator); !ok {
			return fmt.Errorf("unknown moderator agent %q (known: %s)",
				createModerator, strings.Join(registry.IDs(), ", "))
		}

		g, err := chat.New(chatID, createModerator)
		if err != nil {
			return err
		}
		for _, spec := range createParticipants {
			name, agentID, err := parseParticipant(spec)
			if err != nil {
				return err
			}
			if _, ok := registry.Get(agentID); !ok {
				return fmt.Errorf("unknown agent %q for participant %q", agentID, name)
			}
			if _, err := g.AddParticipant(name, agentID); err != nil {
				return err
			}
		}
		if err := store.Save(g); err != nil {
			return err
		}

		fmt.Printf("Created chat %s (moderator: %s, %d participants)\n",
			chatID, createModerator, len(g.Participants))
		return nil
	},
}

// parseParticipant splits a name=agent flag value.
func parseParticipant(spec string) (name, agentID string, err error) {
	name, agentID, ok := strings.Cut(spec, "=")
	if !ok || name == "" || agentID == "" {
		return "", "", fmt.Errorf("invalid participant %q (want name=agent)", spec)
	}
	return name, agentID, nil
}

func init() {
	createCmd.Flags().StringVarP(&createModerator, "moderator", "m", "claude", "agent profile for the moderator")
	createCmd.Flags().StringArrayVarP(&createParticipants, "participant", "p", nil, "participant as name=agent (repeatable)")
	rootCmd.AddCommand(createCmd)
}
