package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <chat-id> <name> <agent>",
	Short: "Add a participant to a chat",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore(cfg)
		registry, err := openRegistry(cfg)
		if err != nil {
			return err
		}

		chatID, name, agentID := args[0], args[1], args[2]
		g, err := store.Load(chatID)
		if err != nil {
			return err
		}
		if g.IsReadOnly() {
			return fmt.Errorf("chat %q is read-only", chatID)
		}
		if _, ok := registry.Get(agentID); !ok {
			return fmt.Errorf("unknown agent %q (known: %s)",
				agentID, strings.Join(registry.IDs(), ", "))
		}
		if _, err := g.AddParticipant(name, agentID); err != nil {
			return err
		}
		if err := store.Save(g); err != nil {
			return err
		}

		fmt.Printf("Added %s (%s) to %s\n", name, agentID, chatID)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <chat-id> <name>",
	Short: "Remove a participant from a chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore(cfg)

		chatID, name := args[0], args[1]
		g, err := store.Load(chatID)
		if err != nil {
			return err
		}
		if g.IsReadOnly() {
			return fmt.Errorf("chat %q is read-only", chatID)
		}
		if !g.RemoveParticipant(name) {
			return fmt.Errorf("no participant %q in chat %q", name, chatID)
		}
		if err := store.Save(g); err != nil {
			return err
		}

		fmt.Printf("Removed %s from %s\n", name, chatID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
}
