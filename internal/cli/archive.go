package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <chat-id>",
	Short: "Archive a chat (permanently read-only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore(cfg)
		g, err := store.Load(args[0])
		if err != nil {
			return err
		}
		if g.Archived {
			fmt.Printf("Chat %s is already archived\n", g.ChatID)
			return nil
		}
		g.Archive()
		if err := store.Save(g); err != nil {
			return err
		}
		fmt.Printf("Archived %s\n", g.ChatID)
		return nil
	},
}

var readonlyCmd = &cobra.Command{
	Use:   "readonly <chat-id> <on|off>",
	Short: "Toggle a chat's read-only flag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var readOnly bool
		switch args[1] {
		case "on", "true":
			readOnly = true
		case "off", "false":
			readOnly = false
		default:
			return fmt.Errorf("invalid value %q (want on or off)", args[1])
		}

		store := openStore(cfg)
		g, err := store.Load(args[0])
		if err != nil {
			return err
		}
		if g.Archived {
			return fmt.Errorf("chat %q is archived", g.ChatID)
		}
		g.ReadOnly = readOnly
		if err := store.Save(g); err != nil {
			return err
		}
		state := "writable"
		if readOnly {
			state = "read-only"
		}
		fmt.Printf("Chat %s is now %s\n", g.ChatID, state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(readonlyCmd)
}
