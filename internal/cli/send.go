package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/parley/internal/events"
)

var sendTimeout time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> [message...]",
	Short: "Send a user message and run the round to completion",
	Long: `Send a user message to a chat. The moderator reads it, @-mentions the
participants who should respond, and synthesizes their answers. The command
waits until the round completes and prints the new transcript entries.

The message is taken from the arguments, or from stdin when piped:
  git diff | parley send review "review this:"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID := args[0]
		text := strings.Join(args[1:], " ")
		if !stdinIsTerminal() {
			piped, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			if len(piped) > 0 {
				if text != "" {
					text += "\n\n"
				}
				text += string(piped)
			}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("empty message")
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		snap, ok := a.router.Chat(chatID)
		if !ok {
			return fmt.Errorf("unknown chat %q", chatID)
		}
		before := len(snap.Transcript)

		sub, cancel := a.bus.Subscribe(cfg.Events.SubscriberBuffer)
		defer cancel()

		if err := a.router.SendUserMessage(chatID, text); err != nil {
			return err
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)

		p := colorProfile()
		deadline := time.NewTimer(sendTimeout)
		defer deadline.Stop()

	wait:
		for {
			select {
			case ev, okc := <-sub:
				if !okc {
					break wait
				}
				if ev.ChatID() != chatID {
					continue
				}
				switch e := ev.(type) {
				case events.ParticipantStateEvent:
					if e.State == events.ParticipantThinking {
						fmt.Println(faint(p, e.Participant+" is thinking..."))
					}
				case events.RecoveryEvent:
					who := e.Participant
					if who == "" {
						who = "moderator"
					}
					if e.GaveUp {
						fmt.Println(faint(p, "recovery for "+who+" gave up"))
					} else {
						fmt.Println(faint(p, fmt.Sprintf("recovering %s (attempt %d)", who, e.Attempt)))
					}
				case events.RoundTimeoutEvent:
					fmt.Println(faint(p, "round timed out waiting for "+strings.Join(e.Pending, ", ")))
				case events.ChatStateEvent:
					if e.State == events.ChatIdle {
						break wait
					}
				}
			case <-sig:
				fmt.Fprintln(os.Stderr, "cancelling...")
				if err := a.router.Cancel(chatID); err != nil {
					return err
				}
				return fmt.Errorf("round cancelled")
			case <-deadline.C:
				if err := a.router.Cancel(chatID); err != nil {
					return err
				}
				return fmt.Errorf("round did not complete within %s", sendTimeout)
			}
		}

		final, ok := a.router.Chat(chatID)
		if !ok {
			return fmt.Errorf("chat %q disappeared", chatID)
		}
		width := terminalWidth()
		fmt.Println()
		for _, e := range final.Transcript[before:] {
			fmt.Println(renderEntry(p, e, width))
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 15*time.Minute, "abort the round after this long")
	rootCmd.AddCommand(sendCmd)
}
