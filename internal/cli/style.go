package cli

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// colorProfile honors --no-color and non-tty stdout.
func colorProfile() termenv.Profile {
	if noColor || !stdoutIsTerminal() {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// terminalWidth returns the stdout width, or 80 when it cannot be measured.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func bold(p termenv.Profile, s string) string {
	if p == termenv.Ascii {
		return s
	}
	return termenv.String(s).Bold().String()
}

func faint(p termenv.Profile, s string) string {
	if p == termenv.Ascii {
		return s
	}
	return termenv.String(s).Faint().String()
}

func colored(p termenv.Profile, color, s string) string {
	if p == termenv.Ascii {
		return s
	}
	return termenv.String(s).Foreground(p.Color(color)).String()
}
