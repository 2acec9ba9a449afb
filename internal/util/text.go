package util

import (
	"fmt"
	"strings"
)

// Truncate shortens a string to at most n bytes, appending "..." when it had
// to cut. Cuts land on rune boundaries.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return SafeSlice(s, n)
	}
	return SafeSlice(s, n-3) + "..."
}

// SafeSlice truncates a string to maxLen bytes without splitting a rune.
// No ellipsis is added.
func SafeSlice(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	lastValid := 0
	for i := range s {
		if i > maxLen {
			break
		}
		lastValid = i
	}
	return s[:lastValid]
}

// SanitizeFilename replaces characters that are unsafe in filenames.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(strings.TrimSpace(name))
}

// FormatBytes renders a byte count in a human-readable unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
