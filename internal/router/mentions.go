package router

import "strings"

// Mentions returns the subset of names @-mentioned in text, in the order
// given. Names may contain hyphens, so matching is done per known name
// rather than by tokenizing the text: "@alice" matches the participant
// "alice" only when the name is not followed by more name characters.
func Mentions(text string, names []string) []string {
	var out []string
	for _, name := range names {
		if name != "" && mentioned(text, name) {
			out = append(out, name)
		}
	}
	return out
}

func mentioned(text, name string) bool {
	needle := "@" + name
	for i := 0; ; {
		idx := strings.Index(text[i:], needle)
		if idx < 0 {
			return false
		}
		start := i + idx
		end := start + len(needle)
		if end >= len(text) || !isNameChar(text[end]) {
			return true
		}
		i = start + 1
	}
}

func isNameChar(c byte) bool {
	return c == '-' || c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
