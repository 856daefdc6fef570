package utils

// Truncate shortens a string to at most maxLen runes, appending an ellipsis
// when anything was cut. Rune-based so multi-byte turn text never splits
// mid-character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
