package transcript

import "strings"

// NormalizeRole maps arbitrary backend role strings onto the user/other
// split. Only an exact "user" (case-insensitive) counts as the user.
func NormalizeRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), RoleUser) {
		return RoleUser
	}
	return RoleOther
}

// Normalize trims a turn's text and collapses internal whitespace runs to a
// single space. Divergence detection and trie keys compare normalized text
// so that formatting-only edits do not split shared prefixes.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ParseTurns converts raw backend records into an ordered turn sequence.
//
// Records with no usable text (empty text and no non-empty variant) are
// skipped rather than failing the log. ActiveVariant is clamped into range.
func ParseTurns(raw []RawTurn) []Turn {
	turns := make([]Turn, 0, len(raw))

	for _, r := range raw {
		text := r.Text
		if text == "" && len(r.Variants) > 0 {
			for _, v := range r.Variants {
				if v != "" {
					text = v
					break
				}
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		active := r.ActiveVariant
		if active < 0 || active >= len(r.Variants) {
			active = 0
		}

		turns = append(turns, Turn{
			Role:          NormalizeRole(r.Role),
			Text:          text,
			Timestamp:     r.Timestamp,
			Variants:      r.Variants,
			ActiveVariant: active,
		})
	}

	return turns
}
