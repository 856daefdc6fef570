// Package transcript defines the wire and normalized forms of conversation
// turns and the pure parsing step between them.
//
// Backends hand the core raw records in whatever shape they were stored;
// ParseTurns normalizes them into an ordered Turn sequence, skipping records
// with no usable text. Parsing is stateless and never fails a whole log over
// a single bad record.
package transcript

import "time"

// Role values after normalization. Anything that is not the subject's user
// collapses to RoleOther: the index only cares about the user/other split.
const (
	RoleUser  = "user"
	RoleOther = "other"
)

// RawTurn is a single turn as reported by a backend, prior to normalization.
type RawTurn struct {
	Role string `json:"role"`

	Text string `json:"text"`

	// Timestamp is optional; the zero value means the backend did not
	// record one.
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Variants are alternate texts for this turn (swipes). May be empty.
	Variants []string `json:"variants,omitempty"`

	// ActiveVariant indexes into Variants. Out-of-range values are clamped
	// during parsing.
	ActiveVariant int `json:"active_variant,omitempty"`
}

// Turn is one normalized conversation turn.
type Turn struct {
	Role          string    `json:"role"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	Variants      []string  `json:"variants,omitempty"`
	ActiveVariant int       `json:"active_variant"`
}

// ActiveText returns the text of the currently selected variant, falling
// back to the base text when no variants exist.
func (t *Turn) ActiveText() string {
	if len(t.Variants) == 0 {
		return t.Text
	}
	return t.Variants[t.ActiveVariant]
}
