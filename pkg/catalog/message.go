package catalog

import (
	"time"

	"github.com/papercomputeco/spool/pkg/transcript"
)

// Message is one turn of a log as held by the catalog. It carries its
// owning log's name and its 0-based ordinal so branch and trie consumers
// can work from messages alone.
type Message struct {
	LogName       string    `json:"log_name"`
	Ordinal       int       `json:"ordinal"`
	Role          string    `json:"role"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	Variants      []string  `json:"variants,omitempty"`
	ActiveVariant int       `json:"active_variant"`
}

// NormalizedText returns the message text trimmed and with whitespace runs
// collapsed. Divergence detection and trie keys compare this form.
func (m *Message) NormalizedText() string {
	return transcript.Normalize(m.Text)
}

// MessagesFromTurns binds parsed turns to a log name, assigning ordinals.
func MessagesFromTurns(logName string, turns []transcript.Turn) []Message {
	msgs := make([]Message, len(turns))
	for i, t := range turns {
		msgs[i] = Message{
			LogName:       logName,
			Ordinal:       i,
			Role:          t.Role,
			Text:          t.Text,
			Timestamp:     t.Timestamp,
			Variants:      t.Variants,
			ActiveVariant: t.ActiveVariant,
		}
	}
	return msgs
}
