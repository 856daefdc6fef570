// Package seedcmder provides the seed command for writing demo logs into a
// backend root.
package seedcmder

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/spool/pkg/backend/fsdir"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/transcript"
)

const seedLongDesc string = `Seed demo conversation logs into a backend root.

Writes a handful of branching conversations for one subject so the trie and
sibling views have something to show.

Examples:
  spool seed
  spool seed --root ./logs --subject alice`

const seedShortDesc string = "Seed demo conversation logs"

type seedCommander struct {
	root    string
	subject string
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.root, "root", "r", "logs", "Backend root directory")
	cmd.Flags().StringVar(&cmder.subject, "subject", "demo", "Subject to seed logs for")

	return cmd
}

func (c *seedCommander) run() error {
	port := fsdir.NewPort(c.root)

	var logCount, turnCount int
	if err := cliui.Step(os.Stdout, "Seeding demo logs", func() error {
		for name, turns := range demoLogs() {
			if err := port.WriteLog(c.subject, name, turns); err != nil {
				return err
			}
			logCount++
			turnCount += len(turns)
		}
		return nil
	}); err != nil {
		return err
	}

	fmt.Printf("\n  %s Seeded %s logs %s into %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(logCount)),
		cliui.DimStyle.Render(fmt.Sprintf("(%d turns)", turnCount)),
		cliui.DimStyle.Render(c.root+"/"+c.subject),
	)
	return nil
}

// demoLogs returns a small family of conversations sharing a prefix so that
// branch detection and the trie view both have structure to surface.
func demoLogs() map[string][]transcript.RawTurn {
	base := time.Now().Add(-48 * time.Hour)
	at := func(offset time.Duration) time.Time { return base.Add(offset) }

	turns := func(ts time.Time, texts ...string) []transcript.RawTurn {
		out := make([]transcript.RawTurn, len(texts))
		for i, text := range texts {
			role := transcript.RoleUser
			if i%2 == 1 {
				role = "assistant"
			}
			out[i] = transcript.RawTurn{Role: role, Text: text, Timestamp: ts.Add(time.Duration(i) * time.Minute)}
		}
		return out
	}

	return map[string][]transcript.RawTurn{
		"trip-planning": turns(at(0),
			"Help me plan a week in Portugal.",
			"Happy to! Are you thinking coast, cities, or a mix?",
			"A mix, starting in Lisbon.",
			"Lisbon first, then Sintra, then down to the Algarve.",
		),
		"trip-planning-trains": turns(at(2*time.Hour),
			"Help me plan a week in Portugal.",
			"Happy to! Are you thinking coast, cities, or a mix?",
			"Mostly cities, and I want to travel by train.",
			"Then Lisbon, Coimbra, and Porto line up nicely on the rail spine.",
		),
		"trip-planning-food": turns(at(26*time.Hour),
			"Help me plan a week in Portugal.",
			"Happy to! Are you thinking coast, cities, or a mix?",
			"Honestly I just want to eat well.",
			"Porto for francesinha, Lisbon for pastel de nata, and the Alentejo in between.",
		),
		"sourdough": turns(at(30*time.Hour),
			"My sourdough keeps coming out dense.",
			"Dense crumb usually means underproofing. How long is your bulk ferment?",
			"About three hours at room temperature.",
			"Stretch that to five or six, or until the dough has grown by half.",
		),
	}
}
