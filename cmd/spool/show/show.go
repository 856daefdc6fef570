// Package showcmder provides the show command for inspecting one log from
// the terminal without a running server.
package showcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/spool/pkg/backend/fsdir"
	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/transcript"
)

const showLongDesc string = `Show one conversation log.

Reads the log straight from the backend root and prints each turn.
Assistant turns are rendered as markdown.

Examples:
  spool show alice chat-042
  spool show demo sourdough --root ./logs
  spool show demo sourdough --raw`

const showShortDesc string = "Show one conversation log"

type showCommander struct {
	root string
	raw  bool
}

func NewShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show <subject> <log>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&cmder.root, "root", "r", "logs", "Backend root directory")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print turn text without markdown rendering")

	return cmd
}

func (c *showCommander) run(ctx context.Context, subject, name string) error {
	port := fsdir.NewPort(c.root)

	turns, err := port.FetchLogContent(ctx, subject, name)
	if err != nil {
		return fmt.Errorf("reading log: %w", err)
	}
	if len(turns) == 0 {
		fmt.Printf("  %s %s is empty\n", cliui.DimStyle.Render("●"), name)
		return nil
	}

	parsed := transcript.ParseTurns(turns)

	fmt.Printf("\n  %s %s %s\n\n",
		cliui.KeyStyle.Render(name),
		cliui.DimStyle.Render("-"),
		cliui.DimStyle.Render(fmt.Sprintf("%d turns", len(parsed))),
	)

	for i := range parsed {
		fmt.Printf("  %s\n", cliui.RoleStyle.Render("["+parsed[i].Role+"]"))
		fmt.Println(c.renderTurn(&parsed[i]))
	}

	return nil
}

// renderTurn renders assistant turns as markdown and everything else as
// indented plain text. Rendering failures fall back to the raw text.
func (c *showCommander) renderTurn(turn *transcript.Turn) string {
	text := turn.ActiveText()

	if c.raw || turn.Role != "assistant" {
		return indent(text)
	}

	rendered, err := cliui.RenderMarkdown(text)
	if err != nil {
		return indent(text)
	}
	return rendered
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n") + "\n"
}
