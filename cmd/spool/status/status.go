// Package statuscmder provides the status command for displaying the current
// focus state of the local .spool directory.
package statuscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/spool/pkg/cliui"
	"github.com/papercomputeco/spool/pkg/dotdir"
)

const statusLongDesc string = `Show the current spool focus state.

Reads the local .spool/ directory (or ~/.spool/) to display the subject and
log the last session had open, and the reference log branch detection was
last run against.

If no focus state exists, indicates that the next session will start fresh.

Examples:
  spool status`

const statusShortDesc string = "Show current focus state"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(configDir)
		},
	}

	return cmd
}

func runStatus(configDir string) error {
	manager := dotdir.NewManager()

	state, err := manager.LoadFocusState(configDir)
	if err != nil {
		return fmt.Errorf("loading focus state: %w", err)
	}

	if state == nil {
		fmt.Printf("  %s No focus state. Next session starts fresh.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("\n  %s  %s\n", cliui.KeyStyle.Render("Subject:  "), cliui.NameStyle.Render(state.Subject))

	if state.LogName != "" {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Log:      "), cliui.NameStyle.Render(state.LogName))
	} else {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Log:      "), cliui.DimStyle.Render("<none>"))
	}

	if state.Reference != "" {
		fmt.Printf("  %s  %s\n\n", cliui.KeyStyle.Render("Reference:"), cliui.NameStyle.Render(state.Reference))
	} else {
		fmt.Printf("  %s  %s\n\n", cliui.KeyStyle.Render("Reference:"), cliui.DimStyle.Render("<branch detection not run>"))
	}

	return nil
}
