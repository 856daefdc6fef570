// Package spoolcmder
package spoolcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/spool/cmd/spool/config"
	focuscmder "github.com/papercomputeco/spool/cmd/spool/focus"
	seedcmder "github.com/papercomputeco/spool/cmd/spool/seed"
	servecmder "github.com/papercomputeco/spool/cmd/spool/serve"
	showcmder "github.com/papercomputeco/spool/cmd/spool/show"
	statuscmder "github.com/papercomputeco/spool/cmd/spool/status"
	versioncmder "github.com/papercomputeco/spool/cmd/version"
)

const spoolLongDesc string = `Spool indexes your agents' conversation logs.

Run services using:
  spool serve          Run the index API server
  spool seed           Seed demo logs into a backend root
  spool show           Inspect one log from the terminal`

const spoolShortDesc string = "Spool - Conversation Log Index"

func NewSpoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: spoolShortDesc,
		Long:  spoolLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.spool or ~/.spool)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(focuscmder.NewFocusCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
