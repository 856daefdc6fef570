// Package configcmder provides the config command for managing persistent
// spool configuration stored in the .spool/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent spool configuration.

Configuration is stored as config.toml in the .spool/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  backend.provider, backend.root,
  cache.provider, cache.sqlite_path, cache.postgres_dsn,
  api.listen, client.api_target,
  hydration.batch_size,
  eventstream.provider, eventstream.topic,
  annotate.provider, annotate.enabled

Use subcommands to get, set, or list configuration values:
  spool config set <key> <value>    Set a configuration value
  spool config get <key>            Get a configuration value
  spool config list                 List all configuration values

Examples:
  spool config set backend.root ./logs
  spool config set hydration.batch_size 8
  spool config get cache.provider
  spool config list`

const configShortDesc string = "Manage persistent spool configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.spool or ~/.spool)")

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
