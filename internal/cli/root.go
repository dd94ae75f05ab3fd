// Package cli implements the ledgerd command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cimillas/ticket-ledger/internal/config"
)

// RootOptions holds global flags and the configuration loaded before any
// subcommand runs.
type RootOptions struct {
	ConfigFile string
	Config     config.Config
}

// flagKeys maps command flags onto configuration keys so a flag overrides the
// environment and the config file.
var flagKeys = map[string]string{
	"addr":         "http_addr",
	"genesis":      "genesis",
	"database-url": "database_url",
	"amqp-url":     "amqp_url",
	"queue":        "amqp_queue",
	"redis-addr":   "redis_addr",
	"ttl":          "token_ttl",
}

// NewRootCommand creates the ledgerd root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerd",
		Short: "Ticket marketplace ledger node",
		Long: `ledgerd runs the ticket marketplace on an in-process ledger and serves it
over HTTP. Settings come from LEDGER_* environment variables, a .env file
or --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, toml or json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewKeygenCommand())
	cmd.AddCommand(NewSignCommand())
	cmd.AddCommand(NewReceiptsCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	if _, err := config.LoadDotEnv(); err != nil {
		return err
	}

	v := config.New()
	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	o.Config = cfg
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}
