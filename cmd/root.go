package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	ledgercmd "github.com/jkivela/packwatch/cmd/ledger"
	"github.com/jkivela/packwatch/cmd/parse"
	"github.com/jkivela/packwatch/cmd/watch"
	"github.com/jkivela/packwatch/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "packwatch",
		Short: "Packwatch reward-pack curation CLI",
	}

	subcommands := []*cobra.Command{
		watch.Command(settings),
		ledgercmd.Command(settings),
		parse.Command(),
		configCommand(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// configCommand prints the effective configuration after defaults and
// environment overrides, for troubleshooting deployments.
func configCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := settings.Dump()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
