package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aeolun/mudclient/pkg/client"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or reset the config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), flags.configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := client.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (server %s)\n", flags.configPath, cfg.ServerAddress())
			return nil
		},
	})

	var backup bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the config file with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.ResetConfig(flags.configPath, backup); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration reset to defaults (%s)\n", flags.configPath)
			return nil
		},
	}
	reset.Flags().BoolVar(&backup, "backup", true, "Keep a dated copy of the old file")
	cmd.AddCommand(reset)

	return cmd
}
