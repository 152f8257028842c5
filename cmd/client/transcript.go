package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aeolun/mudclient/pkg/client"
)

func newTranscriptCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "transcript",
		Short: "Print the transcript of the most recent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := client.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			path, err := cfg.TranscriptPath()
			if err != nil {
				return err
			}
			if path == "" {
				return errors.New("the transcript is disabled ([local] transcript_db is empty)")
			}

			t, err := client.OpenTranscript(path, nil)
			if err != nil {
				return err
			}
			defer t.Close()

			id, err := t.LastSessionID()
			if err != nil {
				return err
			}
			if id == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded yet.")
				return nil
			}

			entries, err := t.Entries(id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				switch e.Direction {
				case "in":
					fmt.Fprint(out, e.Body)
				case "out":
					fmt.Fprintf(out, "> %s\n", e.Body)
				case "command":
					if e.Error != "" {
						fmt.Fprintf(out, "[command %q failed: %s]\n", e.Body, e.Error)
					}
				}
			}
			return nil
		},
	}
}
