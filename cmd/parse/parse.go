// Package parse implements the one-shot report parsing command, used to
// check how a message would be interpreted without touching the ledger.
package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkivela/packwatch/internal/report"
)

// Command creates the parse command. The report text comes from the first
// argument or, when absent, from stdin.
func Command() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "parse [text]",
		Short: "Parse a detection report and print the derived keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}

			ts := time.Now()
			if at != "" {
				ts, err = time.ParseInLocation(report.TimestampLayout, at, report.DisplayZone)
				if err != nil {
					return fmt.Errorf("invalid --at timestamp: %w", err)
				}
			}

			rec, err := report.Parse(text)
			if err != nil {
				return err
			}
			keys := report.Derive(rec, ts)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:    %s\n", rec.Name)
			fmt.Fprintf(out, "number:  %s\n", rec.Number)
			if rec.HasCode() {
				fmt.Fprintf(out, "code:    %s\n", rec.Code)
			}
			fmt.Fprintf(out, "percent: %g\n", rec.Percent)
			fmt.Fprintf(out, "pack:    %sP\n", rec.Pack)
			fmt.Fprintf(out, "title:   %s\n", keys.Title)
			fmt.Fprintf(out, "key:     %s\n", keys.Key)
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Observation timestamp (\""+report.TimestampLayout+"\", display timezone)")
	return cmd
}

func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
