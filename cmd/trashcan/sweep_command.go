package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trashcan/internal/api"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				result, err := client.Sweep(cmd.Context())
				if err != nil {
					return wrapAPIError(err)
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				if result.Error != "" {
					return fmt.Errorf("sweep failed: %s", result.Error)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned %d entries, expired %d", result.Scanned, result.Expired)
				if result.Failed > 0 {
					fmt.Fprintf(out, ", %d could not be removed", result.Failed)
				}
				fmt.Fprintf(out, " (%dms)\n", result.DurationMillis)
				for _, name := range result.Removed {
					fmt.Fprintf(out, "  removed %s\n", name)
				}
				if n := len(result.Invalid); n > 0 {
					fmt.Fprintf(out, "Skipped %d unreadable records\n", n)
				}
				if n := len(result.Orphans); n > 0 {
					fmt.Fprintf(out, "Found %d files without a record\n", n)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the sweep result as JSON")
	return cmd
}
