package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"trashcan/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var kinds []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent moves and expiries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.History(cmd.Context(), api.HistoryQuery{Limit: limit, Kinds: kinds})
				if err != nil {
					return wrapAPIError(err)
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}

				out := cmd.OutOrStdout()
				if len(resp.Events) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				fmt.Fprint(out, renderTable(historyColumns, historyRows(resp.Events)))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of events (server default 50)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only show these event kinds (moved, move_failed, expired, expire_failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	return cmd
}

var historyColumns = []column{
	{header: "ID", align: alignRight},
	{header: "Time"},
	{header: "Event"},
	{header: "Stored name", maxWidth: 32},
	{header: "Original path", maxWidth: 60},
	{header: "Detail", maxWidth: 40},
}

func historyRows(events []api.HistoryEvent) [][]string {
	rows := make([][]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, []string{
			strconv.FormatInt(event.ID, 10),
			localTime(event.OccurredAt),
			event.Kind,
			event.StoredName,
			event.OriginalPath,
			event.Detail,
		})
	}
	return rows
}

// localTime renders an API timestamp in local time, or passes it through
// unchanged when it does not parse.
func localTime(value string) string {
	ts, err := api.ParseTime(value)
	if err != nil || ts.IsZero() {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
