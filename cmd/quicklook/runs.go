package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
		id     int64
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent fit runs from the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("run history disabled: set --db")
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if id > 0 {
				run, err := store.Run(id)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			runs, err := store.RecentRuns(limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tEXPOSURE\tSHAPE\tSTATUS\tCLEAN\tJUMPS\tSAT\tMEAN RATE\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%dx%dx%d\t%s\t%d/%d\t%d\t%d\t%.3f\t%s\n",
					r.ID, r.CreatedAt.Format(time.RFC3339), r.Source, r.ExposureID,
					r.Reads, r.Rows, r.Cols, r.Status, r.Clean, r.Pixels, r.Jumps, r.Saturated,
					r.MeanRate, r.Duration.Round(time.Microsecond))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	cmd.Flags().Int64Var(&id, "id", 0, "Show a single run")
	return cmd
}
