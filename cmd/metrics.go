package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// metricsCmd prints the aggregated metrics summary for a fresh session.
// Since the MetricsCollector only aggregates what it observes in-process,
// this mostly exists to confirm wiring and print the log file's location
// — a long-running chat session prints its own summary on exit.
func metricsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the aggregated metrics summary and the path to the session's metrics log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			if asJSON {
				data, err := json.MarshalIndent(st.coll.GetAggregatedMetrics(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Println("metrics log:", st.coll.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print aggregated metrics as JSON on stdout instead of the log path (the text summary is still printed to stderr on exit)")
	return cmd
}
