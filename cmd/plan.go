package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgekit/agentcore/internal/planner"
)

// planCmd prints a plan preview for a request without executing any step
// — useful for reviewing what the Orchestrator's plan path would do
// before granting it write access.
func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [request]",
		Short: "Preview the task plan the orchestrator would build for a request, without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.Join(args, " ")

			ctx := cmd.Context()
			st, err := buildStack(ctx, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			result := st.plan.CreatePlan(request)
			if !result.Validation.IsValid {
				fmt.Println("Plan is not valid:")
				for _, e := range result.Validation.Errors {
					fmt.Println("  -", e)
				}
				return nil
			}

			fmt.Print(planner.Preview(result.Plan, result.Validation))
			return nil
		},
	}
}
