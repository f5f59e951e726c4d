package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgekit/agentcore/internal/planner"
	"github.com/forgekit/agentcore/pkg/protocol"
)

// chatCmd drives the Orchestrator over stdin/stdout: a one-shot run when
// given a single argument, otherwise an interactive REPL until EOF or
// "exit".
func chatCmd() *cobra.Command {
	var oneShot string
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the agent, driving tool calls against the local workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				oneShot = strings.Join(args, " ")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			confirm := func(plan *planner.TaskPlan, preview string) bool {
				if autoApprove {
					return true
				}
				return confirmFromStdin(preview)
			}

			st, err := buildStack(ctx, confirm)
			if err != nil {
				return err
			}
			defer st.Close()

			emit := func(chunk protocol.StreamingChunk) {
				switch chunk.Kind {
				case protocol.ChunkContent:
					fmt.Print(chunk.Content)
				case protocol.ChunkToolCalls:
					for _, tc := range chunk.ToolCalls {
						fmt.Fprintf(os.Stderr, "\n[tool] %s(%s)\n", tc.Name, tc.Arguments)
					}
				case protocol.ChunkToolResult:
					if chunk.ToolResult != nil && !chunk.ToolResult.Success {
						fmt.Fprintf(os.Stderr, "[tool failed] %s\n", chunk.ToolResult.Error)
					}
				case protocol.ChunkDone:
					fmt.Println()
				}
			}

			if oneShot != "" {
				return st.orch.ProcessUserMessageStream(ctx, oneShot, emit)
			}
			return runChatRepl(ctx, st, emit)
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "yes", false, "auto-approve high and critical risk plans without prompting")
	return cmd
}

func runChatRepl(ctx context.Context, st *stack, emit func(protocol.StreamingChunk)) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("forgectl chat — type a request, or \"exit\" to quit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.orch.ProcessUserMessageStream(ctx, line, emit); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func confirmFromStdin(preview string) bool {
	fmt.Println(preview)
	fmt.Print("Execute this plan? [y/N] ")
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
