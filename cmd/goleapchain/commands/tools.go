package commands

import (
	"fmt"
	"strings"

	"github.com/biodoia/goleapchain/internal/observability"
	"github.com/biodoia/goleapchain/internal/tools"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and call the demo tools",
		Long: `Inspect and call the tools used by the agent examples.

Only tools that need neither network access nor a model are available.`,
		Example: `  # List the tools
  goleapchain tools list

  # Call a tool directly
  goleapchain tools call CalculateArea 5,3`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the offline tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set := tools.Offline(nil)
			out := cmd.OutOrStdout()
			for _, name := range tools.Names(set) {
				fmt.Fprintf(out, "%-15s %s\n", name, set[name].Description())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "call <name> <input>",
		Short: "Call a tool with the given input",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			set := tools.Offline(observability.NewHandler(nil, false))
			tool, err := tools.Lookup(set, args[0])
			if err != nil {
				return fmt.Errorf("%w (available: %s)", err, strings.Join(tools.Names(set), ", "))
			}

			result, err := tool.Call(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return fmt.Errorf("%s: %w", tool.Name(), err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	})

	return cmd
}
