package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd crea il comando radice con tutti i sottocomandi
func NewRootCmd(version, commit string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "goleapchain",
		Short: "GoLeapChain - LangChain examples in Go",
		Long: `GoLeapChain - LangChain examples in Go

Runnable demonstrations of the langchaingo building blocks against an
OpenAI-compatible chat model.

Suites:
  • examples: plain calls, prompt templates, chains
  • agents:   ReAct and function-calling agents with tools and memory`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newExamplesCmd())
	rootCmd.AddCommand(newAgentsCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newHistoryCmd())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "GoLeapChain version %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", commit)
		},
	})

	return rootCmd
}
