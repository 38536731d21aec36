package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/biodoia/goleapchain/internal/examples"
	"github.com/biodoia/goleapchain/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Nomi delle suite eseguibili
const (
	suiteExamples = "examples"
	suiteAgents   = "agents"
)

// suiteOptions raccoglie i flag comuni ai comandi che eseguono suite
type suiteOptions struct {
	strict      bool
	verbose     bool
	metricsAddr string
	only        []string
	list        bool
}

func addSuiteFlags(cmd *cobra.Command, opts *suiteOptions) {
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit with a non-zero status when a section fails")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log agent steps and tool calls at info level")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "Run only the given sections (repeatable)")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List the available sections and exit")
}

func newExamplesCmd() *cobra.Command {
	opts := &suiteOptions{}
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Run the basic LangChain examples",
		Long: `Run the basic examples: a single prompt, a chat prompt template,
a small chatbot, a text analysis chain and a two-step sequential chain.`,
		Example: `  # Run every basic example
  goleapchain examples

  # Run only the prompt template example
  goleapchain examples --only prompt-template`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(cmd, opts, suiteExamples)
		},
	}
	addSuiteFlags(cmd, opts)
	return cmd
}

func newAgentsCmd() *cobra.Command {
	opts := &suiteOptions{}
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Run the LangChain agent examples",
		Long: `Run the agent examples: a ReAct agent with Wikipedia and a math tool,
a function-calling agent with custom tools and a conversational agent
with memory.`,
		Example: `  # Run every agent example
  goleapchain agents

  # Log every agent step
  goleapchain agents --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(cmd, opts, suiteAgents)
		},
	}
	addSuiteFlags(cmd, opts)
	return cmd
}

func newRunCmd() *cobra.Command {
	opts := &suiteOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run both example suites",
		Example: `  # Run everything and expose metrics
  goleapchain run --metrics-addr 127.0.0.1:9090

  # Run one section from each suite
  goleapchain run --only chatbot --only custom-tool-agent`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(cmd, opts, suiteExamples, suiteAgents)
		},
	}
	addSuiteFlags(cmd, opts)
	return cmd
}

func runSuites(cmd *cobra.Command, opts *suiteOptions, names ...string) error {
	if opts.list {
		// Le suite servono solo per le chiavi: nessun modello viene creato
		catalog := &environment{cfg: config.Default()}
		printSections(cmd.OutOrStdout(), catalog.suites(names...))
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	env, err := newEnvironment(cfg, opts.verbose)
	if err != nil {
		return err
	}
	defer env.Close()

	suites := env.suites(names...)
	selection, err := partitionSections(suites, opts.only)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := opts.metricsAddr
	if addr == "" && cfg.Monitoring.Prometheus.Enabled {
		addr = cfg.Monitoring.Prometheus.Addr
	}
	if addr != "" {
		serveCtx, cancelServe := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := env.metrics.Serve(serveCtx, addr); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			cancelServe()
			<-done
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ExamplesTimeout())
	defer cancel()

	out := cmd.OutOrStdout()
	printed := 0
	for _, suite := range suites {
		keys, selected := selection[suite.Name]
		if len(opts.only) > 0 && !selected {
			continue
		}
		if printed > 0 {
			fmt.Fprintln(out)
		}
		printed++

		runner := examples.NewRunner(out, cfg.LLM.APIKey, cfg.LLM.APIKeyEnv,
			examples.WithStrict(opts.strict),
			examples.WithOnly(keys...),
			examples.WithRunnerMetrics(env.metrics),
		)
		if err := runner.Run(ctx, suite); err != nil {
			return err
		}
	}

	return nil
}

// partitionSections assegna ogni chiave di --only alla suite che la contiene
func partitionSections(suites []*examples.Suite, only []string) (map[string][]string, error) {
	selection := make(map[string][]string)
	for _, key := range only {
		found := false
		for _, suite := range suites {
			for _, candidate := range suite.Keys() {
				if candidate == key {
					selection[suite.Name] = append(selection[suite.Name], key)
					found = true
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q (available: %s)", examples.ErrUnknownSection, key, strings.Join(allKeys(suites), ", "))
		}
	}
	return selection, nil
}

func allKeys(suites []*examples.Suite) []string {
	var keys []string
	for _, suite := range suites {
		keys = append(keys, suite.Keys()...)
	}
	return keys
}

// printSections elenca le sezioni disponibili di ogni suite
func printSections(out io.Writer, suites []*examples.Suite) {
	for _, suite := range suites {
		fmt.Fprintf(out, "%s:\n", suite.Name)
		for _, section := range suite.Sections {
			fmt.Fprintf(out, "  %-22s %s\n", section.Key, section.Title)
		}
	}
}
