package commands

import (
	"fmt"
	"os"

	"github.com/biodoia/goleapchain/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage GoLeapChain configuration files.

This command allows you to view, validate, and generate configuration files.`,
		Example: `  # Show current configuration
  goleapchain config show

  # Validate configuration file
  goleapchain config validate -c config.yaml

  # Generate template configuration
  goleapchain config generate -o config.yaml`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  `Display the currently loaded configuration with all values.`,
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Args:  cobra.NoArgs,
		RunE:  runConfigValidate,
	})

	var output string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate template configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGenerate(cmd, output)
		},
	}
	generate.Flags().StringVarP(&output, "output", "o", "", "Output file path (stdout if not specified)")
	cmd.AddCommand(generate)

	return cmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# Current Configuration")
	fmt.Fprintln(out, "# =====================")
	fmt.Fprintln(out)
	fmt.Fprint(out, string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Validating configuration: %s\n\n", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(out, "✗ Failed to load configuration")
		return err
	}
	fmt.Fprintln(out, "✓ Configuration loaded successfully")

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "✗ Configuration validation failed")
		return err
	}

	fmt.Fprintln(out, "✓ Configuration is valid")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration summary:")
	fmt.Fprintf(out, "  Client:     %s\n", cfg.LLM.Client)
	fmt.Fprintf(out, "  Model:      %s (%s)\n", cfg.LLM.Model, cfg.LLM.BaseURL)
	fmt.Fprintf(out, "  API key:    %s (%s)\n", cfg.LLM.APIKeyEnv, keyStatus(cfg.LLM.APIKey))
	fmt.Fprintf(out, "  Cache:      %v (redis: %v)\n", cfg.Cache.Enabled, cfg.Cache.Redis.Enabled)
	fmt.Fprintf(out, "  History:    %v (%s)\n", cfg.History.Enabled, cfg.Database.Type)
	fmt.Fprintf(out, "  Prometheus: %v\n", cfg.Monitoring.Prometheus.Enabled)
	return nil
}

func runConfigGenerate(cmd *cobra.Command, output string) error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	content := `# GoLeapChain Configuration File
# ==============================
#
# Every value can be overridden with GOLEAPCHAIN_<SECTION>_<KEY>,
# e.g. GOLEAPCHAIN_LLM_MODEL=gpt-4o-mini.

` + string(data)

	if output == "" {
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	}

	if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration template generated: %s\n", output)
	return nil
}

func keyStatus(key string) string {
	if key == "" {
		return "not set"
	}
	return "set"
}
