package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/biodoia/goleapchain/internal/llm"
	"github.com/biodoia/goleapchain/pkg/cache"
	"github.com/biodoia/goleapchain/pkg/config"
	"github.com/spf13/cobra"
)

var errChecksFailed = errors.New("health check failed")

// check è un singolo controllo del comando doctor
type check struct {
	name string
	run  func(ctx context.Context, out io.Writer, cfg *config.Config) error
}

func newDoctorCmd() *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run health diagnostics",
		Long: `Check that the examples can run: API key, model provider,
history database and Redis cache when they are enabled.`,
		Example: `  # Run full diagnostic
  goleapchain doctor

  # Check only the provider
  goleapchain doctor --check provider`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), cfg, only)
		},
	}
	cmd.Flags().StringVar(&only, "check", "", "Run specific check (credential, provider, database, redis)")
	return cmd
}

func doctorChecks() []check {
	return []check{
		{name: "credential", run: checkCredential},
		{name: "provider", run: checkProvider},
		{name: "database", run: checkDatabase},
		{name: "redis", run: checkRedis},
	}
}

func runDoctor(ctx context.Context, out io.Writer, cfg *config.Config, only string) error {
	fmt.Fprintln(out, "GoLeapChain Health Check")
	fmt.Fprintln(out, "========================")
	fmt.Fprintln(out)

	checks := doctorChecks()
	if only != "" {
		var selected []check
		for _, c := range checks {
			if c.name == only {
				selected = append(selected, c)
			}
		}
		if len(selected) == 0 {
			return fmt.Errorf("unknown check: %s", only)
		}
		checks = selected
	}

	failed := make(map[string]bool, len(checks))
	for i, c := range checks {
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(checks), c.name)
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := c.run(checkCtx, out, cfg)
		cancel()
		failed[c.name] = err != nil
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "Summary")
	fmt.Fprintln(out, "-------")
	allPassed := true
	for _, c := range checks {
		status := "✓ PASS"
		if failed[c.name] {
			status = "✗ FAIL"
			allPassed = false
		}
		fmt.Fprintf(out, "%-15s %s\n", c.name+":", status)
	}

	fmt.Fprintln(out)
	if !allPassed {
		fmt.Fprintln(out, "✗ Some checks failed - please review errors above")
		return errChecksFailed
	}
	fmt.Fprintln(out, "✓ All checks passed")
	return nil
}

func checkCredential(_ context.Context, out io.Writer, cfg *config.Config) error {
	if cfg.LLM.APIKey == "" {
		fmt.Fprintf(out, "✗ %s is not set\n", cfg.LLM.APIKeyEnv)
		return fmt.Errorf("%s not set", cfg.LLM.APIKeyEnv)
	}
	fmt.Fprintf(out, "✓ %s is set\n", cfg.LLM.APIKeyEnv)
	return nil
}

func checkProvider(ctx context.Context, out io.Writer, cfg *config.Config) error {
	registry, err := llm.NewRegistry(cfg)
	if err != nil {
		fmt.Fprintf(out, "✗ Failed to create provider: %v\n", err)
		return err
	}

	var firstErr error
	for name, err := range registry.HealthCheck(ctx) {
		meta, _ := registry.GetMetadata(name)
		if err != nil {
			fmt.Fprintf(out, "✗ %s (%s): %v\n", name, cfg.LLM.BaseURL, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Fprintf(out, "✓ %s (%s) reachable in %s\n", name, cfg.LLM.BaseURL, meta.LastLatency.Round(time.Millisecond))
	}
	return firstErr
}

func checkDatabase(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if !cfg.History.Enabled {
		fmt.Fprintln(out, "- History disabled, skipping")
		return nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		return err
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		fmt.Fprintf(out, "✗ Ping failed: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "✓ %s database reachable and migrated\n", cfg.Database.Type)
	return nil
}

func checkRedis(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if !cfg.Cache.Enabled || !cfg.Cache.Redis.Enabled {
		fmt.Fprintln(out, "- Redis cache disabled, skipping")
		return nil
	}

	redisCfg := cfg.Cache.Redis
	c, err := cache.NewRedisCache(redisCfg.Host, redisCfg.Password, redisCfg.DB, cache.DefaultConfig().RedisPrefix)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		return err
	}
	defer c.Close()

	if err := c.Ping(ctx); err != nil {
		fmt.Fprintf(out, "✗ Ping failed: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "✓ Redis reachable at %s\n", cfg.Cache.Redis.Host)
	return nil
}
