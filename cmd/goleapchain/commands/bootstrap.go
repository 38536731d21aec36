package commands

import (
	"context"
	"fmt"

	"github.com/biodoia/goleapchain/internal/examples"
	"github.com/biodoia/goleapchain/internal/history"
	"github.com/biodoia/goleapchain/internal/llm"
	"github.com/biodoia/goleapchain/internal/observability"
	"github.com/biodoia/goleapchain/internal/providers"
	"github.com/biodoia/goleapchain/pkg/cache"
	"github.com/biodoia/goleapchain/pkg/config"
	"github.com/biodoia/goleapchain/pkg/database"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/schema"
)

// loadConfig carica la configurazione indicata da --config, configura il
// logger e valida il risultato
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Monitoring.Logging.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	setupLogger(level, cfg.Monitoring.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openDatabase apre e migra il database dello storico
func openDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.AutoMigrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// newCache costruisce il cache delle risposte dalla configurazione
func newCache(cfg *config.Config) (*cache.MultiLayerCache, error) {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.MemoryMaxEntries = cfg.Cache.MaxEntries
	cacheCfg.MemoryTTL = cfg.CacheTTL()
	cacheCfg.RedisEnabled = cfg.Cache.Redis.Enabled
	cacheCfg.RedisHost = cfg.Cache.Redis.Host
	cacheCfg.RedisPassword = cfg.Cache.Redis.Password
	cacheCfg.RedisDB = cfg.Cache.Redis.DB
	cacheCfg.RedisTTL = cfg.CacheTTL()

	return cache.NewMultiLayerCache(cacheCfg)
}

// environment raccoglie le dipendenze condivise dalle suite
type environment struct {
	cfg      *config.Config
	metrics  *observability.Metrics
	handler  *observability.Handler
	registry *providers.Registry
	factory  *llm.Factory
	cache    *cache.MultiLayerCache
	db       *database.DB
	history  *history.Store
}

// newEnvironment prepara provider, modelli, cache e storico secondo cfg
func newEnvironment(cfg *config.Config, verbose bool) (*environment, error) {
	env := &environment{cfg: cfg}
	env.metrics = observability.NewMetrics("")
	env.handler = observability.NewHandler(env.metrics, verbose)

	registry, err := llm.NewRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider registry: %w", err)
	}
	env.registry = registry

	factoryOpts := []llm.FactoryOption{
		llm.WithFactoryMetrics(env.metrics),
		llm.WithCallbacks(env.handler),
	}

	if cfg.Cache.Enabled {
		c, err := newCache(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		env.cache = c
		factoryOpts = append(factoryOpts, llm.WithResponseCache(c))
		log.Debug().
			Bool("redis", cfg.Cache.Redis.Enabled).
			Str("ttl", cfg.Cache.TTL).
			Msg("Response cache enabled")
	}

	if cfg.History.Enabled {
		db, err := openDatabase(cfg)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.db = db
		env.history = history.NewStore(db)
		log.Debug().
			Str("type", cfg.Database.Type).
			Msg("Conversation history enabled")
	}

	env.factory = llm.NewFactory(cfg, registry, factoryOpts...)
	return env, nil
}

// Close rilascia cache e database
func (e *environment) Close() {
	if e.cache != nil {
		logCacheStats(e.cache.Stats())
		if err := e.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close cache")
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

func logCacheStats(stats cache.CacheStats) {
	log.Debug().
		Int64("hits", stats.Hits).
		Int64("misses", stats.Misses).
		Int64("sets", stats.Sets).
		Float64("hit_rate", stats.HitRate()).
		Msg("Response cache stats")
}

// suites restituisce le suite indicate per nome, nell'ordine dato
func (e *environment) suites(names ...string) []*examples.Suite {
	out := make([]*examples.Suite, 0, len(names))
	for _, name := range names {
		switch name {
		case suiteExamples:
			out = append(out, examples.NewBasic(e.factory.Model).Suite())
		case suiteAgents:
			out = append(out, examples.NewAgents(e.factory.Model, e.agentOptions()...).Suite())
		}
	}
	return out
}

func (e *environment) agentOptions() []examples.AgentsOption {
	opts := []examples.AgentsOption{
		examples.WithMaxIterations(e.cfg.Examples.MaxIterations),
		examples.WithWikipediaUserAgent(e.cfg.Examples.WikipediaUserAgent),
		examples.WithCallbacksHandler(e.handler),
	}
	if e.history != nil {
		opts = append(opts, examples.WithHistory(func(ctx context.Context, title string) (schema.ChatMessageHistory, error) {
			return e.history.NewSession(ctx, suiteAgents, title)
		}))
	}
	return opts
}
