package llm

import (
	"fmt"
	"strings"

	"github.com/biodoia/goleapchain/internal/observability"
	"github.com/biodoia/goleapchain/internal/providers"
	"github.com/biodoia/goleapchain/internal/providers/openai"
	"github.com/biodoia/goleapchain/pkg/cache"
	"github.com/biodoia/goleapchain/pkg/config"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	langchainopenai "github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// NewRegistry crea il registry con il provider configurato
func NewRegistry(cfg *config.Config) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	client := openai.NewClient(cfg.LLM.Provider, cfg.LLM.BaseURL, cfg.LLM.APIKey,
		openai.WithTimeout(cfg.LLMTimeout()),
		openai.WithMaxRetries(cfg.LLM.MaxRetries),
	)
	if err := registry.Register(cfg.LLM.Provider, client, "openai"); err != nil {
		return nil, err
	}

	return registry, nil
}

// Factory costruisce i modelli usati dagli esempi
type Factory struct {
	cfg      *config.Config
	registry *providers.Registry
	cache    cache.Cache
	metrics  *observability.Metrics
	handler  callbacks.Handler
	limiter  *rate.Limiter
}

// FactoryOption configura la Factory
type FactoryOption func(*Factory)

// WithResponseCache abilita la cache delle risposte su tutti i modelli
func WithResponseCache(c cache.Cache) FactoryOption {
	return func(f *Factory) {
		f.cache = c
	}
}

// WithFactoryMetrics registra le chiamate di tutti i modelli
func WithFactoryMetrics(metrics *observability.Metrics) FactoryOption {
	return func(f *Factory) {
		f.metrics = metrics
	}
}

// WithCallbacks imposta il callbacks handler dei modelli
func WithCallbacks(handler callbacks.Handler) FactoryOption {
	return func(f *Factory) {
		f.handler = handler
	}
}

// NewFactory crea una nuova Factory. Il rate limiter è condiviso tra
// tutti i modelli prodotti.
func NewFactory(cfg *config.Config, registry *providers.Registry, opts ...FactoryOption) *Factory {
	f := &Factory{cfg: cfg, registry: registry}
	for _, opt := range opts {
		opt(f)
	}

	if rpm := cfg.LLM.RequestsPerMinute; rpm > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
	}

	return f
}

// Model restituisce un modello configurato; temperature nil usa llm.temperature
func (f *Factory) Model(temperature *float64) (llms.Model, error) {
	temp := f.cfg.LLM.Temperature
	if temperature != nil {
		temp = *temperature
	}

	base, err := f.baseModel()
	if err != nil {
		return nil, err
	}

	opts := []ModelOption{
		WithDefaultOptions(llms.WithModel(f.cfg.LLM.Model), llms.WithTemperature(temp)),
		WithRateLimiter(f.limiter),
		WithMetrics(f.metrics),
	}
	if f.cache != nil {
		opts = append(opts, WithCache(f.cache, f.cfg.CacheTTL()))
	}

	return NewModel(base, f.cfg.LLM.Model, opts...), nil
}

func (f *Factory) baseModel() (llms.Model, error) {
	switch f.cfg.LLM.Client {
	case config.ClientLangchaingo:
		opts := []langchainopenai.Option{
			langchainopenai.WithModel(f.cfg.LLM.Model),
			langchainopenai.WithToken(f.cfg.LLM.APIKey),
			langchainopenai.WithBaseURL(strings.TrimRight(f.cfg.LLM.BaseURL, "/") + "/v1"),
		}
		if f.handler != nil {
			opts = append(opts, langchainopenai.WithCallback(f.handler))
		}
		model, err := langchainopenai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create langchaingo client: %w", err)
		}
		return model, nil

	default:
		if f.registry == nil {
			return nil, providers.ErrNoProvidersAvailable
		}
		provider, err := f.registry.GetOrFirst(f.cfg.LLM.Provider)
		if err != nil {
			return nil, err
		}
		model := NewProviderModel(provider, f.cfg.LLM.Model)
		model.CallbacksHandler = f.handler
		return model, nil
	}
}
