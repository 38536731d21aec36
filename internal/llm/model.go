package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/biodoia/goleapchain/internal/observability"
	"github.com/biodoia/goleapchain/pkg/cache"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// Model avvolge un llms.Model aggiungendo opzioni di default,
// rate limiting, cache delle risposte e metriche
type Model struct {
	llm      llms.Model
	name     string
	defaults []llms.CallOption
	limiter  *rate.Limiter
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *observability.Metrics
}

var _ llms.Model = (*Model)(nil)

// ModelOption configura un Model
type ModelOption func(*Model)

// WithDefaultOptions imposta opzioni applicate prima di quelle del chiamante
func WithDefaultOptions(opts ...llms.CallOption) ModelOption {
	return func(m *Model) {
		m.defaults = append(m.defaults, opts...)
	}
}

// WithRateLimiter limita la frequenza delle chiamate al modello
func WithRateLimiter(limiter *rate.Limiter) ModelOption {
	return func(m *Model) {
		m.limiter = limiter
	}
}

// WithCache abilita la cache delle risposte. Una risposta servita dalla
// cache a una chiamata in streaming viene riprodotta come un unico chunk.
func WithCache(c cache.Cache, ttl time.Duration) ModelOption {
	return func(m *Model) {
		m.cache = c
		m.cacheTTL = ttl
	}
}

// WithMetrics registra le chiamate sulle metriche Prometheus
func WithMetrics(metrics *observability.Metrics) ModelOption {
	return func(m *Model) {
		m.metrics = metrics
	}
}

// NewModel crea un nuovo Model sopra base
func NewModel(base llms.Model, name string, opts ...ModelOption) *Model {
	m := &Model{llm: base, name: name}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Call esegue un singolo prompt testuale
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// GenerateContent esegue la chiamata applicando cache, rate limit e metriche
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	all := make([]llms.CallOption, 0, len(m.defaults)+len(options))
	all = append(all, m.defaults...)
	all = append(all, options...)

	var opts llms.CallOptions
	for _, opt := range all {
		opt(&opts)
	}

	modelName := m.name
	if opts.Model != "" {
		modelName = opts.Model
	}

	var key string
	if m.cache != nil {
		key = cacheKey(modelName, messages, &opts)
	}
	if key != "" {
		if resp, ok := m.lookup(ctx, key); ok {
			m.metrics.RecordCacheLookup(true)
			if err := replay(ctx, resp, opts.StreamingFunc); err != nil {
				return nil, err
			}
			return resp, nil
		}
		m.metrics.RecordCacheLookup(false)
	}

	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, messages, all...)
	m.metrics.RecordLLMRequest(modelName, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) > 0 {
		info := resp.Choices[0].GenerationInfo
		m.metrics.RecordTokens(modelName, intFromInfo(info, "PromptTokens"), intFromInfo(info, "CompletionTokens"))
	}

	if key != "" {
		m.store(ctx, key, resp)
	}
	return resp, nil
}

// replay consegna allo streaming func il contenuto di una risposta in cache
func replay(ctx context.Context, resp *llms.ContentResponse, fn func(ctx context.Context, chunk []byte) error) error {
	if fn == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil
	}
	return fn(ctx, []byte(resp.Choices[0].Content))
}

func (m *Model) wait(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	m.metrics.RecordRateLimitWait(time.Since(start))
	return nil
}

func (m *Model) lookup(ctx context.Context, key string) (*llms.ContentResponse, bool) {
	data, err := m.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Response cache lookup failed")
		}
		return nil, false
	}

	var resp llms.ContentResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		log.Warn().Err(err).Msg("Discarding corrupted cache entry")
		_ = m.cache.Delete(ctx, key)
		return nil, false
	}

	log.Debug().Str("key", key[:12]).Msg("Response served from cache")
	return &resp, true
}

func (m *Model) store(ctx context.Context, key string, resp *llms.ContentResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, key, data, m.cacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to store response in cache")
	}
}

// cacheKey restituisce "" quando la richiesta non è serializzabile
func cacheKey(model string, messages []llms.MessageContent, opts *llms.CallOptions) string {
	msgs, err := json.Marshal(messages)
	if err != nil {
		return ""
	}
	snapshot := struct {
		Model       string
		Temperature float64
		MaxTokens   int
		TopP        float64
		Seed        int
		StopWords   []string
		JSONMode    bool
		Tools       []llms.Tool
		Functions   []llms.FunctionDefinition
	}{
		Model:       model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		Seed:        opts.Seed,
		StopWords:   opts.StopWords,
		JSONMode:    opts.JSONMode,
		Tools:       opts.Tools,
		Functions:   opts.Functions,
	}
	if _, err := json.Marshal(snapshot); err != nil {
		return ""
	}
	return cache.HashKey(string(msgs), snapshot)
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
