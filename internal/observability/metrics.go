package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const defaultNamespace = "goleapchain"

// Metrics raccoglie le metriche Prometheus dell'esecuzione degli esempi
type Metrics struct {
	registry *prometheus.Registry

	llmRequests    *prometheus.CounterVec
	llmDuration    *prometheus.HistogramVec
	llmTokens      *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	agentSteps     *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	sectionsTotal  *prometheus.CounterVec
	rateLimitWaits prometheus.Histogram
}

// NewMetrics crea le metriche su un registry dedicato
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.llmRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of model calls by model and status",
		},
		[]string{"model", "status"},
	)

	m.llmDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_milliseconds",
			Help:      "Model call duration in milliseconds",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"model"},
	)

	m.llmTokens = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total number of tokens by model and type",
		},
		[]string{"model", "type"},
	)

	m.toolCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	m.agentSteps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_steps_total",
			Help:      "Total number of agent actions and finishes",
		},
		[]string{"kind"},
	)

	m.cacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"result"},
	)

	m.sectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "example_sections_total",
			Help:      "Executed example sections by suite and status",
		},
		[]string{"suite", "status"},
	)

	m.rateLimitWaits = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_milliseconds",
			Help:      "Time spent waiting for the request rate limiter",
			Buckets:   []float64{1, 10, 100, 500, 1000, 5000, 30000},
		},
	)

	return m
}

// Registry restituisce il registry Prometheus
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordLLMRequest registra una chiamata al modello
func (m *Metrics) RecordLLMRequest(model string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(model, statusLabel(err)).Inc()
	m.llmDuration.WithLabelValues(model).Observe(float64(duration.Milliseconds()))
}

// RecordTokens registra i token consumati
func (m *Metrics) RecordTokens(model string, prompt, completion int) {
	if m == nil {
		return
	}
	if prompt > 0 {
		m.llmTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.llmTokens.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

// RecordToolCall registra l'esito di una invocazione di tool
func (m *Metrics) RecordToolCall(tool string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, statusLabel(err)).Inc()
}

// RecordAgentStep registra un passo dell'agente ("action" o "finish")
func (m *Metrics) RecordAgentStep(kind string) {
	if m == nil {
		return
	}
	m.agentSteps.WithLabelValues(kind).Inc()
}

// RecordCacheLookup registra un lookup nel response cache
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordSection registra l'esecuzione di una sezione di una suite
func (m *Metrics) RecordSection(suite string, err error) {
	if m == nil {
		return
	}
	m.sectionsTotal.WithLabelValues(suite, statusLabel(err)).Inc()
}

// RecordRateLimitWait registra l'attesa imposta dal rate limiter
func (m *Metrics) RecordRateLimitWait(wait time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWaits.Observe(float64(wait.Milliseconds()))
}

// NewApp crea l'app fiber che espone /metrics e /health
func (m *Metrics) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "goleapchain metrics",
	})
	app.Use(recoverer.New())

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}),
	))

	return app
}

// Serve espone le metriche su addr finché ctx non viene cancellato
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	app := m.NewApp()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
		errCh <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown metrics server: %w", err)
		}
		return nil
	}
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
