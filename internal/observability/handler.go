package observability

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Handler inoltra gli eventi di langchaingo a zerolog e alle metriche.
// Con verbose=true gli eventi sono loggati a livello info, altrimenti debug.
type Handler struct {
	callbacks.SimpleHandler

	metrics *Metrics
	verbose bool

	mu       sync.Mutex
	lastTool string
}

var _ callbacks.Handler = (*Handler)(nil)

// NewHandler crea un nuovo handler; metrics può essere nil
func NewHandler(metrics *Metrics, verbose bool) *Handler {
	return &Handler{metrics: metrics, verbose: verbose}
}

func (h *Handler) event() *zerolog.Event {
	if h.verbose {
		return log.Info()
	}
	return log.Debug()
}

func (h *Handler) HandleLLMGenerateContentStart(_ context.Context, ms []llms.MessageContent) {
	h.event().Int("messages", len(ms)).Msg("LLM call started")
}

func (h *Handler) HandleLLMGenerateContentEnd(_ context.Context, res *llms.ContentResponse) {
	if res == nil || len(res.Choices) == 0 {
		return
	}
	choice := res.Choices[0]
	evt := h.event().
		Str("stop_reason", choice.StopReason).
		Int("tool_calls", len(choice.ToolCalls))
	if tokens, ok := choice.GenerationInfo["TotalTokens"].(int); ok {
		evt = evt.Int("total_tokens", tokens)
	}
	evt.Msg("LLM call finished")
}

func (h *Handler) HandleLLMError(_ context.Context, err error) {
	log.Warn().Err(err).Msg("LLM call failed")
}

func (h *Handler) HandleChainError(_ context.Context, err error) {
	log.Warn().Err(err).Msg("Chain failed")
}

func (h *Handler) HandleAgentAction(_ context.Context, action schema.AgentAction) {
	h.mu.Lock()
	h.lastTool = action.Tool
	h.mu.Unlock()

	h.metrics.RecordAgentStep("action")
	h.event().
		Str("tool", action.Tool).
		Str("input", action.ToolInput).
		Msg("Agent action")
}

func (h *Handler) HandleAgentFinish(_ context.Context, finish schema.AgentFinish) {
	h.metrics.RecordAgentStep("finish")
	evt := h.event()
	if out, ok := finish.ReturnValues["output"].(string); ok {
		evt = evt.Str("output", truncate(out, 200))
	}
	evt.Msg("Agent finished")
}

func (h *Handler) HandleToolStart(_ context.Context, input string) {
	h.event().Str("tool", h.currentTool()).Str("input", input).Msg("Tool started")
}

func (h *Handler) HandleToolEnd(_ context.Context, output string) {
	tool := h.currentTool()
	h.metrics.RecordToolCall(tool, nil)
	h.event().Str("tool", tool).Str("output", truncate(output, 200)).Msg("Tool finished")
}

func (h *Handler) HandleToolError(_ context.Context, err error) {
	tool := h.currentTool()
	h.metrics.RecordToolCall(tool, err)
	log.Warn().Err(err).Str("tool", tool).Msg("Tool failed")
}

func (h *Handler) currentTool() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastTool == "" {
		return "unknown"
	}
	return h.lastTool
}

// truncate taglia s a n rune senza spezzare caratteri multibyte
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
