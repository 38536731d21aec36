package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("")

	m.RecordLLMRequest("gpt-3.5-turbo", 120*time.Millisecond, nil)
	m.RecordLLMRequest("gpt-3.5-turbo", 80*time.Millisecond, errors.New("boom"))
	m.RecordLLMRequest("gpt-3.5-turbo", 10*time.Millisecond, context.Canceled)
	m.RecordTokens("gpt-3.5-turbo", 10, 5)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordSection("examples", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("gpt-3.5-turbo", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("gpt-3.5-turbo", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("gpt-3.5-turbo", "canceled")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.llmTokens.WithLabelValues("gpt-3.5-turbo", "prompt")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.llmTokens.WithLabelValues("gpt-3.5-turbo", "completion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sectionsTotal.WithLabelValues("examples", "success")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordLLMRequest("x", time.Second, nil)
		m.RecordTokens("x", 1, 1)
		m.RecordToolCall("x", nil)
		m.RecordAgentStep("action")
		m.RecordCacheLookup(true)
		m.RecordSection("agents", nil)
		m.RecordRateLimitWait(time.Millisecond)
	})
}

func TestMetrics_App(t *testing.T) {
	m := NewMetrics("test")
	m.RecordToolCall("ReverseWord", nil)

	app := m.NewApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `test_tool_calls_total{status="success",tool="ReverseWord"} 1`))

	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestHandler_ToolAndAgentMetrics(t *testing.T) {
	m := NewMetrics("")
	h := NewHandler(m, true)
	ctx := context.Background()

	h.HandleAgentAction(ctx, schema.AgentAction{Tool: "WordLength", ToolInput: "LangChain"})
	h.HandleToolStart(ctx, "LangChain")
	h.HandleToolEnd(ctx, "9")

	h.HandleAgentAction(ctx, schema.AgentAction{Tool: "CalculateArea", ToolInput: "5"})
	h.HandleToolError(ctx, errors.New("invalid input"))

	h.HandleAgentFinish(ctx, schema.AgentFinish{ReturnValues: map[string]any{"output": "done"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("WordLength", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("CalculateArea", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.agentSteps.WithLabelValues("action")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentSteps.WithLabelValues("finish")))
}

func TestHandler_NilMetrics(t *testing.T) {
	h := NewHandler(nil, false)

	assert.NotPanics(t, func() {
		h.HandleAgentAction(context.Background(), schema.AgentAction{Tool: "x"})
		h.HandleToolEnd(context.Background(), "ok")
		h.HandleToolError(context.Background(), errors.New("boom"))
		h.HandleLLMGenerateContentEnd(context.Background(), nil)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("  abc ", 10))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "caffè", truncate("caffè", 5))
	assert.Equal(t, "東京...", truncate("東京都の人口", 2))
	assert.True(t, utf8.ValidString(truncate("ééééé", 3)))
}
