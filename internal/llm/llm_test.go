package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/biodoia/goleapchain/internal/observability"
	"github.com/biodoia/goleapchain/internal/providers"
	"github.com/biodoia/goleapchain/pkg/cache"
	"github.com/biodoia/goleapchain/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// fakeProvider registra le richieste e risponde con risposte predefinite
type fakeProvider struct {
	mu        sync.Mutex
	requests  []*providers.ChatRequest
	response  *providers.ChatResponse
	chunks    []*providers.StreamChunk
	err       error
	streaming bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) SupportsFeature(f providers.Feature) bool {
	return f == providers.FeatureStreaming && p.streaming
}

func (p *fakeProvider) ChatCompletion(_ context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return p.response, nil
}

func (p *fakeProvider) Stream(_ context.Context, req *providers.ChatRequest, handler providers.StreamHandler) error {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	for _, chunk := range p.chunks {
		if err := handler(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProvider) HealthCheck(context.Context) error { return nil }

func (p *fakeProvider) GetModels(context.Context) ([]providers.ModelInfo, error) { return nil, nil }

func textResponse(text string) *providers.ChatResponse {
	return &providers.ChatResponse{
		Choices: []providers.Choice{{Message: providers.Message{Role: providers.RoleAssistant, Content: text}, FinishReason: "stop"}},
		Usage:   providers.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
	}
}

func TestProviderModel_Call(t *testing.T) {
	provider := &fakeProvider{response: textResponse("LangChain is a framework.")}
	model := NewProviderModel(provider, "gpt-3.5-turbo")

	out, err := model.Call(context.Background(), "What is LangChain?",
		llms.WithTemperature(0.7), llms.WithStopWords([]string{"\nObservation:"}))
	require.NoError(t, err)
	assert.Equal(t, "LangChain is a framework.", out)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Equal(t, "gpt-3.5-turbo", req.Model)
	assert.Equal(t, []string{"\nObservation:"}, req.Stop)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, providers.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "What is LangChain?", req.Messages[0].Text())
}

func TestProviderModel_MessageConversion(t *testing.T) {
	provider := &fakeProvider{response: textResponse("ok")}
	model := NewProviderModel(provider, "m")

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "You are a helpful assistant."),
		llms.TextParts(llms.ChatMessageTypeHuman, "How many letters in LangChain?"),
		{
			Role: llms.ChatMessageTypeAI,
			Parts: []llms.ContentPart{llms.ToolCall{
				ID:           "call_1",
				FunctionCall: &llms.FunctionCall{Name: "WordLength", Arguments: `{"__arg1":"LangChain"}`},
			}},
		},
		{
			Role:  llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{ToolCallID: "call_1", Name: "WordLength", Content: "9"}},
		},
	}

	_, err := model.GenerateContent(context.Background(), messages, llms.WithModel("override"), llms.WithJSONMode())
	require.NoError(t, err)

	req := provider.requests[0]
	assert.Equal(t, "override", req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)

	require.Len(t, req.Messages, 4)
	assert.Equal(t, providers.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, providers.RoleUser, req.Messages[1].Role)

	ai := req.Messages[2]
	assert.Equal(t, providers.RoleAssistant, ai.Role)
	assert.Nil(t, ai.Content)
	require.Len(t, ai.ToolCalls, 1)
	assert.Equal(t, "function", ai.ToolCalls[0].Type)
	assert.Equal(t, "WordLength", ai.ToolCalls[0].Function.Name)

	tool := req.Messages[3]
	assert.Equal(t, providers.RoleTool, tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.Equal(t, "9", tool.Text())
}

func TestProviderModel_UnsupportedContent(t *testing.T) {
	model := NewProviderModel(&fakeProvider{response: textResponse("ok")}, "m")

	_, err := model.GenerateContent(context.Background(), []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.ImageURLContent{URL: "https://example.com/a.png"}},
	}})
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestProviderModel_ToolsAndFunctions(t *testing.T) {
	provider := &fakeProvider{response: &providers.ChatResponse{
		Choices: []providers.Choice{{
			Message: providers.Message{
				Role: providers.RoleAssistant,
				ToolCalls: []providers.ToolCall{{
					ID:       "call_9",
					Type:     "function",
					Function: providers.FunctionCall{Name: "ReverseWord", Arguments: `{"__arg1":"hello"}`},
				}},
			},
			FinishReason: "tool_calls",
		}},
	}}
	model := NewProviderModel(provider, "m")

	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{"__arg1": map[string]any{"type": "string"}},
	}
	resp, err := model.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "Reverse hello")},
		llms.WithFunctions([]llms.FunctionDefinition{{Name: "ReverseWord", Description: "Reverse a word", Parameters: params}}),
		llms.WithTools([]llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "WordLength"}}}),
	)
	require.NoError(t, err)

	req := provider.requests[0]
	require.Len(t, req.Tools, 2)
	assert.Equal(t, "WordLength", req.Tools[0].Function.Name)
	assert.Equal(t, "ReverseWord", req.Tools[1].Function.Name)
	assert.Equal(t, "object", req.Tools[1].Function.Parameters["type"])

	choice := resp.Choices[0]
	require.Len(t, choice.ToolCalls, 1)
	assert.Equal(t, "call_9", choice.ToolCalls[0].ID)
	require.NotNil(t, choice.FuncCall)
	assert.Equal(t, "ReverseWord", choice.FuncCall.Name)
	assert.Equal(t, "tool_calls", choice.StopReason)
}

func TestProviderModel_Streaming(t *testing.T) {
	provider := &fakeProvider{
		streaming: true,
		chunks: []*providers.StreamChunk{
			{Delta: "Hel"},
			{Delta: "lo", FinishReason: "stop"},
			{Usage: &providers.Usage{PromptTokens: 2, CompletionTokens: 2, TotalTokens: 4}},
			{Done: true},
		},
	}
	model := NewProviderModel(provider, "m")

	var streamed []string
	resp, err := model.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "hi")},
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			streamed = append(streamed, string(chunk))
			return nil
		}),
	)
	require.NoError(t, err)

	assert.True(t, provider.requests[0].Stream)
	assert.Equal(t, []string{"Hel", "lo"}, streamed)
	assert.Equal(t, "Hello", resp.Choices[0].Content)
	assert.Equal(t, "stop", resp.Choices[0].StopReason)
	assert.Equal(t, 4, resp.Choices[0].GenerationInfo["TotalTokens"])
}

func TestProviderModel_ErrorWrapped(t *testing.T) {
	sentinel := errors.New("invalid API key")
	model := NewProviderModel(&fakeProvider{err: sentinel}, "m")

	_, err := model.Call(context.Background(), "hi")
	assert.ErrorIs(t, err, sentinel)
}

// countingModel è un llms.Model che conta le chiamate
type countingModel struct {
	calls    int
	lastOpts llms.CallOptions
}

func (m *countingModel) GenerateContent(_ context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.lastOpts = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.lastOpts)
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "answer",
		GenerationInfo: map[string]any{"PromptTokens": 3, "CompletionTokens": 2},
	}}}, nil
}

func (m *countingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestModel_DefaultOptionsOverridable(t *testing.T) {
	base := &countingModel{}
	model := NewModel(base, "gpt-3.5-turbo", WithDefaultOptions(llms.WithTemperature(0.7), llms.WithModel("gpt-3.5-turbo")))

	_, err := model.Call(context.Background(), "hi")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, base.lastOpts.Temperature, 1e-9)
	assert.Equal(t, "gpt-3.5-turbo", base.lastOpts.Model)

	_, err = model.Call(context.Background(), "hi", llms.WithTemperature(0))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, base.lastOpts.Temperature, 1e-9)
}

func TestModel_Cache(t *testing.T) {
	mem := cache.NewMemoryCache(10, time.Minute)
	defer mem.Close()

	base := &countingModel{}
	metrics := observability.NewMetrics("")
	model := NewModel(base, "m", WithCache(mem, time.Minute), WithMetrics(metrics))

	for i := 0; i < 2; i++ {
		out, err := model.Call(context.Background(), "What is LangChain?")
		require.NoError(t, err)
		assert.Equal(t, "answer", out)
	}
	assert.Equal(t, 1, base.calls)

	// Un prompt diverso non colpisce la cache
	_, err := model.Call(context.Background(), "Something else")
	require.NoError(t, err)
	assert.Equal(t, 2, base.calls)

	// Una chiamata in streaming riceve la risposta in cache come chunk
	var chunks []string
	out, err := model.Call(context.Background(), "What is LangChain?",
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			chunks = append(chunks, string(chunk))
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, []string{"answer"}, chunks)
	assert.Equal(t, 2, base.calls)
}

func TestModel_CacheStoresStreamedResponses(t *testing.T) {
	mem := cache.NewMemoryCache(10, time.Minute)
	defer mem.Close()

	base := &countingModel{}
	model := NewModel(base, "m", WithCache(mem, time.Minute))
	stream := llms.WithStreamingFunc(func(context.Context, []byte) error { return nil })

	_, err := model.Call(context.Background(), "Calculate 25 + 17", stream)
	require.NoError(t, err)
	require.NotNil(t, base.lastOpts.StreamingFunc)

	out, err := model.Call(context.Background(), "Calculate 25 + 17")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 1, base.calls)

	sentinel := errors.New("stream closed")
	_, err = model.Call(context.Background(), "Calculate 25 + 17",
		llms.WithStreamingFunc(func(context.Context, []byte) error { return sentinel }))
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, base.calls)
}

func TestModel_RateLimiterHonoursContext(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	base := &countingModel{}
	model := NewModel(base, "m", WithRateLimiter(limiter))

	_, err := model.Call(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = model.Call(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, base.calls)
}

func TestIntFromInfo(t *testing.T) {
	info := map[string]any{"a": 3, "b": int64(4), "c": 5.0, "d": "x"}
	assert.Equal(t, 3, intFromInfo(info, "a"))
	assert.Equal(t, 4, intFromInfo(info, "b"))
	assert.Equal(t, 5, intFromInfo(info, "c"))
	assert.Equal(t, 0, intFromInfo(info, "d"))
	assert.Equal(t, 0, intFromInfo(nil, "a"))
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Client:      config.ClientResty,
			Provider:    "openai",
			BaseURL:     "http://127.0.0.1:1",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			Timeout:     "1s",
			MaxRetries:  0,
			APIKey:      "test",
		},
		Cache: config.CacheConfig{TTL: "1m"},
	}
}

func TestFactory_Model(t *testing.T) {
	cfg := testConfig()
	registry := providers.NewRegistry()
	provider := &fakeProvider{response: textResponse("ok")}
	require.NoError(t, registry.Register("openai", provider, "fake"))

	factory := NewFactory(cfg, registry)

	model, err := factory.Model(nil)
	require.NoError(t, err)
	_, err = model.Call(context.Background(), "hi")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, *provider.requests[0].Temperature, 1e-9)

	zero := 0.0
	model, err = factory.Model(&zero)
	require.NoError(t, err)
	_, err = model.Call(context.Background(), "hi")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, *provider.requests[1].Temperature, 1e-9)
}

func TestFactory_NoProviders(t *testing.T) {
	factory := NewFactory(testConfig(), providers.NewRegistry())

	_, err := factory.Model(nil)
	assert.ErrorIs(t, err, providers.ErrNoProvidersAvailable)
}

func TestFactory_LangchaingoClient(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Client = config.ClientLangchaingo

	model, err := NewFactory(cfg, nil).Model(nil)
	require.NoError(t, err)
	assert.NotNil(t, model)
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry(testConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, registry.List())
}
