package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/biodoia/goleapchain/internal/providers"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrUnsupportedRole    = errors.New("unsupported message role")
	ErrUnsupportedContent = errors.New("unsupported content part")
	ErrEmptyResponse      = errors.New("empty response from provider")
)

// ProviderModel adatta un providers.Provider all'interfaccia llms.Model di langchaingo
type ProviderModel struct {
	CallbacksHandler callbacks.Handler

	provider providers.Provider
	model    string
}

var _ llms.Model = (*ProviderModel)(nil)

// NewProviderModel crea un modello sopra il provider indicato
func NewProviderModel(provider providers.Provider, model string) *ProviderModel {
	return &ProviderModel{provider: provider, model: model}
}

// Call esegue un singolo prompt testuale
func (m *ProviderModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// GenerateContent esegue una chat completion sul provider
func (m *ProviderModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.CallbacksHandler != nil {
		m.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	resp, err := m.generate(ctx, messages, &opts)
	if err != nil {
		if m.CallbacksHandler != nil {
			m.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	if m.CallbacksHandler != nil {
		m.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

func (m *ProviderModel) generate(ctx context.Context, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
	req, err := m.buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	if opts.StreamingFunc != nil && m.provider.SupportsFeature(providers.FeatureStreaming) {
		return m.stream(ctx, req, opts.StreamingFunc)
	}

	resp, err := m.provider.ChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.provider.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choices := make([]*llms.ContentChoice, len(resp.Choices))
	for i, c := range resp.Choices {
		choices[i] = newChoice(c.Message.Text(), c.FinishReason, c.Message.ToolCalls, resp.Usage)
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// stream accumula lo stream del provider in un'unica scelta
func (m *ProviderModel) stream(ctx context.Context, req *providers.ChatRequest, fn func(ctx context.Context, chunk []byte) error) (*llms.ContentResponse, error) {
	req.Stream = true

	var content strings.Builder
	var finishReason string
	var toolCalls []providers.ToolCall
	var usage providers.Usage

	err := m.provider.Stream(ctx, req, func(chunk *providers.StreamChunk) error {
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
		if len(chunk.ToolCalls) > 0 {
			toolCalls = chunk.ToolCalls
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Delta == "" {
			return nil
		}
		content.WriteString(chunk.Delta)
		return fn(ctx, []byte(chunk.Delta))
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.provider.Name(), err)
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{newChoice(content.String(), finishReason, toolCalls, usage)},
	}, nil
}

func (m *ProviderModel) buildRequest(messages []llms.MessageContent, opts *llms.CallOptions) (*providers.ChatRequest, error) {
	msgs, err := convertMessages(messages)
	if err != nil {
		return nil, err
	}

	model := m.model
	if opts.Model != "" {
		model = opts.Model
	}

	temperature := opts.Temperature
	req := &providers.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temperature,
		Stop:        opts.StopWords,
	}

	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		req.MaxTokens = &maxTokens
	}
	if opts.TopP > 0 {
		topP := opts.TopP
		req.TopP = &topP
	}
	if opts.Seed != 0 {
		seed := opts.Seed
		req.Seed = &seed
	}
	if opts.JSONMode {
		req.ResponseFormat = &providers.ResponseFormat{Type: "json_object"}
	}

	for _, tool := range opts.Tools {
		if tool.Function == nil {
			continue
		}
		req.Tools = append(req.Tools, convertFunction(*tool.Function))
	}
	// Le "functions" legacy sono esposte come tools
	for _, fn := range opts.Functions {
		req.Tools = append(req.Tools, convertFunction(fn))
	}

	return req, nil
}

func convertFunction(fn llms.FunctionDefinition) providers.Tool {
	return providers.Tool{
		Type: "function",
		Function: providers.Function{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  toSchema(fn.Parameters),
		},
	}
}

// toSchema normalizza i parametri di una funzione in una mappa JSON Schema
func toSchema(params any) map[string]interface{} {
	switch p := params.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return p
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func convertRole(role llms.ChatMessageType) (string, error) {
	switch role {
	case llms.ChatMessageTypeSystem:
		return providers.RoleSystem, nil
	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
		return providers.RoleUser, nil
	case llms.ChatMessageTypeAI:
		return providers.RoleAssistant, nil
	case llms.ChatMessageTypeTool:
		return providers.RoleTool, nil
	case llms.ChatMessageTypeFunction:
		return providers.RoleFunction, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedRole, role)
	}
}

func convertMessages(messages []llms.MessageContent) ([]providers.Message, error) {
	out := make([]providers.Message, 0, len(messages))

	for _, mc := range messages {
		role, err := convertRole(mc.Role)
		if err != nil {
			return nil, err
		}

		msg := providers.Message{Role: role}
		var text strings.Builder
		var responses []providers.Message

		for _, part := range mc.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				text.WriteString(p.Text)
			case llms.ToolCall:
				tc := providers.ToolCall{ID: p.ID, Type: p.Type}
				if tc.Type == "" {
					tc.Type = "function"
				}
				if p.FunctionCall != nil {
					tc.Function = providers.FunctionCall{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					}
				}
				msg.ToolCalls = append(msg.ToolCalls, tc)
			case llms.ToolCallResponse:
				resp := providers.Message{
					Role:       providers.RoleTool,
					Content:    p.Content,
					Name:       p.Name,
					ToolCallID: p.ToolCallID,
				}
				if p.ToolCallID == "" {
					resp.Role = providers.RoleFunction
				}
				responses = append(responses, resp)
			default:
				return nil, fmt.Errorf("%w: %T", ErrUnsupportedContent, part)
			}
		}

		// Ogni risposta di tool diventa un messaggio a sé
		if len(responses) > 0 {
			out = append(out, responses...)
			continue
		}

		if text.Len() > 0 || len(msg.ToolCalls) == 0 {
			msg.Content = text.String()
		}
		out = append(out, msg)
	}

	return out, nil
}

func newChoice(content, finishReason string, toolCalls []providers.ToolCall, usage providers.Usage) *llms.ContentChoice {
	choice := &llms.ContentChoice{
		Content:    content,
		StopReason: finishReason,
		GenerationInfo: map[string]any{
			"PromptTokens":     usage.PromptTokens,
			"CompletionTokens": usage.CompletionTokens,
			"TotalTokens":      usage.TotalTokens,
		},
	}

	for _, tc := range toolCalls {
		choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
			FunctionCall: &llms.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	// Gli agenti function-calling leggono ancora FuncCall
	if len(choice.ToolCalls) > 0 {
		choice.FuncCall = choice.ToolCalls[0].FunctionCall
	}

	return choice
}
