package examples

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

var errScriptExhausted = errors.New("scripted model: no more replies")

// reply è una risposta predefinita del modello finto
type reply struct {
	text string
	call *llms.ToolCall
	err  error
}

// scriptedModel restituisce le risposte in ordine e registra ogni chiamata
type scriptedModel struct {
	mu      sync.Mutex
	replies []reply
	calls   [][]llms.MessageContent
	temps   []float64
}

func newScriptedModel(replies ...reply) *scriptedModel {
	return &scriptedModel{replies: replies}
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	m.calls = append(m.calls, messages)
	m.temps = append(m.temps, opts.Temperature)

	if len(m.replies) == 0 {
		return nil, errScriptExhausted
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	if next.err != nil {
		return nil, next.err
	}

	choice := &llms.ContentChoice{Content: next.text}
	if next.call != nil {
		choice.ToolCalls = []llms.ToolCall{*next.call}
		choice.FuncCall = next.call.FunctionCall
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// callText restituisce il testo completo della chiamata i-esima
func (m *scriptedModel) callText(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	for _, msg := range m.calls[i] {
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				sb.WriteString(p.Text)
			case llms.ToolCallResponse:
				sb.WriteString(p.Content)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// factoryFor restituisce una ModelFactory che registra le temperature richieste
func factoryFor(model llms.Model, temps *[]*float64) ModelFactory {
	return func(temperature *float64) (llms.Model, error) {
		if temps != nil {
			*temps = append(*temps, temperature)
		}
		return model, nil
	}
}

func toolCall(id, name, args string) *llms.ToolCall {
	return &llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}
}
