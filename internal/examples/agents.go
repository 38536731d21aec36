package examples

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/biodoia/goleapchain/internal/tools"
	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/memory"
	"github.com/tmc/langchaingo/schema"
	lctools "github.com/tmc/langchaingo/tools"
)

// Chiavi delle sezioni della suite agenti
const (
	SectionBasicAgent          = "basic-agent"
	SectionCustomToolAgent     = "custom-tool-agent"
	SectionConversationalAgent = "conversational-agent"
)

// BasicAgentQuery è la domanda posta all'agente con tool predefiniti
const BasicAgentQuery = "What is the population of Tokyo and what is 15% of that number?"

// ToolAgentSystemMessage è il messaggio di sistema dell'agente con tool personalizzati
const ToolAgentSystemMessage = "You are a helpful assistant with access to various tools."

// CustomToolQueries sono le domande poste all'agente con tool personalizzati
var CustomToolQueries = []string{
	"What is the length of the word 'LangChain'?",
	"Reverse the word 'hello'",
	"Calculate the area of a rectangle with length 5 and width 3",
}

// Conversation sono i messaggi inviati all'agente conversazionale
var Conversation = []string{
	"Hi! My name is John.",
	"Calculate 25 + 17",
	"What was my name again?",
	"Convert 'hello world' to uppercase",
	"What was the result of the calculation I asked earlier?",
}

// HistoryFactory apre la storia di una nuova conversazione
type HistoryFactory func(ctx context.Context, title string) (schema.ChatMessageHistory, error)

// Agents contiene gli esempi con agenti e tool
type Agents struct {
	newModel      ModelFactory
	maxIterations int
	userAgent     string
	handler       callbacks.Handler
	newHistory    HistoryFactory
}

// AgentsOption configura la suite agenti
type AgentsOption func(*Agents)

// WithMaxIterations limita i passi di ragionamento di ogni agente
func WithMaxIterations(n int) AgentsOption {
	return func(a *Agents) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithWikipediaUserAgent imposta lo user agent delle ricerche su Wikipedia
func WithWikipediaUserAgent(userAgent string) AgentsOption {
	return func(a *Agents) {
		a.userAgent = userAgent
	}
}

// WithCallbacksHandler collega gli eventi di agenti e tool a un handler
func WithCallbacksHandler(handler callbacks.Handler) AgentsOption {
	return func(a *Agents) {
		a.handler = handler
	}
}

// WithHistory usa una storia persistente per l'agente conversazionale
func WithHistory(newHistory HistoryFactory) AgentsOption {
	return func(a *Agents) {
		a.newHistory = newHistory
	}
}

// NewAgents crea la suite agenti
func NewAgents(newModel ModelFactory, opts ...AgentsOption) *Agents {
	a := &Agents{
		newModel:      newModel,
		maxIterations: 5,
		userAgent:     "goleapchain/1.0",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Suite restituisce la suite "agents"
func (a *Agents) Suite() *Suite {
	return &Suite{
		Name:        "agents",
		Title:       "=== LangChain Agent Examples ===",
		Separator:   60,
		ErrorLabel:  "Error running agent examples",
		InstallHint: "go get github.com/tmc/langchaingo",
		Sections: []Section{
			{Key: SectionBasicAgent, Title: "1. Basic Agent with Built-in Tools:", Run: func(ctx context.Context, out io.Writer) error {
				_, err := a.BasicAgent(ctx, out)
				return err
			}},
			{Key: SectionCustomToolAgent, Title: "2. Custom Tool Agent Example:", Run: func(ctx context.Context, out io.Writer) error {
				_, err := a.CustomToolAgent(ctx, out)
				return err
			}},
			{Key: SectionConversationalAgent, Title: "3. Conversational Agent with Memory:", Run: func(ctx context.Context, out io.Writer) error {
				_, err := a.ConversationalAgent(ctx, out)
				return err
			}},
		},
	}
}

// BasicAgent usa un agente zero-shot ReAct con Wikipedia e un calcolatore LLM
func (a *Agents) BasicAgent(ctx context.Context, out io.Writer) (string, error) {
	zero := 0.0
	model, err := a.newModel(&zero)
	if err != nil {
		return "", err
	}

	wiki := tools.Wikipedia(a.userAgent)
	math := tools.LLMMath(model)
	wiki.CallbacksHandler = a.handler
	math.CallbacksHandler = a.handler

	agent := agents.NewOneShotAgent(model, []lctools.Tool{wiki, math}, a.agentOptions()...)
	executor := agents.NewExecutor(agent, a.agentOptions()...)

	result, err := chains.Run(ctx, executor, BasicAgentQuery)
	if err != nil {
		return "", err
	}
	result = strings.TrimSpace(result)

	fmt.Fprintln(out, "Agent Result:", result)
	return result, nil
}

// CustomToolAgent usa un agente function-calling con tool personalizzati
func (a *Agents) CustomToolAgent(ctx context.Context, out io.Writer) ([]Exchange, error) {
	model, err := a.newModel(nil)
	if err != nil {
		return nil, err
	}

	toolset := []*tools.Func{tools.WordLength(), tools.Reverse(), tools.Area()}
	list := make([]lctools.Tool, len(toolset))
	for i, t := range toolset {
		t.CallbacksHandler = a.handler
		list[i] = t
	}

	agent := agents.NewOpenAIFunctionsAgent(model, list,
		append(a.agentOptions(), agents.NewOpenAIOption().WithSystemMessage(ToolAgentSystemMessage))...)
	executor := agents.NewExecutor(agent, a.agentOptions()...)

	results := make([]Exchange, 0, len(CustomToolQueries))
	for _, query := range CustomToolQueries {
		fmt.Fprintf(out, "\nQuery: %s\n", query)

		result, err := chains.Call(ctx, executor, map[string]any{"input": query})
		if err != nil {
			return results, err
		}

		output, _ := result["output"].(string)
		output = strings.TrimSpace(output)
		results = append(results, Exchange{Input: query, Output: output})
		fmt.Fprintf(out, "Result: %s\n", output)
	}

	return results, nil
}

// ConversationalAgent conversa con un agente ReAct dotato di memoria
func (a *Agents) ConversationalAgent(ctx context.Context, out io.Writer) ([]Exchange, error) {
	temperature := 0.7
	model, err := a.newModel(&temperature)
	if err != nil {
		return nil, err
	}

	upper := tools.UpperCase()
	upper.CallbacksHandler = a.handler
	list := []lctools.Tool{tools.Calculator(a.handler), upper}

	history, err := a.history(ctx)
	if err != nil {
		return nil, err
	}
	buffer := memory.NewConversationBuffer(
		memory.WithChatHistory(history),
		memory.WithInputKey("input"),
		memory.WithOutputKey("output"),
	)

	agent := agents.NewConversationalAgent(model, list, a.agentOptions()...)
	executor := agents.NewExecutor(agent, append(a.agentOptions(), agents.WithMemory(buffer))...)

	responses := make([]Exchange, 0, len(Conversation))
	for _, message := range Conversation {
		fmt.Fprintf(out, "\nUser: %s\n", message)

		response, err := chains.Run(ctx, executor, message)
		if err != nil {
			return responses, err
		}
		response = strings.TrimSpace(response)

		responses = append(responses, Exchange{Input: message, Output: response})
		fmt.Fprintf(out, "Agent: %s\n", response)
	}

	return responses, nil
}

func (a *Agents) history(ctx context.Context) (schema.ChatMessageHistory, error) {
	if a.newHistory == nil {
		return memory.NewChatMessageHistory(), nil
	}
	history, err := a.newHistory(ctx, "Conversational Agent with Memory")
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation history: %w", err)
	}
	return history, nil
}

func (a *Agents) agentOptions() []agents.Option {
	opts := []agents.Option{agents.WithMaxIterations(a.maxIterations)}
	if a.handler != nil {
		opts = append(opts, agents.WithCallbacksHandler(a.handler))
	}
	return opts
}
