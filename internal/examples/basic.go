package examples

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// ErrNoChoices indica una risposta del modello senza contenuto
var ErrNoChoices = errors.New("model returned no choices")

// Chiavi delle sezioni della suite di base
const (
	SectionBasicLLM       = "basic-llm"
	SectionPromptTemplate = "prompt-template"
	SectionChatbot        = "chatbot"
	SectionTextAnalysis   = "text-analysis"
	SectionMultiStep      = "multi-step"
)

const textAnalysisTemplate = `Please analyze the following text and provide:
1. Main topic
2. Sentiment (positive, negative, neutral)
3. Key points (maximum 3)

Text: {{.text}}

Analysis:`

const sampleText = `LangChain is an amazing framework for building applications with large language models.
It provides a simple and intuitive way to create complex AI workflows.
The community is very supportive and the documentation is comprehensive.`

// ChatbotQuestions sono le domande poste dall'esempio chatbot
var ChatbotQuestions = []string{
	"What is artificial intelligence?",
	"How does machine learning work?",
	"What are the benefits of using LangChain?",
}

// Basic contiene gli esempi di uso base di langchaingo
type Basic struct {
	newModel ModelFactory
}

// NewBasic crea la suite di base
func NewBasic(newModel ModelFactory) *Basic {
	return &Basic{newModel: newModel}
}

// Suite restituisce la suite "examples"
func (b *Basic) Suite() *Suite {
	return &Suite{
		Name:        "examples",
		Title:       "=== LangChain Examples ===",
		Separator:   50,
		ErrorLabel:  "Error running examples",
		InstallHint: "go get github.com/tmc/langchaingo",
		Sections: []Section{
			{Key: SectionBasicLLM, Title: "1. Basic LLM Example:", Run: func(ctx context.Context, out io.Writer) error {
				_, err := b.BasicLLM(ctx, out)
				return err
			}},
			{Key: SectionPromptTemplate, Title: "2. Prompt Template Example:", Run: func(ctx context.Context, out io.Writer) error {
				_, err := b.PromptTemplate(ctx, out)
				return err
			}},
			{Key: SectionChatbot, Title: "3. Chatbot Example:", Run: func(ctx context.Context, out io.Writer) error {
				_, err := b.Chatbot(ctx, out)
				return err
			}},
			{Key: SectionTextAnalysis, Title: "4. Text Analysis Example:", Run: func(ctx context.Context, out io.Writer) error {
				_, err := b.TextAnalysis(ctx, out)
				return err
			}},
			{Key: SectionMultiStep, Title: "5. Multi-step Chain Example:", Run: func(ctx context.Context, out io.Writer) error {
				_, _, err := b.MultiStep(ctx, out)
				return err
			}},
		},
	}
}

// BasicLLM invia un singolo prompt al modello
func (b *Basic) BasicLLM(ctx context.Context, out io.Writer) (string, error) {
	model, err := b.newModel(nil)
	if err != nil {
		return "", err
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, model, "What is LangChain?")
	if err != nil {
		return "", err
	}

	fmt.Fprintln(out, "Basic LLM Response:", response)
	return response, nil
}

// PromptTemplate traduce una frase con un chat prompt parametrico
func (b *Basic) PromptTemplate(ctx context.Context, out io.Writer) (string, error) {
	model, err := b.newModel(nil)
	if err != nil {
		return "", err
	}

	prompt := prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(
			"You are a helpful assistant that translates {{.input_language}} to {{.output_language}}.",
			[]string{"input_language", "output_language"},
		),
		prompts.NewHumanMessagePromptTemplate("{{.text}}", []string{"text"}),
	})

	result, err := invokeChat(ctx, model, prompt, map[string]any{
		"input_language":  "English",
		"output_language": "French",
		"text":            "Hello, how are you?",
	})
	if err != nil {
		return "", err
	}

	fmt.Fprintln(out, "Translation Result:", result)
	return result, nil
}

// Chatbot pone una serie fissa di domande allo stesso chat prompt
func (b *Basic) Chatbot(ctx context.Context, out io.Writer) ([]Exchange, error) {
	model, err := b.newModel(nil)
	if err != nil {
		return nil, err
	}

	prompt := prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(
			"You are a helpful assistant. Answer questions clearly and concisely.",
			nil,
		),
		prompts.NewHumanMessagePromptTemplate("{{.question}}", []string{"question"}),
	})

	responses := make([]Exchange, 0, len(ChatbotQuestions))
	for _, question := range ChatbotQuestions {
		answer, err := invokeChat(ctx, model, prompt, map[string]any{"question": question})
		if err != nil {
			return responses, err
		}
		responses = append(responses, Exchange{Input: question, Output: answer})

		fmt.Fprintf(out, "Q: %s\n", question)
		fmt.Fprintf(out, "A: %s\n\n", answer)
	}

	return responses, nil
}

// TextAnalysis analizza un testo di esempio con una LLMChain
func (b *Basic) TextAnalysis(ctx context.Context, out io.Writer) (string, error) {
	model, err := b.newModel(nil)
	if err != nil {
		return "", err
	}

	chain := chains.NewLLMChain(model, prompts.NewPromptTemplate(textAnalysisTemplate, []string{"text"}))

	result, err := chains.Run(ctx, chain, sampleText)
	if err != nil {
		return "", err
	}

	fmt.Fprintln(out, "Text Analysis Result:", result)
	return result, nil
}

// MultiStep genera un argomento e poi un paragrafo su quell'argomento,
// passando l'output del primo LLMChain come input del secondo
func (b *Basic) MultiStep(ctx context.Context, out io.Writer) (string, string, error) {
	model, err := b.newModel(nil)
	if err != nil {
		return "", "", err
	}

	topicChain := chains.NewLLMChain(model,
		prompts.NewPromptTemplate("Generate a random interesting topic about {{.subject}}", []string{"subject"}))
	topicChain.OutputKey = "topic"

	writingChain := chains.NewLLMChain(model,
		prompts.NewPromptTemplate("Write a short paragraph (2-3 sentences) about: {{.topic}}", []string{"topic"}))
	writingChain.OutputKey = "article"

	// SequentialChain sostituisce gli input con gli output di ogni passo,
	// quindi "topic" non sopravviverebbe fino al risultato finale.
	first, err := chains.Call(ctx, topicChain, map[string]any{"subject": "technology"})
	if err != nil {
		return "", "", fmt.Errorf("topic step: %w", err)
	}
	topic, _ := first["topic"].(string)

	second, err := chains.Call(ctx, writingChain, map[string]any{"topic": topic})
	if err != nil {
		return "", "", fmt.Errorf("writing step: %w", err)
	}
	article, _ := second["article"].(string)

	fmt.Fprintf(out, "Generated Topic: %s\n", topic)
	fmt.Fprintf(out, "Generated Article: %s\n", article)
	return topic, article, nil
}

// invokeChat formatta un chat prompt e invoca il modello mantenendo i ruoli
// dei messaggi; restituisce il testo della prima scelta
func invokeChat(ctx context.Context, model llms.Model, prompt prompts.ChatPromptTemplate, values map[string]any) (string, error) {
	messages, err := prompt.FormatMessages(values)
	if err != nil {
		return "", fmt.Errorf("failed to format prompt: %w", err)
	}

	content := make([]llms.MessageContent, len(messages))
	for i, msg := range messages {
		content[i] = llms.TextParts(msg.GetType(), msg.GetContent())
	}

	resp, err := model.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Content, nil
}
