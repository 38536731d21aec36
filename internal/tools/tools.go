package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	lctools "github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/wikipedia"
)

var (
	ErrInvalidInput = errors.New("invalid tool input")
	ErrToolNotFound = errors.New("tool not found")
)

// Nomi dei tool esposti agli agenti
const (
	NameWordLength    = "WordLength"
	NameReverseWord   = "ReverseWord"
	NameCalculateArea = "CalculateArea"
	NameCalculator    = "Calculator"
	NameUpperCase     = "UpperCase"
	NameWikipedia     = "Wikipedia"
)

// Func è un tool langchaingo costruito da una funzione
type Func struct {
	CallbacksHandler callbacks.Handler

	name        string
	description string
	fn          func(ctx context.Context, input string) (string, error)
}

var _ lctools.Tool = (*Func)(nil)

// NewFunc crea un tool da una funzione
func NewFunc(name, description string, fn func(ctx context.Context, input string) (string, error)) *Func {
	return &Func{name: name, description: description, fn: fn}
}

func (t *Func) Name() string        { return t.name }
func (t *Func) Description() string { return t.description }

// Call esegue la funzione notificando il callbacks handler
func (t *Func) Call(ctx context.Context, input string) (string, error) {
	if t.CallbacksHandler != nil {
		t.CallbacksHandler.HandleToolStart(ctx, input)
	}

	out, err := t.fn(ctx, input)
	if err != nil {
		if t.CallbacksHandler != nil {
			t.CallbacksHandler.HandleToolError(ctx, err)
		}
		return "", err
	}

	if t.CallbacksHandler != nil {
		t.CallbacksHandler.HandleToolEnd(ctx, out)
	}
	return out, nil
}

// WordLength restituisce il tool che conta i caratteri di una parola
func WordLength() *Func {
	return NewFunc(NameWordLength, "Get the length of a word", func(_ context.Context, input string) (string, error) {
		return strconv.Itoa(GetWordLength(cleanInput(input))), nil
	})
}

// Reverse restituisce il tool che inverte una parola
func Reverse() *Func {
	return NewFunc(NameReverseWord, "Reverse a word", func(_ context.Context, input string) (string, error) {
		return ReverseWord(cleanInput(input)), nil
	})
}

// Area restituisce il tool che calcola l'area di un rettangolo da "length,width"
func Area() *Func {
	return NewFunc(NameCalculateArea, "Calculate rectangle area. Input should be 'length,width'", func(_ context.Context, input string) (string, error) {
		length, width, err := ParseDimensions(input)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(CalculateArea(length, width), 'f', -1, 64), nil
	})
}

// UpperCase restituisce il tool che converte il testo in maiuscolo
func UpperCase() *Func {
	return NewFunc(NameUpperCase, "Convert text to uppercase", func(_ context.Context, input string) (string, error) {
		return ToUpper(input), nil
	})
}

// Calculator restituisce il calcolatore sandboxed di langchaingo. Gli
// errori di valutazione tornano come testo dell'osservazione.
func Calculator(handler callbacks.Handler) *Func {
	calc := lctools.Calculator{}
	f := NewFunc(NameCalculator, "Perform basic math calculations. Input should be a math expression.", calc.Call)
	f.CallbacksHandler = handler
	return f
}

// LLMMath restituisce un tool "Calculator" che risolve problemi matematici
// tramite una LLMMathChain
func LLMMath(model llms.Model) *Func {
	chain := chains.NewLLMMathChain(model)
	return NewFunc(NameCalculator, "Useful for when you need to answer questions about math.", func(ctx context.Context, input string) (string, error) {
		out, err := chains.Run(ctx, chain, input)
		if err != nil {
			return "", fmt.Errorf("llm math: %w", err)
		}
		return out, nil
	})
}

// Wikipedia restituisce il tool di ricerca su Wikipedia
func Wikipedia(userAgent string) *Func {
	wiki := wikipedia.New(userAgent)
	return NewFunc(NameWikipedia, wiki.Description(), wiki.Call)
}

// ParseDimensions interpreta l'input "length,width"; gli spazi sono tollerati
func ParseDimensions(input string) (float64, float64, error) {
	parts := strings.Split(cleanInput(input), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: expected 'length,width', got %q", ErrInvalidInput, input)
	}

	length, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid length %q", ErrInvalidInput, parts[0])
	}
	width, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid width %q", ErrInvalidInput, parts[1])
	}

	return length, width, nil
}

// cleanInput rimuove spazi e virgolette che i modelli aggiungono spesso
func cleanInput(input string) string {
	return strings.Trim(strings.TrimSpace(input), `"'`)
}

// Offline restituisce i tool che non richiedono rete né modello, indicizzati per nome
func Offline(handler callbacks.Handler) map[string]lctools.Tool {
	set := map[string]lctools.Tool{
		NameWordLength:    WordLength(),
		NameReverseWord:   Reverse(),
		NameCalculateArea: Area(),
		NameUpperCase:     UpperCase(),
		NameCalculator:    Calculator(handler),
	}
	for _, t := range set {
		if f, ok := t.(*Func); ok {
			f.CallbacksHandler = handler
		}
	}
	return set
}

// Names restituisce i nomi ordinati di un insieme di tool
func Names(set map[string]lctools.Tool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup cerca un tool per nome, senza distinzione tra maiuscole e minuscole
func Lookup(set map[string]lctools.Tool, name string) (lctools.Tool, error) {
	for key, t := range set {
		if strings.EqualFold(key, name) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}
