package examples

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/biodoia/goleapchain/internal/observability"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrUnknownSection = errors.New("unknown section")
	ErrPanic          = errors.New("panic while running examples")
)

// ModelFactory crea un modello; temperature nil usa quella configurata
type ModelFactory func(temperature *float64) (llms.Model, error)

// Exchange è una coppia domanda/risposta di una conversazione
type Exchange struct {
	Input  string
	Output string
}

// Section è un singolo esempio di una suite
type Section struct {
	Key   string
	Title string
	Run   func(ctx context.Context, out io.Writer) error
}

// Suite è una sequenza ordinata di esempi con la sua intestazione
type Suite struct {
	Name        string
	Title       string
	Separator   int
	ErrorLabel  string
	InstallHint string
	Sections    []Section
}

// Keys restituisce le chiavi delle sezioni in ordine
func (s *Suite) Keys() []string {
	keys := make([]string, len(s.Sections))
	for i, section := range s.Sections {
		keys[i] = section.Key
	}
	return keys
}

// Runner esegue le suite scrivendo il risultato su out
type Runner struct {
	out       io.Writer
	apiKey    string
	apiKeyEnv string
	strict    bool
	only      []string
	metrics   *observability.Metrics
	renderer  *lipgloss.Renderer
}

// RunnerOption configura il Runner
type RunnerOption func(*Runner)

// WithStrict fa restituire al Runner l'errore della suite
func WithStrict(strict bool) RunnerOption {
	return func(r *Runner) {
		r.strict = strict
	}
}

// WithOnly limita l'esecuzione alle sezioni indicate
func WithOnly(keys ...string) RunnerOption {
	return func(r *Runner) {
		r.only = append(r.only, keys...)
	}
}

// WithRunnerMetrics registra l'esito delle sezioni
func WithRunnerMetrics(metrics *observability.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// NewRunner crea un Runner; apiKey vuota significa credenziale mancante
func NewRunner(out io.Writer, apiKey, apiKeyEnv string, opts ...RunnerOption) *Runner {
	if apiKeyEnv == "" {
		apiKeyEnv = "OPENAI_API_KEY"
	}
	r := &Runner{
		out:       out,
		apiKey:    apiKey,
		apiKeyEnv: apiKeyEnv,
		renderer:  lipgloss.NewRenderer(out),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run esegue la suite. Gli errori vengono stampati e, salvo modalità
// strict, non vengono restituiti.
func (r *Runner) Run(ctx context.Context, suite *Suite) error {
	sections, err := r.selectSections(suite)
	if err != nil {
		return err
	}

	header := r.renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	fmt.Fprintln(r.out, header.Render(suite.Title))
	fmt.Fprintln(r.out)

	if r.apiKey == "" {
		fmt.Fprintf(r.out, "Warning: %s not set. These examples require an OpenAI API key.\n", r.apiKeyEnv)
		fmt.Fprintf(r.out, "Set it with: export %s='your-api-key-here'\n", r.apiKeyEnv)
		log.Warn().Str("suite", suite.Name).Str("env", r.apiKeyEnv).Msg("Missing API key, skipping suite")
		return nil
	}

	start := time.Now()
	if err := r.runSections(ctx, suite, sections); err != nil {
		fmt.Fprintf(r.out, "%s: %v\n", suite.ErrorLabel, err)
		fmt.Fprintln(r.out, "Make sure you have installed the required packages:")
		fmt.Fprintln(r.out, suite.InstallHint)

		log.Error().Err(err).Str("suite", suite.Name).Msg("Suite failed")
		if r.strict {
			return fmt.Errorf("%s: %w", suite.Name, err)
		}
		return nil
	}

	log.Info().
		Str("suite", suite.Name).
		Int("sections", len(sections)).
		Dur("duration", time.Since(start)).
		Msg("Suite completed")
	return nil
}

func (r *Runner) runSections(ctx context.Context, suite *Suite, sections []Section) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	title := r.renderer.NewStyle().Bold(true)
	separator := strings.Repeat("=", suite.Separator)

	for i, section := range sections {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintf(r.out, "\n%s\n\n", separator)
		}

		fmt.Fprintln(r.out, title.Render(section.Title))
		log.Debug().Str("suite", suite.Name).Str("section", section.Key).Msg("Running section")

		err := section.Run(ctx, r.out)
		r.metrics.RecordSection(suite.Name, err)
		if err != nil {
			log.Debug().Err(err).Str("section", section.Key).Msg("Section failed")
			return err
		}
	}

	return nil
}

func (r *Runner) selectSections(suite *Suite) ([]Section, error) {
	if len(r.only) == 0 {
		return suite.Sections, nil
	}

	wanted := make(map[string]bool, len(r.only))
	for _, key := range r.only {
		found := false
		for _, section := range suite.Sections {
			if section.Key == key {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownSection, key, strings.Join(suite.Keys(), ", "))
		}
		wanted[key] = true
	}

	var selected []Section
	for _, section := range suite.Sections {
		if wanted[section.Key] {
			selected = append(selected, section)
		}
	}
	return selected, nil
}
