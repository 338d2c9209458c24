package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"triagem/internal/backend"
	"triagem/internal/domain"
	"triagem/internal/metrics"
	"triagem/internal/textnorm"
)

const (
	EngineName = "summarizer"

	DefaultMaxSentences        = 3
	DefaultShortWordsThreshold = 6

	smokePrompt       = "Resuma em 1 frase: teste."
	smokeMaxNewTokens = 24

	promptTemplate = `Você é um analista de suporte. Resuma o texto do chamado em português do Brasil,
em apenas uma frase curta e objetiva, na terceira pessoa.
Não escreva cabeçalhos nem explique seus passos.

Texto:
"""%s"""
Saída:`
)

//nolint:gochecknoglobals // Immutable decoding settings.
var summaryDecoding = GenerateOptions{
	MaxNewTokens:      80,
	NumBeams:          2,
	RepetitionPenalty: 1.25,
	NoRepeatNGramSize: 3,
	EarlyStopping:     true,
}

type Options struct {
	// ShortWordsThreshold is the word count up to which the rule based
	// summary is used. Zero selects the default, negative disables the rule.
	ShortWordsThreshold int
	Metrics             *metrics.Metrics
}

// Engine summarizes ticket texts with a generator when one is available and
// degrades to deterministic summaries otherwise. Safe for concurrent use.
type Engine struct {
	handle              *backend.Handle[Generator]
	shortWordsThreshold int
	metrics             *metrics.Metrics
	log                 *slog.Logger
}

func NewEngine(loader backend.Loader[Generator], opts Options, log *slog.Logger) *Engine {
	threshold := opts.ShortWordsThreshold
	if threshold == 0 {
		threshold = DefaultShortWordsThreshold
	}

	return &Engine{
		handle:              backend.NewHandle(EngineName, loader, log),
		shortWordsThreshold: threshold,
		metrics:             opts.Metrics,
		log:                 log,
	}
}

// NewLoader wraps build with a smoke generation. A generator that cannot
// answer the smoke prompt is reported as a load failure.
func NewLoader(build func(ctx context.Context) (Generator, error)) backend.Loader[Generator] {
	if build == nil {
		return nil
	}

	return func(ctx context.Context) (Generator, error) {
		g, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build generator: %w", err)
		}

		if _, err = g.Generate(ctx, smokePrompt, GenerateOptions{MaxNewTokens: smokeMaxNewTokens}); err != nil {
			return nil, fmt.Errorf("run smoke generation: %w", err)
		}

		return g, nil
	}
}

// Summarize returns a short PT-BR summary of text. It never fails: empty
// input yields "" and backend problems yield a fallback summary.
func (e *Engine) Summarize(ctx context.Context, text string, maxSentences int) string {
	return e.Run(ctx, text, maxSentences).Text
}

// Run is Summarize that also reports which path produced the summary.
func (e *Engine) Run(ctx context.Context, text string, maxSentences int) Summary {
	text = textnorm.Canonical(strings.TrimSpace(text))
	if text == "" {
		return Summary{Source: domain.SourceNone}
	}

	summary := e.run(ctx, text, maxSentences)
	e.metrics.ObserveInference(EngineName, string(summary.Source))

	return summary
}

// State reports the backend state without loading it.
func (e *Engine) State() backend.State {
	return e.handle.State()
}

// Warmup resolves the backend ahead of the first request.
func (e *Engine) Warmup(ctx context.Context) backend.State {
	_, ok := e.handle.Resolve(ctx)
	e.metrics.SetBackendReady(EngineName, ok)

	return e.handle.State()
}

func (e *Engine) run(ctx context.Context, text string, maxSentences int) Summary {
	if e.shortWordsThreshold > 0 && textnorm.CountWords(text) <= e.shortWordsThreshold {
		return Summary{Text: RuleBased(text), Source: domain.SourceRule}
	}

	generator, ok := e.handle.Resolve(ctx)
	e.metrics.SetBackendReady(EngineName, ok)

	if !ok {
		return Summary{Text: Naive(text, maxSentences), Source: domain.SourceFallback}
	}

	out, err := generator.Generate(ctx, fmt.Sprintf(promptTemplate, text), summaryDecoding)
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to generate summary so fallback will be used",
			"error", err,
			"textLen", len(text),
			"maxSentences", maxSentences)

		return Summary{Text: Naive(text, maxSentences), Source: domain.SourceFallback}
	}

	return Summary{
		Text:   textnorm.NormalizeSummary(strings.TrimSpace(out), maxSentences),
		Source: domain.SourceModel,
	}
}
