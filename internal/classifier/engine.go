package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"triagem/internal/backend"
	"triagem/internal/domain"
	"triagem/internal/metrics"
	"triagem/internal/textnorm"
)

const (
	EngineName = "classifier"

	smokeText = "Teste"
)

var ErrMalformedRanking = errors.New("ranking is malformed")

type Options struct {
	Metrics *metrics.Metrics
}

// Engine classifies ticket texts with a zero-shot backend when one is
// available and with keyword heuristics otherwise. Safe for concurrent use.
type Engine struct {
	handle  *backend.Handle[ZeroShot]
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewEngine(loader backend.Loader[ZeroShot], opts Options, log *slog.Logger) *Engine {
	return &Engine{
		handle:  backend.NewHandle(EngineName, loader, log),
		metrics: opts.Metrics,
		log:     log,
	}
}

// NewLoader wraps build with a smoke classification over the default labels.
func NewLoader(build func(ctx context.Context) (ZeroShot, error)) backend.Loader[ZeroShot] {
	if build == nil {
		return nil
	}

	return func(ctx context.Context) (ZeroShot, error) {
		zs, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build zero-shot client: %w", err)
		}

		if _, err = zs.ZeroShot(ctx, smokeText, DefaultLabels(), HypothesisTemplate); err != nil {
			return nil, fmt.Errorf("run smoke classification: %w", err)
		}

		return zs, nil
	}
}

// FilterLabels trims labels and drops blank entries. A nil slice means no
// labels were supplied and yields the defaults. Duplicates are kept.
func FilterLabels(labels []string) []string {
	if labels == nil {
		return DefaultLabels()
	}

	return lo.FilterMap(labels, func(label string, _ int) (string, bool) {
		label = textnorm.Canonical(strings.TrimSpace(label))
		return label, label != ""
	})
}

// Classify picks the best label for text. It never fails: empty text or an
// empty label list yields an empty result and backend problems yield the
// heuristic result.
func (e *Engine) Classify(ctx context.Context, text string, labels []string) Result {
	text = textnorm.Canonical(strings.TrimSpace(text))
	labels = FilterLabels(labels)

	if text == "" || len(labels) == 0 {
		return emptyResult()
	}

	result := e.classify(ctx, text, labels)
	e.metrics.ObserveInference(EngineName, string(result.Source))

	return result
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

func (e *Engine) classify(ctx context.Context, text string, labels []string) Result {
	zs, ok := e.handle.Resolve(ctx)
	e.metrics.SetBackendReady(EngineName, ok)

	if !ok {
		return Heuristic(text, labels)
	}

	ranking, err := zs.ZeroShot(ctx, text, labels, HypothesisTemplate)
	if err == nil {
		err = validateRanking(ranking, labels)
	}
	if err != nil {
		e.log.ErrorContext(ctx, "Failed to classify text so fallback will be used",
			"error", err,
			"textLen", len(text),
			"labelCount", len(labels))

		return Heuristic(text, labels)
	}

	scores := make(map[string]float64, len(ranking))
	for _, ls := range ranking {
		scores[ls.Label] = ls.Score
	}

	top := ranking[0].Label
	for _, ls := range ranking[1:] {
		if scores[ls.Label] > scores[top] {
			top = ls.Label
		}
	}

	return Result{
		Label:  top,
		Scores: scores,
		Source: domain.SourceModel,
	}
}

// validateRanking checks that ranking is non-empty and covers every label.
// Scores are taken as reported, without renormalization.
func validateRanking(ranking Ranking, labels []string) error {
	if len(ranking) == 0 {
		return fmt.Errorf("%w: no labels", ErrMalformedRanking)
	}

	ranked := lo.SliceToMap(ranking, func(ls LabelScore) (string, struct{}) {
		return ls.Label, struct{}{}
	})

	if missing := lo.Reject(labels, func(label string, _ int) bool {
		_, ok := ranked[label]
		return ok
	}); len(missing) > 0 {
		return fmt.Errorf("%w: missing labels %v", ErrMalformedRanking, missing)
	}

	return nil
}
