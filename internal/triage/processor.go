package triage

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"triagem/internal/backend"
	"triagem/internal/classifier"
	"triagem/internal/domain"
	"triagem/internal/summarizer"
)

const DefaultParallelism = 4

type Summarizer interface {
	Run(ctx context.Context, text string, maxSentences int) summarizer.Summary
}

type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) classifier.Result
}

type stateReporter interface {
	State() backend.State
}

type Options struct {
	// Parallelism bounds the number of rows triaged at once.
	Parallelism  int
	MaxSentences int
	// OutputDir is where batch result directories are created. Empty means
	// the OS temp dir.
	OutputDir string
}

// Processor runs summary and classification for single texts and CSV batches.
type Processor struct {
	summarizer   Summarizer
	classifier   Classifier
	validate     *validator.Validate
	parallelism  int
	maxSentences int
	outputDir    string
	log          *slog.Logger
}

func New(s Summarizer, c Classifier, opts Options, log *slog.Logger) *Processor {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	maxSentences := opts.MaxSentences
	if maxSentences <= 0 {
		maxSentences = summarizer.DefaultMaxSentences
	}

	return &Processor{
		summarizer:   s,
		classifier:   c,
		validate:     validator.New(),
		parallelism:  parallelism,
		maxSentences: maxSentences,
		outputDir:    opts.OutputDir,
		log:          log,
	}
}

// ParseLabels splits a comma or semicolon separated label list, trimming
// entries and dropping blank ones.
func ParseLabels(raw string) []string {
	return lo.FilterMap(strings.Split(strings.ReplaceAll(raw, ";", ","), ","), func(label string, _ int) (string, bool) {
		label = strings.TrimSpace(label)
		return label, label != ""
	})
}

// ProcessText summarizes and classifies one ticket text. An empty label list
// selects the default categories.
func (p *Processor) ProcessText(ctx context.Context, text string, labels []string) domain.Ticket {
	if len(labels) == 0 {
		labels = nil
	}

	summary := p.summarizer.Run(ctx, text, p.maxSentences)
	result := p.classifier.Classify(ctx, text, labels)

	return domain.Ticket{
		Text:          text,
		Summary:       summary.Text,
		SummarySource: summary.Source,
		Label:         result.Label,
		Scores:        result.Scores,
		LabelSource:   result.Source,
		Language:      detectLanguage(text),
		CreatedAt:     time.Now().UTC(),
	}
}

// BackendsReady reports whether the summary and label model backends are
// loaded. Engines that do not expose a state count as not ready.
func (p *Processor) BackendsReady() (bool, bool) {
	return backendReady(p.summarizer), backendReady(p.classifier)
}

func backendReady(engine any) bool {
	r, ok := engine.(stateReporter)
	return ok && r.State() == backend.Ready
}

// ProcessTexts triages texts on a bounded worker pool. The output keeps the
// input order.
func (p *Processor) ProcessTexts(ctx context.Context, texts []string, labels []string) []domain.Ticket {
	tickets := make([]domain.Ticket, len(texts))
	if len(texts) == 0 {
		return tickets
	}

	workerCount := min(p.parallelism, len(texts))

	type task struct {
		index int
		text  string
	}

	tasks := make(chan task)
	var wg sync.WaitGroup

	for range workerCount {
		wg.Go(func() {
			for t := range tasks {
				tickets[t.index] = p.ProcessText(ctx, t.text, labels)
			}
		})
	}

	for i, text := range texts {
		tasks <- task{index: i, text: text}
	}

	close(tasks)
	wg.Wait()

	return tickets
}

func detectLanguage(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	info := whatlanggo.Detect(text)
	if info.Lang < 0 {
		return ""
	}

	return info.Lang.Iso6391()
}
