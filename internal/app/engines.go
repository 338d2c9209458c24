// Package app wires configuration into the triage engines shared by the bot
// service and the CLI.
package app

import (
	"context"
	"log/slog"

	"triagem/internal/backend"
	"triagem/internal/classifier"
	"triagem/internal/config"
	"triagem/internal/metrics"
	"triagem/internal/summarizer"
	"triagem/internal/triage"
)

type Engines struct {
	Summarizer *summarizer.Engine
	Classifier *classifier.Engine
	Processor  *triage.Processor
}

// NewEngines builds both engines and the processor on top of them. A backend
// whose address is empty is left unconfigured and its engine runs on the
// fallback path.
func NewEngines(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *slog.Logger) *Engines {
	s := summarizer.NewEngine(summarizerLoader(ctx, cfg.Generation, log), summarizer.Options{
		ShortWordsThreshold: cfg.ShortWordsThreshold,
		Metrics:             m,
	}, log)

	c := classifier.NewEngine(classifierLoader(ctx, cfg.ZeroShot, log), classifier.Options{
		Metrics: m,
	}, log)

	p := triage.New(s, c, triage.Options{
		Parallelism:  cfg.BatchParallelism,
		MaxSentences: cfg.MaxSentences,
		OutputDir:    cfg.OutputDir,
	}, log)

	return &Engines{Summarizer: s, Classifier: c, Processor: p}
}

// Warmup resolves both backends so the first request does not pay for it.
func (e *Engines) Warmup(ctx context.Context, log *slog.Logger) {
	summarizerState := e.Summarizer.Warmup(ctx)
	classifierState := e.Classifier.Warmup(ctx)

	log.InfoContext(ctx, "Engines are warmed up",
		"summarizerState", summarizerState.String(),
		"classifierState", classifierState.String())
}

func summarizerLoader(ctx context.Context, cfg config.GenerationConfig, log *slog.Logger) backend.Loader[summarizer.Generator] {
	if cfg.BaseURL == "" {
		log.WarnContext(ctx, "GENERATION_BASE_URL is missing so fallback will be used",
			"envVar", "GENERATION_BASE_URL")

		return nil
	}

	log.InfoContext(ctx, "Generation backend is configured",
		"baseURL", cfg.BaseURL,
		"model", cfg.Model)

	return summarizer.NewLoader(func(context.Context) (summarizer.Generator, error) {
		return summarizer.NewOpenAIGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model)
	})
}

func classifierLoader(ctx context.Context, cfg config.ZeroShotConfig, log *slog.Logger) backend.Loader[classifier.ZeroShot] {
	if cfg.URL == "" {
		log.WarnContext(ctx, "ZERO_SHOT_URL is missing so fallback will be used",
			"envVar", "ZERO_SHOT_URL")

		return nil
	}

	log.InfoContext(ctx, "Zero-shot backend is configured",
		"url", cfg.URL,
		"model", cfg.Model)

	return classifier.NewLoader(func(context.Context) (classifier.ZeroShot, error) {
		return classifier.NewHFClient(cfg.URL, cfg.Token, cfg.Model)
	})
}
