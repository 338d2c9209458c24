package summarizer

import (
	"context"

	"triagem/internal/domain"
)

// GenerateOptions are deterministic decoding knobs passed to the generator.
type GenerateOptions struct {
	MaxNewTokens      int64
	NumBeams          int64
	RepetitionPenalty float64
	NoRepeatNGramSize int64
	EarlyStopping     bool
}

// Generator continues a prompt and returns only the generated continuation.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Summary is a summary together with the path that produced it.
type Summary struct {
	Text   string
	Source domain.Source
}
