package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultGenerationModel = "HuggingFaceTB/SmolLM3-3B"

// OpenAIGenerator calls an OpenAI compatible completions endpoint (vLLM,
// TGI, Ollama or OpenAI itself).
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator builds a generator bound to baseURL and model.
// An empty model selects DefaultGenerationModel.
func NewOpenAIGenerator(baseURL string, apiKey string, model string) (*OpenAIGenerator, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("base URL is empty")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultGenerationModel
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Generate returns the continuation of prompt. Knobs missing from the
// completions schema are sent as extra fields understood by vLLM and TGI.
func (g *OpenAIGenerator) Generate(
	ctx context.Context,
	prompt string,
	opts GenerateOptions,
) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is empty")
	}

	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(g.model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(prompt),
		},
		Temperature: openai.Float(0),
	}
	if opts.MaxNewTokens > 0 {
		params.MaxTokens = openai.Int(opts.MaxNewTokens)
	}

	var reqOpts []option.RequestOption
	if opts.NumBeams > 1 {
		reqOpts = append(reqOpts,
			option.WithJSONSet("use_beam_search", true),
			option.WithJSONSet("best_of", opts.NumBeams))
	}
	if opts.RepetitionPenalty > 0 {
		reqOpts = append(reqOpts, option.WithJSONSet("repetition_penalty", opts.RepetitionPenalty))
	}
	if opts.NoRepeatNGramSize > 0 {
		reqOpts = append(reqOpts, option.WithJSONSet("no_repeat_ngram_size", opts.NoRepeatNGramSize))
	}
	if opts.EarlyStopping {
		reqOpts = append(reqOpts, option.WithJSONSet("early_stopping", true))
	}

	resp, err := g.client.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response has no choices (model = %s)", g.model)
	}

	return strings.TrimSpace(resp.Choices[0].Text), nil
}
