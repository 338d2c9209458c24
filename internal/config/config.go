package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Token        string  `env:"TOKEN"`
	AllowedUsers []int64 `env:"ALLOWED_USERS"`
	DBPath       string  `env:"DB_PATH"       envDefault:"db.sqlite" validate:"required"`

	Generation GenerationConfig `envPrefix:"GENERATION_"`
	ZeroShot   ZeroShotConfig   `envPrefix:"ZERO_SHOT_"`

	// ShortWordsThreshold is the word count under which the rule summary is
	// used. Negative disables the rule path.
	ShortWordsThreshold int `env:"SHORT_WORDS_THRESHOLD" envDefault:"6"`
	MaxSentences        int `env:"MAX_SENTENCES"         envDefault:"3" validate:"gte=1"`
	BatchParallelism    int `env:"BATCH_PARALLELISM"     envDefault:"4" validate:"gte=1,lte=64"`

	// MetricsAddr is where /metrics is served. Empty disables the server.
	MetricsAddr string `env:"METRICS_ADDR"`
	// OutputDir holds batch results. Empty means the OS temp dir.
	OutputDir string `env:"OUTPUT_DIR"`
}

// GenerationConfig points at an OpenAI compatible completions server. An
// empty BaseURL disables generation.
type GenerationConfig struct {
	BaseURL string `env:"BASE_URL" validate:"omitempty,url"`
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL"    envDefault:"HuggingFaceTB/SmolLM3-3B"`
}

// ZeroShotConfig points at a Hugging Face inference server. An empty URL
// disables zero-shot classification.
type ZeroShotConfig struct {
	URL   string `env:"URL"   validate:"omitempty,url"`
	Token string `env:"TOKEN"`
	Model string `env:"MODEL" envDefault:"joeddav/xlm-roberta-large-xnli"`
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)
	cfg.Generation.BaseURL = strings.TrimSpace(cfg.Generation.BaseURL)
	cfg.ZeroShot.URL = strings.TrimSpace(cfg.ZeroShot.URL)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// RequireToken fails when the bot token is missing.
func (c Config) RequireToken() error {
	if c.Token == "" {
		return errors.New("TOKEN is required")
	}

	return nil
}
