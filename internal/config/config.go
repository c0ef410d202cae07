package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config carries every deployment-tunable knob for the generation pipeline.
// Retry and poll parameters are policy, not contract; the defaults below are
// the documented values.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`

	EngineBaseURL string        `env:"ENGINE_BASE_URL,default=http://localhost:8188"`
	EngineTimeout time.Duration `env:"ENGINE_TIMEOUT,default=30s"`

	// Submission retry policy for transient engine errors.
	SubmitMaxAttempts int           `env:"ENGINE_SUBMIT_MAX_ATTEMPTS,default=3"`
	SubmitRetryDelay  time.Duration `env:"ENGINE_SUBMIT_RETRY_DELAY,default=2s"`

	// Poll loop bounds while waiting on the engine.
	PollInterval time.Duration `env:"ENGINE_POLL_INTERVAL,default=2s"`
	PollTimeout  time.Duration `env:"ENGINE_POLL_TIMEOUT,default=10m"`

	// Generation parameter bounds enforced at admission.
	MinDimension int `env:"GEN_MIN_DIMENSION,default=64"`
	MaxDimension int `env:"GEN_MAX_DIMENSION,default=2048"`
	MaxBatchSize int `env:"GEN_MAX_BATCH_SIZE,default=8"`

	// Resolvable model names. Comma-separated env lists, Leavend-style
	// allowlists rather than engine capability discovery.
	CheckpointModels []string `env:"GEN_CHECKPOINT_MODELS,default=sd_xl_base_1.0,sd15,m1"`
	LoraModels       []string `env:"GEN_LORA_MODELS,default=detail_tweaker,add_saturation"`

	WorkerCount  int           `env:"MAX_WORKERS,default=4"`
	LockDuration time.Duration `env:"WORKER_LOCK_DURATION,default=1m"`

	// Where the engine drops raw artifacts and where organized outputs go.
	EngineOutputPath string `env:"ENGINE_OUTPUT_PATH,default=./data/engine"`
	OutputBasePath   string `env:"OUTPUT_BASE_PATH,default=./data/outputs"`
}

func LoadFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.EngineBaseURL) == "" {
		errs = append(errs, "ENGINE_BASE_URL is required")
	}
	if cfg.SubmitMaxAttempts < 1 {
		errs = append(errs, "ENGINE_SUBMIT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.SubmitRetryDelay <= 0 {
		errs = append(errs, "ENGINE_SUBMIT_RETRY_DELAY must be positive")
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, "ENGINE_POLL_INTERVAL must be positive")
	}
	if cfg.PollTimeout <= cfg.PollInterval {
		errs = append(errs, "ENGINE_POLL_TIMEOUT must exceed ENGINE_POLL_INTERVAL")
	}
	if cfg.MinDimension < 1 || cfg.MaxDimension < cfg.MinDimension {
		errs = append(errs, "GEN_MIN_DIMENSION/GEN_MAX_DIMENSION bounds are inverted")
	}
	if cfg.MaxBatchSize < 1 {
		errs = append(errs, "GEN_MAX_BATCH_SIZE must be at least 1")
	}
	if cfg.WorkerCount < 1 {
		errs = append(errs, "MAX_WORKERS must be at least 1")
	}
	if strings.TrimSpace(cfg.OutputBasePath) == "" {
		errs = append(errs, "OUTPUT_BASE_PATH is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
