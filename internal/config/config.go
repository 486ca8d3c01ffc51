// Package config loads council configuration from defaults, an optional
// YAML file, COUNCIL_* environment variables and bound CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ErikCohenDev/consensus-council/internal/alignment"
	"github.com/ErikCohenDev/consensus-council/internal/auditor"
	"github.com/ErikCohenDev/consensus-council/internal/cache"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/llm"
	"github.com/ErikCohenDev/consensus-council/internal/llm/ratelimit"
	"github.com/ErikCohenDev/consensus-council/internal/revision"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the full council configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auditor   AuditorConfig   `mapstructure:"auditor"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Alignment AlignmentConfig `mapstructure:"alignment"`
	Revision  RevisionConfig  `mapstructure:"revision"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Store     StoreConfig     `mapstructure:"store"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Log       LogConfig       `mapstructure:"log"`
}

// LLMConfig selects the provider and model.
type LLMConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=openai openrouter"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	// APIKey takes precedence over APIKeyEnv.
	APIKey      string  `mapstructure:"api_key"`
	APIKeyEnv   string  `mapstructure:"api_key_env"`
	Model       string  `mapstructure:"model" validate:"required"`
	Temperature float64 `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxTokens   int64   `mapstructure:"max_tokens" validate:"min=0"`

	// Models overrides Model per auditor role.
	Models  map[string]string         `mapstructure:"models"`
	Pricing map[string]llm.ModelPrice `mapstructure:"pricing"`
}

// ResolvedAPIKey returns APIKey, or the value of the APIKeyEnv variable.
func (c LLMConfig) ResolvedAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// RateLimitConfig throttles provider requests. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

// AuditorConfig controls each auditor call.
type AuditorConfig struct {
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=1"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"min=0"`
	MaxParallel int           `mapstructure:"max_parallel" validate:"min=1"`
}

// ConsensusConfig mirrors domain.ConsensusPolicy.
type ConsensusConfig struct {
	ScoreThreshold        float64        `mapstructure:"score_threshold"`
	ApprovalThreshold     float64        `mapstructure:"approval_threshold"`
	TrimPercentage        float64        `mapstructure:"trim_percentage"`
	DisagreementThreshold float64        `mapstructure:"disagreement_threshold"`
	BlockingGates         map[string]int `mapstructure:"blocking_gates"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Backend       string `mapstructure:"backend" validate:"omitempty,oneof=memory file redis"`
	Dir           string `mapstructure:"dir" validate:"required_if=Backend file"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`
}

// PipelineConfig sets the default stage order and iteration limit.
type PipelineConfig struct {
	Stages        []string `mapstructure:"stages" validate:"dive,required"`
	MaxIterations int      `mapstructure:"max_iterations" validate:"min=1"`
}

// AlignmentConfig enables the model-backed alignment check.
type AlignmentConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	MinScore float64 `mapstructure:"min_score" validate:"min=0,max=1"`
}

// RevisionConfig enables model-written revisions between iterations.
// Model empty uses llm.model.
type RevisionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// TemplatesConfig points at a template file. Empty uses the built-in set.
type TemplatesConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TemporalConfig addresses the Temporal frontend.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port" validate:"required"`
	Namespace string `mapstructure:"namespace" validate:"required"`
	TaskQueue string `mapstructure:"task_queue" validate:"required"`
}

// LogConfig configures the default slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Validate checks field ranges and the consensus policy.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.ConsensusPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: consensus: %w", ErrInvalidConfig, err)
	}
	for sev := range c.Consensus.BlockingGates {
		if !domain.Severity(sev).IsKnown() {
			return fmt.Errorf("%w: consensus.blocking_gates: unknown severity %q", ErrInvalidConfig, sev)
		}
	}
	return nil
}

// ConsensusPolicy converts the consensus section to a domain policy.
func (c *Config) ConsensusPolicy() domain.ConsensusPolicy {
	gates := make(map[domain.Severity]int, len(c.Consensus.BlockingGates))
	for sev, limit := range c.Consensus.BlockingGates {
		gates[domain.Severity(sev)] = limit
	}
	return domain.ConsensusPolicy{
		ScoreThreshold:        c.Consensus.ScoreThreshold,
		ApprovalThreshold:     c.Consensus.ApprovalThreshold,
		TrimPercentage:        c.Consensus.TrimPercentage,
		DisagreementThreshold: c.Consensus.DisagreementThreshold,
		BlockingGates:         gates,
	}
}

// WorkerConfig returns the base auditor worker configuration.
func (c *Config) WorkerConfig() auditor.Config {
	return auditor.Config{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		MaxRetries:  c.Auditor.MaxRetries,
		Timeout:     c.Auditor.Timeout,
		BaseDelay:   c.Auditor.BaseDelay,
		EnableCache: c.Cache.Enabled,
	}
}

// AlignmentValidatorConfig returns the alignment validator configuration.
func (c *Config) AlignmentValidatorConfig() alignment.Config {
	return alignment.Config{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		MinScore:    c.Alignment.MinScore,
		MaxRetries:  c.Auditor.MaxRetries,
		Timeout:     c.Auditor.Timeout,
		BaseDelay:   c.Auditor.BaseDelay,
		EnableCache: c.Cache.Enabled,
	}
}

// RevisionerConfig returns the revision strategy configuration.
func (c *Config) RevisionerConfig() revision.Config {
	model := c.Revision.Model
	if model == "" {
		model = c.LLM.Model
	}
	return revision.Config{
		Provider:   c.LLM.Provider,
		Model:      model,
		MaxRetries: c.Auditor.MaxRetries,
		Timeout:    c.Auditor.Timeout,
		BaseDelay:  c.Auditor.BaseDelay,
	}
}

// CacheBackendConfig returns the cache factory configuration.
func (c *Config) CacheBackendConfig() cache.Config {
	return cache.Config{
		Enabled:       c.Cache.Enabled,
		Backend:       c.Cache.Backend,
		Dir:           c.Cache.Dir,
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Cache.RedisPassword,
		RedisDB:       c.Cache.RedisDB,
	}
}

// RateLimiterConfig returns the provider rate limit configuration.
func (c *Config) RateLimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		Burst:             c.RateLimit.Burst,
	}
}
