package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COUNCIL_LLM_MODEL.
const EnvPrefix = "COUNCIL"

// NewViper returns a viper instance seeded with defaults and environment
// lookup. Callers bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, if non-empty, or an optional council.yaml from the
// working directory, then unmarshals and validates. An explicitly named
// file must exist.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("council")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading council.yaml: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.endpoint", d.LLM.Endpoint)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.api_key_env", d.LLM.APIKeyEnv)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)

	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("auditor.max_retries", d.Auditor.MaxRetries)
	v.SetDefault("auditor.timeout", d.Auditor.Timeout)
	v.SetDefault("auditor.base_delay", d.Auditor.BaseDelay)
	v.SetDefault("auditor.max_parallel", d.Auditor.MaxParallel)

	v.SetDefault("consensus.score_threshold", d.Consensus.ScoreThreshold)
	v.SetDefault("consensus.approval_threshold", d.Consensus.ApprovalThreshold)
	v.SetDefault("consensus.trim_percentage", d.Consensus.TrimPercentage)
	v.SetDefault("consensus.disagreement_threshold", d.Consensus.DisagreementThreshold)
	v.SetDefault("consensus.blocking_gates", d.Consensus.BlockingGates)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)

	v.SetDefault("pipeline.stages", []string{})
	v.SetDefault("pipeline.max_iterations", d.Pipeline.MaxIterations)

	v.SetDefault("alignment.enabled", d.Alignment.Enabled)
	v.SetDefault("alignment.min_score", d.Alignment.MinScore)

	v.SetDefault("revision.enabled", d.Revision.Enabled)
	v.SetDefault("revision.model", d.Revision.Model)

	v.SetDefault("templates.path", d.Templates.Path)
	v.SetDefault("store.path", d.Store.Path)

	v.SetDefault("temporal.host_port", d.Temporal.HostPort)
	v.SetDefault("temporal.namespace", d.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", d.Temporal.TaskQueue)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
