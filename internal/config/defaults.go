package config

import (
	"time"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
)

// LLM defaults.
const (
	DefaultProvider    = "openai"
	DefaultModel       = "gpt-4o-mini"
	DefaultAPIKeyEnv   = "OPENAI_API_KEY"
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2000
)

// Auditor execution defaults.
const (
	DefaultMaxRetries  = 3
	DefaultTimeout     = 60 * time.Second
	DefaultBaseDelay   = time.Second
	DefaultMaxParallel = 4
)

// Pipeline and alignment defaults.
const (
	DefaultMaxIterations     = 3
	DefaultAlignmentMinScore = 0.7
)

// Storage and runtime defaults.
const (
	DefaultCacheBackend      = "file"
	DefaultCacheDir          = ".council/cache"
	DefaultStorePath         = ".council/runs.db"
	DefaultTemporalHostPort  = "localhost:7233"
	DefaultTemporalNamespace = "default"
	DefaultTemporalTaskQueue = "council"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// DefaultStages is the stage order used when neither the config nor the
// template file names one.
var DefaultStages = []string{"research_brief", "market_scan", "vision", "prd", "architecture", "implementation_plan"}

// Default returns the configuration used when no file, env or flag
// overrides a value.
func Default() *Config {
	gates := make(map[string]int)
	for sev, limit := range domain.DefaultBlockingGates() {
		gates[string(sev)] = limit
	}
	return &Config{
		LLM: LLMConfig{
			Provider:    DefaultProvider,
			APIKeyEnv:   DefaultAPIKeyEnv,
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
		Auditor: AuditorConfig{
			MaxRetries:  DefaultMaxRetries,
			Timeout:     DefaultTimeout,
			BaseDelay:   DefaultBaseDelay,
			MaxParallel: DefaultMaxParallel,
		},
		Consensus: ConsensusConfig{
			ScoreThreshold:        domain.DefaultScoreThreshold,
			ApprovalThreshold:     domain.DefaultApprovalThreshold,
			TrimPercentage:        domain.DefaultTrimPercentage,
			DisagreementThreshold: domain.DefaultDisagreementThreshold,
			BlockingGates:         gates,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: DefaultCacheBackend,
			Dir:     DefaultCacheDir,
		},
		Pipeline: PipelineConfig{
			MaxIterations: DefaultMaxIterations,
		},
		Alignment: AlignmentConfig{
			Enabled:  false,
			MinScore: DefaultAlignmentMinScore,
		},
		Store: StoreConfig{Path: DefaultStorePath},
		Temporal: TemporalConfig{
			HostPort:  DefaultTemporalHostPort,
			Namespace: DefaultTemporalNamespace,
			TaskQueue: DefaultTemporalTaskQueue,
		},
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}
