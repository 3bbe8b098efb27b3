// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Fields are exported so
// viper can unmarshal into them; access still goes through the struct so a
// single Validate call can vouch for the whole tree.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	LLM       LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Retriever RetrieverConfig `mapstructure:"retriever" yaml:"retriever"`
	Resolver  ResolverConfig  `mapstructure:"resolver" yaml:"resolver"`
	Tracking  TrackingConfig  `mapstructure:"tracking" yaml:"tracking"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PipelineConfig tunes the policy generation pipeline.
type PipelineConfig struct {
	// Workers is the size of the per-vulnerability worker pool.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// MaxPerType caps vulnerabilities per source type. Zero disables the cap.
	MaxPerType int `mapstructure:"max_per_type" yaml:"max_per_type"`
	// DraftTimeout bounds every LLM generation call.
	DraftTimeout time.Duration `mapstructure:"draft_timeout" yaml:"draft_timeout"`
	// OutputDir receives the rendered run reports.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// Expertise selects the default prompt template family.
	Expertise string `mapstructure:"expertise" yaml:"expertise"`
	// ReferencePath optionally overrides the built-in reference policy used
	// for quality scoring.
	ReferencePath string `mapstructure:"reference_path" yaml:"reference_path"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGroq   LLMProvider = "groq"
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	// RequestRate and RequestBurst feed the per-client rate limiter.
	RequestRate  float64                   `mapstructure:"request_rate" yaml:"request_rate"`
	RequestBurst int                       `mapstructure:"request_burst" yaml:"request_burst"`
	Models       map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// RetrieverConfig configures the compliance retrieval index.
type RetrieverConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// TopK is the default number of contexts retrieved per vulnerability.
	TopK int `mapstructure:"top_k" yaml:"top_k"`
	// MinScore drops contexts scoring below the threshold.
	MinScore float64 `mapstructure:"min_score" yaml:"min_score"`
	// CorpusDir optionally points at a directory of additional corpus text
	// files. Empty means the built-in corpus only.
	CorpusDir string `mapstructure:"corpus_dir" yaml:"corpus_dir"`
}

// ResolverConfig configures DAST target resolution.
type ResolverConfig struct {
	// ProbeTimeout bounds a single reachability check.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	// BuildTimeout bounds a docker image build.
	BuildTimeout time.Duration `mapstructure:"build_timeout" yaml:"build_timeout"`
	// ContainerBudget bounds the wait for a started container to become
	// reachable.
	ContainerBudget time.Duration `mapstructure:"container_budget" yaml:"container_budget"`
	// GitHubToken, when set, lets the resolver read repository metadata for
	// deployment candidates. Anonymous access works with lower rate limits.
	GitHubToken string `mapstructure:"github_token" yaml:"github_token"`
	// DockerBinary names the container runtime executable.
	DockerBinary string `mapstructure:"docker_binary" yaml:"docker_binary"`
}

// TrackingBackend names a tracking store implementation.
type TrackingBackend string

const (
	TrackingFile     TrackingBackend = "file"
	TrackingPostgres TrackingBackend = "postgres"
)

// TrackingConfig selects and configures the policy tracking store.
type TrackingConfig struct {
	Backend TrackingBackend `mapstructure:"backend" yaml:"backend"`
	// Path is the JSON document location for the file backend.
	Path string `mapstructure:"path" yaml:"path"`
	// DatabaseURL is the connection string for the postgres backend.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// ProgressBuffer is the per-subscriber event buffer size.
	ProgressBuffer int `mapstructure:"progress_buffer" yaml:"progress_buffer"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "securai")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Pipeline --
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.max_per_type", 0)
	v.SetDefault("pipeline.draft_timeout", "45s")
	v.SetDefault("pipeline.output_dir", "securai-reports")
	v.SetDefault("pipeline.expertise", "intermediate")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "groq-fast")
	v.SetDefault("llm.default_powerful_model", "groq-powerful")
	v.SetDefault("llm.request_rate", 1.0)
	v.SetDefault("llm.request_burst", 2)
	v.SetDefault("llm.models.groq-fast.provider", "groq")
	v.SetDefault("llm.models.groq-fast.model", "llama-3.1-8b-instant")
	v.SetDefault("llm.models.groq-fast.api_timeout", "60s")
	v.SetDefault("llm.models.groq-fast.temperature", 0.3)
	v.SetDefault("llm.models.groq-fast.max_tokens", 1500)
	v.SetDefault("llm.models.groq-powerful.provider", "groq")
	v.SetDefault("llm.models.groq-powerful.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.models.groq-powerful.api_timeout", "60s")
	v.SetDefault("llm.models.groq-powerful.temperature", 0.3)
	v.SetDefault("llm.models.groq-powerful.max_tokens", 1500)

	// -- Retriever --
	v.SetDefault("retriever.enabled", true)
	v.SetDefault("retriever.top_k", 5)
	v.SetDefault("retriever.min_score", 0.05)
	v.SetDefault("retriever.corpus_dir", "")

	// -- Resolver --
	v.SetDefault("resolver.probe_timeout", "10s")
	v.SetDefault("resolver.build_timeout", "5m")
	v.SetDefault("resolver.container_budget", "2m")
	v.SetDefault("resolver.docker_binary", "docker")

	// -- Tracking --
	v.SetDefault("tracking.backend", "file")
	v.SetDefault("tracking.path", "securai-tracking.json")
	v.SetDefault("tracking.database_url", "")

	// -- API --
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.progress_buffer", 256)
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static, so this only fires on a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewFromViper creates a configuration instance from a viper object that
// already has defaults, file contents and env bindings applied.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// Sensitive values come from the environment by convention.
	v.BindEnv("llm.models.groq-fast.api_key", "SECURAI_GROQ_API_KEY")
	v.BindEnv("llm.models.groq-powerful.api_key", "SECURAI_GROQ_API_KEY")
	v.BindEnv("resolver.github_token", "SECURAI_GITHUB_TOKEN")
	v.BindEnv("tracking.database_url", "SECURAI_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 8 {
		return fmt.Errorf("pipeline.workers must be between 1 and 8, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MaxPerType < 0 {
		return fmt.Errorf("pipeline.max_per_type must not be negative")
	}
	if c.Pipeline.DraftTimeout < 30*time.Second || c.Pipeline.DraftTimeout > 60*time.Second {
		return fmt.Errorf("pipeline.draft_timeout must be between 30s and 60s, got %s", c.Pipeline.DraftTimeout)
	}
	if c.Retriever.TopK <= 0 {
		return fmt.Errorf("retriever.top_k must be a positive integer")
	}
	if c.Retriever.MinScore < 0 || c.Retriever.MinScore > 1 {
		return fmt.Errorf("retriever.min_score must be within [0, 1]")
	}
	if c.Resolver.ProbeTimeout <= 0 {
		return fmt.Errorf("resolver.probe_timeout must be a positive duration")
	}
	if c.Resolver.ContainerBudget <= 0 {
		return fmt.Errorf("resolver.container_budget must be a positive duration")
	}
	if err := c.Tracking.Validate(); err != nil {
		return fmt.Errorf("tracking configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the tracking store selection.
func (t *TrackingConfig) Validate() error {
	switch t.Backend {
	case TrackingFile:
		if t.Path == "" {
			return fmt.Errorf("tracking.path is required for the file backend")
		}
	case TrackingPostgres:
		if t.DatabaseURL == "" {
			return fmt.Errorf("tracking.database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown tracking backend %q", t.Backend)
	}
	return nil
}

// Validate checks that the router's default models are actually defined.
func (l *LLMRouterConfig) Validate() error {
	if len(l.Models) == 0 {
		// An empty model map is legal; the drafter is simply unavailable
		// and commands that need it report that at startup.
		return nil
	}
	if _, ok := l.Models[l.DefaultFastModel]; !ok {
		return fmt.Errorf("default_fast_model %q is not defined under llm.models", l.DefaultFastModel)
	}
	if _, ok := l.Models[l.DefaultPowerfulModel]; !ok {
		return fmt.Errorf("default_powerful_model %q is not defined under llm.models", l.DefaultPowerfulModel)
	}
	for name, m := range l.Models {
		switch m.Provider {
		case ProviderGroq, ProviderGemini:
		default:
			return fmt.Errorf("model %q has unsupported provider %q", name, m.Provider)
		}
	}
	return nil
}
