package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables
const (
	EnvPrefix          = "CODEGUARD_"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvJinaAPIKey      = "JINA_API_KEY"
	EnvGitHubToken     = "GITHUB_TOKEN"
)

// Config holds all application configuration
type Config struct {
	Ingest     IngestConfig     `yaml:"ingest"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Retriever  RetrieverConfig  `yaml:"retriever"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Scan       ScanConfig       `yaml:"scan"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// IngestConfig holds repository resolution settings
type IngestConfig struct {
	WorkDir       string        `yaml:"work_dir"` // Parent directory for temporary clones
	MaxFileSizeMB int           `yaml:"max_file_size_mb"`
	CloneTimeout  time.Duration `yaml:"clone_timeout"`
	GitToken      string        `yaml:"git_token"`
	IgnoreDirs    []string      `yaml:"ignore_dirs"` // Added to the built-in list
}

// ChunkerConfig holds chunk sizing settings
type ChunkerConfig struct {
	WindowLines  int `yaml:"window_lines"`
	OverlapLines int `yaml:"overlap_lines"`
	MaxTokens    int `yaml:"max_tokens"`
}

// EmbeddingConfig holds embedding capability settings
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"` // local, openai, jina, ollama
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	CacheSize   int           `yaml:"cache_size"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// IndexConfig selects the vector index backend
type IndexConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	Path    string `yaml:"path"`
}

// RetrieverConfig holds retrieval settings
type RetrieverConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// BackendConfig describes one generation backend. Backends are tried in
// order until one succeeds.
type BackendConfig struct {
	Provider string `yaml:"provider"` // ollama, openai, anthropic
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// PassesConfig enables detection passes independently
type PassesConfig struct {
	Vulnerability bool `yaml:"vulnerability"`
	CodeReview    bool `yaml:"code_review"`
	AutoComment   bool `yaml:"auto_comment"`
}

// GeneratorConfig holds finding generation settings
type GeneratorConfig struct {
	Backends          []BackendConfig `yaml:"backends"`
	Temperature       float64         `yaml:"temperature"`
	MaxTokens         int             `yaml:"max_tokens"`
	Timeout           time.Duration   `yaml:"timeout"`
	MaxAttempts       int             `yaml:"max_attempts"`
	RequestsPerSecond float64         `yaml:"requests_per_second"` // 0 disables pacing
	MaxConcurrent     int             `yaml:"max_concurrent"`
	Passes            PassesConfig    `yaml:"passes"`
}

// AggregatorConfig holds deduplication thresholds
type AggregatorConfig struct {
	OverlapFraction float64 `yaml:"overlap_fraction"`
	TitleSimilarity float64 `yaml:"title_similarity"`
}

// ScanConfig holds lifecycle settings
type ScanConfig struct {
	Workers            int           `yaml:"workers"`
	MaxFailureFraction float64       `yaml:"max_failure_fraction"`
	MaxDuration        time.Duration `yaml:"max_duration"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the Prometheus listener address
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables the listener
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			MaxFileSizeMB: 100,
			CloneTimeout:  5 * time.Minute,
		},
		Chunker: ChunkerConfig{
			WindowLines:  60,
			OverlapLines: 10,
			MaxTokens:    1000,
		},
		Embedding: EmbeddingConfig{
			Provider:    "local",
			CacheSize:   10000,
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
		},
		Index: IndexConfig{
			Backend: "memory",
		},
		Retriever: RetrieverConfig{
			TopK: 3,
		},
		Generator: GeneratorConfig{
			Backends: []BackendConfig{
				{Provider: "ollama", Model: "codellama:34b-instruct", BaseURL: "http://localhost:11434"},
				{Provider: "ollama", Model: "deepseek-coder:33b", BaseURL: "http://localhost:11434"},
			},
			Temperature:   0.1,
			MaxTokens:     4000,
			Timeout:       2 * time.Minute,
			MaxAttempts:   3,
			MaxConcurrent: 4,
			Passes: PassesConfig{
				Vulnerability: true,
				CodeReview:    true,
				AutoComment:   true,
			},
		},
		Aggregator: AggregatorConfig{
			OverlapFraction: 0.25,
			TitleSimilarity: 0.8,
		},
		Scan: ScanConfig{
			Workers:            4,
			MaxFailureFraction: 0.5,
			MaxDuration:        time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// DefaultPath returns the default configuration file location
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "codeguard", "config.yaml")
}

// Load reads configuration from file, merges it over defaults, then applies
// .env and environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Optional .env in the working directory
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	path = expandPath(path)

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		case os.IsNotExist(err) && !explicit:
			// Use defaults
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Ingest.WorkDir = expandPath(cfg.Ingest.WorkDir)
	cfg.Index.Path = expandPath(cfg.Index.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv applies CODEGUARD_* overrides and provider API keys
func (c *Config) applyEnv() error {
	if v := env("EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = strings.ToLower(v)
	}
	if v := env("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := env("INDEX_BACKEND"); v != "" {
		c.Index.Backend = strings.ToLower(v)
	}
	if v := env("INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := env("GENERATOR_PROVIDER"); v != "" {
		// A single explicit backend replaces the configured chain
		c.Generator.Backends = []BackendConfig{{
			Provider: strings.ToLower(v),
			Model:    env("GENERATOR_MODEL"),
			BaseURL:  env("GENERATOR_BASE_URL"),
		}}
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := env("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := env("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}
		c.Scan.Workers = n
	}

	if c.Ingest.GitToken == "" {
		c.Ingest.GitToken = os.Getenv(EnvGitHubToken)
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = apiKeyFor(c.Embedding.Provider)
	}
	for i := range c.Generator.Backends {
		if c.Generator.Backends[i].APIKey == "" {
			c.Generator.Backends[i].APIKey = apiKeyFor(c.Generator.Backends[i].Provider)
		}
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func apiKeyFor(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv(EnvOpenAIAPIKey)
	case "anthropic":
		return os.Getenv(EnvAnthropicAPIKey)
	case "jina":
		return os.Getenv(EnvJinaAPIKey)
	default:
		return ""
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Chunker.WindowLines <= 0 {
		return fmt.Errorf("chunker.window_lines must be positive")
	}
	if c.Chunker.OverlapLines < 0 || c.Chunker.OverlapLines >= c.Chunker.WindowLines {
		return fmt.Errorf("chunker.overlap_lines must be in [0, window_lines)")
	}
	if c.Chunker.MaxTokens <= 0 {
		return fmt.Errorf("chunker.max_tokens must be positive")
	}
	if c.Retriever.TopK < 0 {
		return fmt.Errorf("retriever.top_k must be >= 0")
	}
	if !unitInterval(c.Aggregator.OverlapFraction) {
		return fmt.Errorf("aggregator.overlap_fraction must be in [0, 1]")
	}
	if !unitInterval(c.Aggregator.TitleSimilarity) {
		return fmt.Errorf("aggregator.title_similarity must be in [0, 1]")
	}
	if !unitInterval(c.Scan.MaxFailureFraction) {
		return fmt.Errorf("scan.max_failure_fraction must be in [0, 1]")
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive")
	}
	if !c.Generator.Passes.Any() {
		return fmt.Errorf("generator.passes must enable at least one pass")
	}
	if len(c.Generator.Backends) == 0 {
		return fmt.Errorf("generator.backends must name at least one backend")
	}
	for i, b := range c.Generator.Backends {
		if b.Provider == "" {
			return fmt.Errorf("generator.backends[%d].provider is required", i)
		}
	}
	switch c.Index.Backend {
	case "memory":
	case "sqlite":
		if c.Index.Path == "" {
			return fmt.Errorf("index.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown index.backend %q", c.Index.Backend)
	}
	if c.Ingest.MaxFileSizeMB <= 0 {
		return fmt.Errorf("ingest.max_file_size_mb must be positive")
	}
	return nil
}

// Any reports whether at least one pass is enabled
func (p PassesConfig) Any() bool {
	return p.Vulnerability || p.CodeReview || p.AutoComment
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
