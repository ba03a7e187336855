package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/model"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// EnvPrefix prefixes environment overrides (SWIFT_LLM_MODEL, ...).
const EnvPrefix = "SWIFT"

type Config struct {
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Evaluation EvaluationConfig `yaml:"evaluation" mapstructure:"evaluation"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Logging    LogConfig        `yaml:"logging" mapstructure:"logging"`

	path string
}

type SearchConfig struct {
	Providers     []string `yaml:"providers" mapstructure:"providers"`
	Results       int      `yaml:"results" mapstructure:"results"`
	Parallel      int      `yaml:"parallel" mapstructure:"parallel"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	UserAgent     string   `yaml:"user_agent" mapstructure:"user_agent"`
	Serper        Endpoint `yaml:"serper" mapstructure:"serper"`
	NewsAPI       Endpoint `yaml:"newsapi" mapstructure:"newsapi"`
	RSS           RSS      `yaml:"rss" mapstructure:"rss"`
}

// Endpoint is a keyed HTTP API. APIKey is filled from APIKeyEnv at load time.
type Endpoint struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
	APIKey    string `yaml:"-" mapstructure:"-"`
}

type RSS struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Language string `yaml:"language" mapstructure:"language"`
	Region   string `yaml:"region" mapstructure:"region"`
}

type LLMConfig struct {
	Provider    string   `yaml:"provider" mapstructure:"provider"`
	Model       string   `yaml:"model" mapstructure:"model"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv   string   `yaml:"api_key_env" mapstructure:"api_key_env"`
	APIKey      string   `yaml:"-" mapstructure:"-"`
	Temperature float64  `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Fallback    Fallback `yaml:"fallback" mapstructure:"fallback"`
}

type Fallback struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Model     string `yaml:"model" mapstructure:"model"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
	APIKey    string `yaml:"-" mapstructure:"-"`
}

type EmbeddingConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"`
	Model        string `yaml:"model" mapstructure:"model"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv    string `yaml:"api_key_env" mapstructure:"api_key_env"`
	APIKey       string `yaml:"-" mapstructure:"-"`
	ChunkWords   int    `yaml:"chunk_words" mapstructure:"chunk_words"`
	ChunkOverlap int    `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	TopK         int    `yaml:"top_k" mapstructure:"top_k"`
	BatchSize    int    `yaml:"batch_size" mapstructure:"batch_size"`
}

type EvaluationConfig struct {
	Strictness   string `yaml:"strictness" mapstructure:"strictness"`
	Criteria     string `yaml:"criteria" mapstructure:"criteria"`
	Profile      string `yaml:"profile" mapstructure:"profile"`
	OutputFormat string `yaml:"output_format" mapstructure:"output_format"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Language     string `yaml:"language" mapstructure:"language"`
}

type PipelineConfig struct {
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	Limit           int     `yaml:"limit" mapstructure:"limit"`
	CallTimeoutSecs int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	Grounding       bool    `yaml:"grounding" mapstructure:"grounding"`
	Dedupe          bool    `yaml:"dedupe" mapstructure:"dedupe"`
	DedupeThreshold float64 `yaml:"dedupe_threshold" mapstructure:"dedupe_threshold"`
	Digest          bool    `yaml:"digest" mapstructure:"digest"`
	DigestMaxTokens int     `yaml:"digest_max_tokens" mapstructure:"digest_max_tokens"`
}

type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var knownSearchProviders = []string{"serper", "newsapi", "rss"}

// ConfigDir returns the XDG config directory for swift.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "swift")
}

// DataDir returns the XDG data directory for swift.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "swift")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > $XDG_CONFIG_HOME/swift/config.yaml > ./config.yaml.
// An empty path with a nil error means built-in defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", eris.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}
	return "", nil
}

// Load reads the built-in defaults, merges the file at path over them (if
// any), applies SWIFT_* environment overrides and resolves API keys.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(DefaultConfigYAML)); err != nil {
		return nil, eris.Wrap(err, "config: read defaults")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, eris.Wrapf(err, "config: read %s", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.path = path
	cfg.resolveKeys(getenv)
	return &cfg, nil
}

// resolveKeys reads every api_key_env once. Components receive the keys
// through their constructors and never consult the environment themselves.
func (c *Config) resolveKeys(getenv func(string) string) {
	lookup := func(name string) string {
		if name == "" {
			return ""
		}
		return strings.TrimSpace(getenv(name))
	}
	c.Search.Serper.APIKey = lookup(c.Search.Serper.APIKeyEnv)
	c.Search.NewsAPI.APIKey = lookup(c.Search.NewsAPI.APIKeyEnv)
	c.LLM.APIKey = lookup(c.LLM.APIKeyEnv)
	c.LLM.Fallback.APIKey = lookup(c.LLM.Fallback.APIKeyEnv)
	c.Embedding.APIKey = lookup(c.Embedding.APIKeyEnv)
}

// Path is the file the config was loaded from, or "" for built-in defaults.
func (c *Config) Path() string { return c.path }

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return model.NewError(model.KindValidation, nil, "config: "+fmt.Sprintf(format, args...))
	}

	if err := c.EvaluationConfig().Validate(); err != nil {
		return err
	}
	if c.Pipeline.Concurrency < 1 {
		return invalid("pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Embedding.TopK < 1 {
		return invalid("embedding.top_k must be at least 1, got %d", c.Embedding.TopK)
	}
	if c.Search.Results < 1 {
		return invalid("search.results must be at least 1, got %d", c.Search.Results)
	}
	if len(c.Search.Providers) == 0 {
		return invalid("search.providers must name at least one provider")
	}
	for _, p := range c.Search.Providers {
		if !slices.Contains(knownSearchProviders, strings.ToLower(p)) {
			return invalid("unknown search provider %q (valid: %s)", p, strings.Join(knownSearchProviders, ", "))
		}
	}
	if f := c.Logging.Format; f != "" && f != "console" && f != "json" {
		return invalid("logging.format must be console or json, got %q", f)
	}
	return nil
}

// EvaluationConfig converts the evaluation section into the judge settings.
func (c *Config) EvaluationConfig() model.EvaluationConfig {
	st, err := model.ParseStrictness(c.Evaluation.Strictness)
	if err != nil {
		// Keep the raw value so Validate reports it.
		st = model.Strictness(c.Evaluation.Strictness)
	}
	return model.EvaluationConfig{
		Strictness:   st,
		Criteria:     c.Evaluation.Criteria,
		OutputFormat: c.Evaluation.OutputFormat,
		Profile:      c.Evaluation.Profile,
		MaxTokens:    c.Evaluation.MaxTokens,
		Language:     c.Evaluation.Language,
	}
}

// LLMSettings returns the preferred chat backend and, when configured, its
// fallback.
func (c *Config) LLMSettings() (llm.Settings, *llm.Settings) {
	primary := llm.Settings{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		BaseURL:     c.LLM.BaseURL,
		APIKey:      c.LLM.APIKey,
		Temperature: c.LLM.Temperature,
		Timeout:     seconds(c.LLM.TimeoutSecs),
	}
	if c.LLM.Fallback.Provider == "" {
		return primary, nil
	}
	fb := primary
	fb.Provider = c.LLM.Fallback.Provider
	fb.Model = c.LLM.Fallback.Model
	fb.BaseURL = c.LLM.Fallback.BaseURL
	fb.APIKey = c.LLM.Fallback.APIKey
	return primary, &fb
}

// EmbeddingSettings returns the embedding backend.
func (c *Config) EmbeddingSettings() llm.Settings {
	return llm.Settings{
		Provider: c.Embedding.Provider,
		Model:    c.Embedding.Model,
		BaseURL:  c.Embedding.BaseURL,
		APIKey:   c.Embedding.APIKey,
		Timeout:  seconds(c.LLM.TimeoutSecs),
	}
}

// SearchTimeout is the per-request timeout for search and page downloads.
func (c *Config) SearchTimeout() time.Duration { return seconds(c.Search.TimeoutSecs) }

// CallTimeout bounds each network call the pipeline makes for one item.
func (c *Config) CallTimeout() time.Duration { return seconds(c.Pipeline.CallTimeoutSecs) }

// GetOutputDir returns the effective output directory from config or XDG default.
func (c *Config) GetOutputDir() string {
	if c.Output.Dir != "" {
		return c.Output.Dir
	}
	return filepath.Join(DataDir(), "runs")
}

// Dump renders the effective configuration. Resolved keys are never included.
func (c *Config) Dump() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "config: marshal")
	}
	return out, nil
}

// WriteDefault writes the default config template to path, creating parent
// directories. An existing file is left alone.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, eris.Wrap(err, "config: create directory")
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		return false, eris.Wrap(err, "config: write default")
	}
	return true, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	levelText := cfg.Level
	if levelText == "" {
		levelText = "info"
	}
	level, err := zapcore.ParseLevel(strings.ToLower(levelText))
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
