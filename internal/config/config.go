// Package config handles Smarty configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/smarty/config.yaml, /etc/smarty/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "smarty", "config.yaml"))
	}

	paths = append(paths, "/etc/smarty/config.yaml")
	return paths
}

// ErrNoConfig is returned by FindConfig when no explicit path was given
// and none of the default search paths exist. Callers fall back to
// [Default] in that case.
var ErrNoConfig = errors.New("no config file found")

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, DefaultSearchPaths())
}

// LoadDotEnv loads KEY=value pairs from the given .env files into the
// process environment without overriding variables that are already
// set. Missing files are ignored; with no arguments ".env" in the
// working directory is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Config holds all Smarty configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text (default) or json

	// DataDir holds the run log database. Empty disables run recording.
	DataDir string `yaml:"data_dir"`

	// ScratchDir receives downloaded task attachments and temporary
	// scripts. Empty means os.TempDir().
	ScratchDir string `yaml:"scratch_dir"`

	Providers     ProvidersConfig `yaml:"providers"`
	Roles         RolesConfig     `yaml:"roles"`
	Loop          LoopConfig      `yaml:"loop"`
	Files         FilesConfig     `yaml:"files"`
	Search        SearchConfig    `yaml:"search"`
	CodeExec      CodeExecConfig  `yaml:"code_exec"`
	Media         MediaConfig     `yaml:"media"`
	Vision        ModelRef        `yaml:"vision"`
	Transcription ModelRef        `yaml:"transcription"`
	Batch         BatchConfig     `yaml:"batch"`
}

// ProviderConfig holds credentials and endpoint for one LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether an API key is set.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != ""
}

// ProvidersConfig groups the supported LLM providers.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Groq      ProviderConfig `yaml:"groq"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Ollama    ProviderConfig `yaml:"ollama"`
}

// Get returns the named provider's settings.
func (p ProvidersConfig) Get(name string) (ProviderConfig, bool) {
	switch name {
	case ProviderOpenAI:
		return p.OpenAI, true
	case ProviderGroq:
		return p.Groq, true
	case ProviderAnthropic:
		return p.Anthropic, true
	case ProviderOllama:
		return p.Ollama, true
	}
	return ProviderConfig{}, false
}

// Provider names accepted in role configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// ModelRef names a provider and model.
type ModelRef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// RoleConfig selects the model used for one reasoning role.
type RoleConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// RolesConfig assigns a model to each node of the control loop.
type RolesConfig struct {
	Planner   RoleConfig `yaml:"planner"`
	Executor  RoleConfig `yaml:"executor"`
	Replanner RoleConfig `yaml:"replanner"`
	Finalizer RoleConfig `yaml:"finalizer"`
}

// LoopConfig bounds the control loop.
type LoopConfig struct {
	// MaxIterations caps Execute visits per task. Zero means the
	// default (12); negative disables the guard.
	MaxIterations int `yaml:"max_iterations"`
	// MaxToolCalls caps tool invocations inside one Execute visit.
	// Zero means the default (16).
	MaxToolCalls int `yaml:"max_tool_calls"`
}

// FilesConfig locates task attachments.
type FilesConfig struct {
	// BaseURL is the scoring service root. Attachments are fetched
	// from <base_url>/files/<task_id> and questions from
	// <base_url>/questions.
	BaseURL string `yaml:"base_url"`
}

// SearchConfig configures web search providers.
type SearchConfig struct {
	// Default selects the provider used by web_search.
	Default string        `yaml:"default"`
	Tavily  TavilyConfig  `yaml:"tavily"`
	Brave   BraveConfig   `yaml:"brave"`
	SearXNG SearXNGConfig `yaml:"searxng"`
	// WikipediaLanguage picks the Wikipedia edition (default "en").
	WikipediaLanguage string `yaml:"wikipedia_language"`
	// MaxResults is the default result count (default 3).
	MaxResults int `yaml:"max_results"`
}

// TavilyConfig holds Tavily search settings.
type TavilyConfig struct {
	APIKey string `yaml:"api_key"`
}

// BraveConfig holds Brave search settings.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig holds SearXNG instance settings.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// CodeExecConfig configures the execute_code tool.
type CodeExecConfig struct {
	// Python is the interpreter binary (default "python3").
	Python string `yaml:"python"`
	// TimeoutSec is the hard wall-clock limit per run (default 30).
	TimeoutSec int `yaml:"timeout_sec"`
}

// MediaConfig configures video transcript retrieval.
type MediaConfig struct {
	YtDlpPath string `yaml:"yt_dlp_path"`
}

// BatchConfig configures multi-task runs.
type BatchConfig struct {
	// Concurrency is the number of tasks run in parallel (default 1).
	Concurrency int `yaml:"concurrency"`
}

// Load reads configuration from a YAML file. Values not present in
// the file keep their [Default] values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()

	return cfg, nil
}

// Default returns a default configuration. API keys are read from the
// conventional environment variables.
func Default() *Config {
	cfg := &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Providers: ProvidersConfig{
			OpenAI:    ProviderConfig{BaseURL: "https://api.openai.com/v1"},
			Groq:      ProviderConfig{BaseURL: "https://api.groq.com/openai/v1"},
			Anthropic: ProviderConfig{BaseURL: "https://api.anthropic.com"},
			Ollama:    ProviderConfig{BaseURL: "http://localhost:11434"},
		},
		Roles: RolesConfig{
			Planner:   RoleConfig{Provider: ProviderOpenAI, Model: "gpt-4o", Temperature: 0.4},
			Executor:  RoleConfig{Provider: ProviderGroq, Model: "deepseek-r1-distill-llama-70b", Temperature: 0.3},
			Replanner: RoleConfig{Provider: ProviderOpenAI, Model: "gpt-4o", Temperature: 0},
			Finalizer: RoleConfig{Provider: ProviderOpenAI, Model: "gpt-4o", Temperature: 0},
		},
		Loop: LoopConfig{
			MaxIterations: 12,
			MaxToolCalls:  16,
		},
		Files: FilesConfig{
			BaseURL: "https://agents-course-unit4-scoring.hf.space",
		},
		Search: SearchConfig{
			Default:           "tavily",
			WikipediaLanguage: "en",
			MaxResults:        3,
		},
		CodeExec: CodeExecConfig{
			Python:     "python3",
			TimeoutSec: 30,
		},
		Media: MediaConfig{
			YtDlpPath: "yt-dlp",
		},
		Vision:        ModelRef{Provider: ProviderOpenAI, Model: "gpt-4.1-2025-04-14"},
		Transcription: ModelRef{Provider: ProviderGroq, Model: "whisper-large-v3-turbo"},
		Batch:         BatchConfig{Concurrency: 1},
	}
	cfg.applyEnv()
	return cfg
}

// applyEnv fills empty credentials from the environment.
func (c *Config) applyEnv() {
	setIfEmpty(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&c.Providers.Groq.APIKey, "GROQ_API_KEY")
	setIfEmpty(&c.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setIfEmpty(&c.Search.Tavily.APIKey, "TAVILY_API_KEY")
	setIfEmpty(&c.Search.Brave.APIKey, "BRAVE_API_KEY")
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

// Validate checks the configuration for structural errors. It does
// not require credentials; missing keys surface when a client is built.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: must be text or json", c.LogFormat))
	}

	roles := []struct {
		name string
		role RoleConfig
	}{
		{"planner", c.Roles.Planner},
		{"executor", c.Roles.Executor},
		{"replanner", c.Roles.Replanner},
		{"finalizer", c.Roles.Finalizer},
	}
	for _, r := range roles {
		if _, ok := c.Providers.Get(r.role.Provider); !ok {
			errs = append(errs, fmt.Errorf("roles.%s.provider %q: unknown provider", r.name, r.role.Provider))
		}
		if r.role.Model == "" {
			errs = append(errs, fmt.Errorf("roles.%s.model is required", r.name))
		}
		if r.role.Temperature < 0 || r.role.Temperature > 2 {
			errs = append(errs, fmt.Errorf("roles.%s.temperature %v: must be within [0, 2]", r.name, r.role.Temperature))
		}
	}

	if c.Loop.MaxToolCalls < 0 {
		errs = append(errs, fmt.Errorf("loop.max_tool_calls %d: must not be negative", c.Loop.MaxToolCalls))
	}
	if c.Files.BaseURL == "" {
		errs = append(errs, errors.New("files.base_url is required"))
	}
	switch c.Search.Default {
	case "tavily", "brave", "searxng", "wikipedia":
	default:
		errs = append(errs, fmt.Errorf("search.default %q: must be tavily, brave, searxng, or wikipedia", c.Search.Default))
	}
	if c.CodeExec.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("code_exec.timeout_sec %d: must be positive", c.CodeExec.TimeoutSec))
	}
	if c.Batch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("batch.concurrency %d: must be at least 1", c.Batch.Concurrency))
	}

	return errors.Join(errs...)
}

// RunsPath returns the run log database path, or "" when DataDir is unset.
func (c *Config) RunsPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "runs.db")
}
