// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Agent() AgentConfig
	Results() ResultsConfig
	Metrics() MetricsConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserEngine(BrowserEngine)

	// Agent Setters
	SetAgentMaxSteps(int)
	SetAgentStepDelay(time.Duration)
	SetAgentAskUserPolicy(AskUserPolicy)

	// Results Setters
	SetResultsPath(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	NetworkCfg NetworkConfig `mapstructure:"network" yaml:"network"`
	AgentCfg   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	ResultsCfg ResultsConfig `mapstructure:"results" yaml:"results"`
	MetricsCfg MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig { return c.NetworkCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) Results() ResultsConfig { return c.ResultsCfg }
func (c *Config) Metrics() MetricsConfig { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)             { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserEngine(e BrowserEngine)      { c.BrowserCfg.Engine = e }
func (c *Config) SetAgentMaxSteps(n int)                { c.AgentCfg.MaxSteps = n }
func (c *Config) SetAgentStepDelay(d time.Duration)     { c.AgentCfg.StepDelay = d }
func (c *Config) SetAgentAskUserPolicy(p AskUserPolicy) { c.AgentCfg.AskUserPolicy = p }
func (c *Config) SetResultsPath(p string)               { c.ResultsCfg.Path = p }

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

// BrowserEngine selects the automation backend behind schemas.Browser.
type BrowserEngine string

const (
	EngineChromedp   BrowserEngine = "chromedp"
	EnginePlaywright BrowserEngine = "playwright"
)

// BrowserConfig holds settings for the controlled browser.
type BrowserConfig struct {
	Engine          BrowserEngine  `mapstructure:"engine" yaml:"engine"`
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Settle          SettleConfig   `mapstructure:"settle" yaml:"settle"`
}

// ViewportConfig is the emulated window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// SettleConfig holds the fixed pause after each kind of page interaction.
type SettleConfig struct {
	Navigate time.Duration `mapstructure:"navigate" yaml:"navigate"`
	Click    time.Duration `mapstructure:"click" yaml:"click"`
	Type     time.Duration `mapstructure:"type" yaml:"type"`
	Press    time.Duration `mapstructure:"press" yaml:"press"`
	Scroll   time.Duration `mapstructure:"scroll" yaml:"scroll"`
}

// NetworkConfig bounds individual browser operations.
type NetworkConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleQuietPeriod   time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
}

// AskUserPolicy decides what the loop does when the planner asks for a human.
type AskUserPolicy string

const (
	// AskUserSubstituteWait replaces the request with a one second wait.
	AskUserSubstituteWait AskUserPolicy = "substitute_wait"
	// AskUserAbort ends the run as a failure.
	AskUserAbort AskUserPolicy = "abort"
)

// AgentConfig holds run-level settings of the control loop.
type AgentConfig struct {
	MaxSteps           int            `mapstructure:"max_steps" yaml:"max_steps"`
	StepDelay          time.Duration  `mapstructure:"step_delay" yaml:"step_delay"`
	MaxWait            time.Duration  `mapstructure:"max_wait" yaml:"max_wait"`
	HistoryLimit       int            `mapstructure:"history_limit" yaml:"history_limit"`
	ObservationLimit   int            `mapstructure:"observation_limit" yaml:"observation_limit"`
	AskUserPolicy      AskUserPolicy  `mapstructure:"ask_user_policy" yaml:"ask_user_policy"`
	CaptureScreenshots bool           `mapstructure:"capture_screenshots" yaml:"capture_screenshots"`
	LLM                LLMModelConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMModelConfig defines the configuration for the planner model.
type LLMModelConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ResultsSink selects where finished runs are persisted.
type ResultsSink string

const (
	SinkFile     ResultsSink = "file"
	SinkPostgres ResultsSink = "postgres"
	SinkNone     ResultsSink = "none"
)

// ResultsConfig configures run persistence.
type ResultsConfig struct {
	Sink     ResultsSink    `mapstructure:"sink" yaml:"sink"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.engine", string(EngineChromedp))
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.settle.navigate", "2s")
	v.SetDefault("browser.settle.click", "1s")
	v.SetDefault("browser.settle.type", "500ms")
	v.SetDefault("browser.settle.press", "500ms")
	v.SetDefault("browser.settle.scroll", "500ms")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.idle_quiet_period", "500ms")

	// -- Agent --
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.step_delay", "1s")
	v.SetDefault("agent.max_wait", "30s")
	v.SetDefault("agent.history_limit", 100)
	v.SetDefault("agent.observation_limit", 20)
	v.SetDefault("agent.ask_user_policy", string(AskUserSubstituteWait))
	v.SetDefault("agent.capture_screenshots", false)
	v.SetDefault("agent.llm.provider", string(ProviderGemini))
	v.SetDefault("agent.llm.model", "gemini-2.0-flash")
	v.SetDefault("agent.llm.api_key", "")
	v.SetDefault("agent.llm.endpoint", "")
	v.SetDefault("agent.llm.api_timeout", "30s")
	v.SetDefault("agent.llm.temperature", 0.1)
	v.SetDefault("agent.llm.max_tokens", 1000)
	v.SetDefault("agent.llm.requests_per_minute", 0)

	// -- Results --
	v.SetDefault("results.sink", string(SinkFile))
	v.SetDefault("results.path", "task_result.json")
	v.SetDefault("results.postgres.url", "")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("metrics.namespace", "webpilot")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets come from the environment; the first variable that is set wins.
	_ = v.BindEnv("agent.llm.api_key", "WEBPILOT_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("results.postgres.url", "WEBPILOT_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// A provider specific key overrides the generic lookup order.
	if cfg.AgentCfg.LLM.Provider == ProviderOpenAI {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" && os.Getenv("WEBPILOT_API_KEY") == "" {
			cfg.AgentCfg.LLM.APIKey = key
		}
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading ~ in every file path setting.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.LoggerCfg.LogFile, &c.ResultsCfg.Path} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// MaxWaitCeiling bounds agent.max_wait. It matches the largest wait a planner
// action may request.
const MaxWaitCeiling = 5 * time.Minute

// Validate checks the configuration for values the agent cannot run with.
func (c *Config) Validate() error {
	a := c.AgentCfg
	if a.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if a.StepDelay < 0 {
		return fmt.Errorf("agent.step_delay must not be negative")
	}
	if a.MaxWait <= 0 || a.MaxWait > MaxWaitCeiling {
		return fmt.Errorf("agent.max_wait must be within (0, %s]", MaxWaitCeiling)
	}
	if a.HistoryLimit <= 0 {
		return fmt.Errorf("agent.history_limit must be a positive integer")
	}
	if a.ObservationLimit <= 0 {
		return fmt.Errorf("agent.observation_limit must be a positive integer")
	}
	switch a.AskUserPolicy {
	case AskUserSubstituteWait, AskUserAbort:
	default:
		return fmt.Errorf("agent.ask_user_policy %q is not one of [%s, %s]", a.AskUserPolicy, AskUserSubstituteWait, AskUserAbort)
	}
	if err := a.LLM.Validate(); err != nil {
		return fmt.Errorf("agent.llm configuration invalid: %w", err)
	}

	switch c.BrowserCfg.Engine {
	case EngineChromedp, EnginePlaywright:
	default:
		return fmt.Errorf("browser.engine %q is not one of [%s, %s]", c.BrowserCfg.Engine, EngineChromedp, EnginePlaywright)
	}
	if c.BrowserCfg.Viewport.Width <= 0 || c.BrowserCfg.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	if c.NetworkCfg.Timeout <= 0 || c.NetworkCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("network timeouts must be positive")
	}

	switch c.ResultsCfg.Sink {
	case SinkFile:
		if c.ResultsCfg.Path == "" {
			return fmt.Errorf("results.path is required for the file sink")
		}
	case SinkPostgres:
		if c.ResultsCfg.Postgres.URL == "" {
			return fmt.Errorf("results.postgres.url is required for the postgres sink")
		}
	case SinkNone:
	default:
		return fmt.Errorf("results.sink %q is not one of [%s, %s, %s]", c.ResultsCfg.Sink, SinkFile, SinkPostgres, SinkNone)
	}
	return nil
}

// Validate checks the planner model settings.
func (l *LLMModelConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider %q", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model must be set")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2]")
	}
	if l.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}
