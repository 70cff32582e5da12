// Package config loads framework configuration from a YAML file with
// environment variable overrides. Precedence is defaults, then file, then
// environment. Credentials are only ever sourced from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the override variables, e.g. AGENTWEAVE_SERVER_ADDR.
const EnvPrefix = "AGENTWEAVE_"

// Config is the complete framework configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Elicit   ElicitConfig   `yaml:"elicit"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the protocol HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelConfig selects a provider and carries its parameters. API keys are
// read from the provider's conventional environment variables, never from the
// file.
type ModelConfig struct {
	// Provider is one of "openai", "anthropic", "mock".
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// BaseURL overrides the provider endpoint, e.g. for a local proxy.
	BaseURL string `yaml:"base_url"`
	// Timeout bounds one generation call.
	Timeout time.Duration `yaml:"timeout"`
}

// APIKey resolves the provider credential from the environment.
func (m ModelConfig) APIKey() string {
	switch m.Provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// AgentConfig carries per-agent defaults.
type AgentConfig struct {
	MaxToolDepth int           `yaml:"max_tool_depth"`
	ModelTimeout time.Duration `yaml:"model_timeout"`
}

// WorkflowConfig carries engine defaults.
type WorkflowConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
}

// ElicitConfig carries human-input defaults.
type ElicitConfig struct {
	// Mode is one of "forms", "auto_cancel", "none".
	Mode        string        `yaml:"mode"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// StoreConfig selects the conversation persistence backend.
type StoreConfig struct {
	// Backend is one of "memory", "file", "redis".
	Backend string `yaml:"backend"`
	// Dir is the file backend's directory.
	Dir string `yaml:"dir"`
	// RedisURL is the redis backend's connection URL. The password, if any,
	// belongs in AGENTWEAVE_STORE_REDIS_URL rather than the file.
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or overrides are
// present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Model: ModelConfig{
			Provider:    "mock",
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     2 * time.Minute,
		},
		Agent: AgentConfig{
			MaxToolDepth: 8,
			ModelTimeout: 2 * time.Minute,
		},
		Workflow: WorkflowConfig{
			MaxIterations: 5,
		},
		Elicit: ElicitConfig{
			Mode:        "none",
			WaitTimeout: 5 * time.Minute,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty or absent) and
// applies environment overrides on top of defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults plus environment.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the framework cannot act on.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	switch c.Elicit.Mode {
	case "forms", "auto_cancel", "none":
	default:
		return fmt.Errorf("unknown elicitation mode %q", c.Elicit.Mode)
	}
	switch c.Store.Backend {
	case "memory", "redis":
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("file store requires store.dir")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.RedisURL == "" {
		return fmt.Errorf("redis store requires store.redis_url")
	}
	return nil
}

// applyEnv layers AGENTWEAVE_* variables over the loaded values.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "SERVER_IDLE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")

	setString(&cfg.Model.Provider, "MODEL_PROVIDER")
	setString(&cfg.Model.Name, "MODEL_NAME")
	setFloat(&cfg.Model.Temperature, "MODEL_TEMPERATURE")
	setInt(&cfg.Model.MaxTokens, "MODEL_MAX_TOKENS")
	setString(&cfg.Model.BaseURL, "MODEL_BASE_URL")
	setDuration(&cfg.Model.Timeout, "MODEL_TIMEOUT")

	setInt(&cfg.Agent.MaxToolDepth, "AGENT_MAX_TOOL_DEPTH")
	setDuration(&cfg.Agent.ModelTimeout, "AGENT_MODEL_TIMEOUT")

	setInt(&cfg.Workflow.MaxIterations, "WORKFLOW_MAX_ITERATIONS")
	setDuration(&cfg.Workflow.StepTimeout, "WORKFLOW_STEP_TIMEOUT")

	setString(&cfg.Elicit.Mode, "ELICIT_MODE")
	setDuration(&cfg.Elicit.WaitTimeout, "ELICIT_WAIT_TIMEOUT")

	setString(&cfg.Store.Backend, "STORE_BACKEND")
	setString(&cfg.Store.Dir, "STORE_DIR")
	setString(&cfg.Store.RedisURL, "STORE_REDIS_URL")
	setDuration(&cfg.Store.TTL, "STORE_TTL")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, name string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, name string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
