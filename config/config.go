package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/stepflow/agent"
	"github.com/tailored-agentic-units/stepflow/memory"
	"github.com/tailored-agentic-units/stepflow/session"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvRedisAddress = "STEPFLOW_REDIS_ADDR"
)

// Config is the top-level file layout used by cmd/stepflow.
type Config struct {
	Graph    GraphConfig    `json:"graph" yaml:"graph"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Session  session.Config `json:"session" yaml:"session"`
	Agent    agent.Config   `json:"agent" yaml:"agent"`
	Memory   memory.Config  `json:"memory" yaml:"memory"`

	// Threshold is the critique score below which the delegation flow hands
	// the question to the tool-equipped agent.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

const defaultThreshold = 80

// DefaultConfig returns defaults for every section.
func DefaultConfig() Config {
	return Config{
		Graph:     DefaultGraphConfig("stepflow"),
		Provider:  DefaultProviderConfig(),
		Redis:     DefaultRedisConfig(),
		Server:    DefaultServerConfig(),
		Session:   session.DefaultConfig(),
		Agent:     agent.DefaultConfig(),
		Memory:    memory.DefaultConfig(),
		Threshold: defaultThreshold,
	}
}

func (c *Config) Merge(source *Config) {
	c.Graph.Merge(&source.Graph)
	c.Provider.Merge(&source.Provider)
	c.Redis.Merge(&source.Redis)
	c.Server.Merge(&source.Server)
	c.Session.Merge(&source.Session)
	c.Agent.Merge(&source.Agent)
	c.Memory.Merge(&source.Memory)

	if source.Threshold > 0 {
		c.Threshold = source.Threshold
	}
}

// ApplyEnv fills secrets and addresses that were left empty from the
// environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.Provider.APIKey == "" {
		switch c.Provider.Name {
		case ProviderOpenAI:
			c.Provider.APIKey = getenv(EnvOpenAIKey)
		case ProviderAnthropic:
			c.Provider.APIKey = getenv(EnvAnthropicKey)
		}
	}

	if c.Redis.Address == "" {
		c.Redis.Address = getenv(EnvRedisAddress)
	}
}

// Load reads a JSON or YAML file, merges it over DefaultConfig and applies
// environment overrides.
func Load(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	loaded, err := Parse(data, filepath.Ext(filename))
	if err != nil {
		return nil, err
	}

	cfg.Merge(loaded)
	cfg.ApplyEnv(os.Getenv)
	return &cfg, nil
}

// Parse decodes raw config bytes. ext selects the format: ".yaml"/".yml"
// decode as YAML, anything else as JSON.
func Parse(data []byte, ext string) (*Config, error) {
	var loaded Config

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("failed to parse json config: %w", err)
		}
	}

	return &loaded, nil
}
