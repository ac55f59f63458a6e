package config

import "time"

// Provider names understood by llm/provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig selects and parameterizes the hosted LLM.
//
// Temperature is a pointer so an explicit 0.0 in a config file survives the
// merge over a non-zero default.
type ProviderConfig struct {
	Name        string        `json:"name" yaml:"name"`
	Model       string        `json:"model" yaml:"model"`
	APIKey      string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature *float64      `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int64         `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultProviderConfig targets OpenAI with deterministic sampling and a
// 1000 token completion budget.
func DefaultProviderConfig() ProviderConfig {
	temperature := 0.0
	return ProviderConfig{
		Name:        ProviderOpenAI,
		Temperature: &temperature,
		MaxTokens:   1000,
		Timeout:     2 * time.Minute,
	}
}

// TemperatureValue returns the configured temperature or 0.
func (c *ProviderConfig) TemperatureValue() float64 {
	if c.Temperature == nil {
		return 0
	}
	return *c.Temperature
}

func (c *ProviderConfig) Merge(source *ProviderConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.Model != "" {
		c.Model = source.Model
	}

	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}

	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}

	if source.Temperature != nil {
		t := *source.Temperature
		c.Temperature = &t
	}

	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}

	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
}
