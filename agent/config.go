package agent

const defaultMaxIterations = 10

// Config holds the agent loop settings.
type Config struct {
	// MaxIterations bounds model turns per Run. Zero keeps the default;
	// negative removes the bound.
	MaxIterations int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	SystemPrompt  string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// DefaultConfig returns a Config allowing ten model turns per Run.
func DefaultConfig() Config {
	return Config{
		MaxIterations: defaultMaxIterations,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxIterations != 0 {
		c.MaxIterations = source.MaxIterations
	}
	if source.SystemPrompt != "" {
		c.SystemPrompt = source.SystemPrompt
	}
}
