package config

// CheckpointConfig controls run persistence during graph execution.
//
// Interval 0 disables checkpointing; N saves after every N executed steps.
// Preserve keeps checkpoints after a successful run.
type CheckpointConfig struct {
	Store    string `json:"store" yaml:"store"`
	Interval int    `json:"interval" yaml:"interval"`
	Preserve bool   `json:"preserve" yaml:"preserve"`
}

// DefaultCheckpointConfig returns a disabled checkpoint configuration that
// would use the in-memory store if enabled.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Store:    "memory",
		Interval: 0,
		Preserve: false,
	}
}

func (c *CheckpointConfig) Merge(source *CheckpointConfig) {
	if source.Store != "" {
		c.Store = source.Store
	}

	if source.Interval > 0 {
		c.Interval = source.Interval
	}

	if source.Preserve {
		c.Preserve = source.Preserve
	}
}

// GraphConfig describes a workflow graph.
//
// MaxSteps bounds the number of executed steps per run. Zero means unbounded:
// self-looping steps are expected to terminate on their own.
//
// Example JSON:
//
//	{
//	  "name": "content-creator",
//	  "observer": "slog",
//	  "max_steps": 0,
//	  "checkpoint": {"store": "redis", "interval": 1}
//	}
type GraphConfig struct {
	Name       string           `json:"name" yaml:"name"`
	Observer   string           `json:"observer" yaml:"observer"`
	MaxSteps   int              `json:"max_steps" yaml:"max_steps"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`
}

// DefaultGraphConfig returns an unbounded graph logging through slog with
// checkpointing disabled.
func DefaultGraphConfig(name string) GraphConfig {
	return GraphConfig{
		Name:       name,
		Observer:   "slog",
		MaxSteps:   0,
		Checkpoint: DefaultCheckpointConfig(),
	}
}

func (c *GraphConfig) Merge(source *GraphConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}

	if source.MaxSteps > 0 {
		c.MaxSteps = source.MaxSteps
	}

	c.Checkpoint.Merge(&source.Checkpoint)
}
