package memory

// Config selects the knowledge store.
type Config struct {
	// Path is the FileStore root. Empty disables memory.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
}

// NewStore returns a FileStore rooted at cfg.Path, or nil when memory is
// disabled.
func NewStore(cfg *Config) Store {
	if cfg.Path == "" {
		return nil
	}
	return NewFileStore(cfg.Path)
}
