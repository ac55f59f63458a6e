package session

import "errors"

// ErrNegativeWindow is returned by New for a negative MaxMessages.
var ErrNegativeWindow = errors.New("max messages must not be negative")

// Config holds session parameters. MaxMessages > 0 keeps only the most
// recent messages (a sliding window); zero keeps everything.
type Config struct {
	MaxMessages int `json:"max_messages" yaml:"max_messages"`
}

// DefaultConfig returns an unbounded session configuration.
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxMessages > 0 {
		c.MaxMessages = source.MaxMessages
	}
}

// New creates an in-memory Session from configuration.
func New(cfg *Config) (Session, error) {
	if cfg.MaxMessages < 0 {
		return nil, ErrNegativeWindow
	}
	s := newMemorySession()
	s.window = cfg.MaxMessages
	return s, nil
}
