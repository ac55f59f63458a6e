package config

import "time"

// RedisConfig holds connection settings for the redis checkpoint store.
// An empty Address leaves the store unregistered.
type RedisConfig struct {
	Address  string        `json:"address" yaml:"address"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int           `json:"db" yaml:"db"`
	Prefix   string        `json:"prefix" yaml:"prefix"`
	TTL      time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix: "stepflow:checkpoint",
		TTL:    24 * time.Hour,
	}
}

func (c *RedisConfig) Merge(source *RedisConfig) {
	if source.Address != "" {
		c.Address = source.Address
	}

	if source.Password != "" {
		c.Password = source.Password
	}

	if source.DB > 0 {
		c.DB = source.DB
	}

	if source.Prefix != "" {
		c.Prefix = source.Prefix
	}

	if source.TTL > 0 {
		c.TTL = source.TTL
	}
}

// ServerConfig configures the Connect RPC surface.
type ServerConfig struct {
	Address        string        `json:"address" yaml:"address"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		RequestTimeout: 5 * time.Minute,
	}
}

func (c *ServerConfig) Merge(source *ServerConfig) {
	if source.Address != "" {
		c.Address = source.Address
	}

	if source.RequestTimeout > 0 {
		c.RequestTimeout = source.RequestTimeout
	}
}
