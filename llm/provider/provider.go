// Package provider creates llm.Model values from configuration and keeps
// named model configurations for flows that use more than one model.
package provider

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/stepflow/config"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/llm/anthropic"
	"github.com/tailored-agentic-units/stepflow/llm/openai"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrModelNotFound   = errors.New("model not found")
	ErrModelExists     = errors.New("model already registered")
	ErrEmptyModelName  = errors.New("model name is empty")
)

// New creates the model named by cfg.Name.
func New(cfg config.ProviderConfig) (llm.Model, error) {
	switch cfg.Name {
	case config.ProviderOpenAI:
		m, err := openai.New(cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.ProviderAnthropic:
		m, err := anthropic.New(cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Name)
	}
}

// Factory builds a model from configuration. New is the default.
type Factory func(cfg config.ProviderConfig) (llm.Model, error)

// Registry manages named model configurations with lazy instantiation.
// Configs are stored at registration; models are created on the first Get.
// Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	configs map[string]config.ProviderConfig
	models  map[string]llm.Model
}

// NewRegistry creates an empty Registry. A nil factory selects New.
func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		factory = New
	}
	return &Registry{
		factory: factory,
		configs: make(map[string]config.ProviderConfig),
		models:  make(map[string]llm.Model),
	}
}

// Register adds a named configuration. The model is not created until Get.
func (r *Registry) Register(name string, cfg config.ProviderConfig) error {
	if name == "" {
		return ErrEmptyModelName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; exists {
		return fmt.Errorf("%w: %s", ErrModelExists, name)
	}

	r.configs[name] = cfg
	return nil
}

// Replace updates an existing configuration; the next Get re-creates the
// model.
func (r *Registry) Replace(name string, cfg config.ProviderConfig) error {
	if name == "" {
		return ErrEmptyModelName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	r.configs[name] = cfg
	delete(r.models, name)
	return nil
}

// Unregister removes a named configuration and its cached model.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	delete(r.configs, name)
	delete(r.models, name)
	return nil
}

// Get returns the named model, creating it on first access.
func (r *Registry) Get(name string) (llm.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, registered := r.configs[name]
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	if m, exists := r.models[name]; exists {
		return m, nil
	}

	m, err := r.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model %q: %w", name, err)
	}

	r.models[name] = m
	return m, nil
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
