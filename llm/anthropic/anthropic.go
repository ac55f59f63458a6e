// Package anthropic implements llm.Model with the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tailored-agentic-units/stepflow/config"
	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = anthropic.ModelClaude3_5Sonnet20241022

// The Messages API requires an explicit completion budget.
const defaultMaxTokens = 1024

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("anthropic: api key is required")

// Model adapts the Anthropic client to llm.Model.
type Model struct {
	client      *anthropic.Client
	model       anthropic.Model
	temperature float64
	maxTokens   int64
}

var _ llm.Model = (*Model)(nil)

// New creates a Model from provider configuration.
func New(cfg config.ProviderConfig) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := anthropic.NewClient(opts...)
	return NewFromClient(&client, cfg), nil
}

// NewFromClient wraps an existing client. Only the model and sampling
// fields of cfg are used.
func NewFromClient(client *anthropic.Client, cfg config.ProviderConfig) *Model {
	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Model{
		client:      client,
		model:       model,
		temperature: cfg.TemperatureValue(),
		maxTokens:   maxTokens,
	}
}

func (m *Model) Name() string {
	return config.ProviderAnthropic + "/" + string(m.model)
}

func (m *Model) Generate(ctx context.Context, messages []protocol.Message, opts llm.Options) (string, error) {
	system, turns := llm.SplitSystem(messages)

	temperature := m.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := m.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       m.model,
		Messages:    convertMessages(turns),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	if text.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return text.String(), nil
}

func convertMessages(turns []protocol.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		switch msg.Role {
		case protocol.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case protocol.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(fmt.Sprintf("Result of tool %s:\n%s", msg.Name, msg.Content))))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}
