// Package openai implements llm.Model with the OpenAI Chat Completions API,
// including streaming.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/tailored-agentic-units/stepflow/config"
	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = openai.ChatModelGPT4oMini

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("openai: api key is required")

// Model adapts the OpenAI client to llm.Model.
type Model struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

var (
	_ llm.Model    = (*Model)(nil)
	_ llm.Streamer = (*Model)(nil)
)

// New creates a Model from provider configuration.
func New(cfg config.ProviderConfig) (*Model, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewFromClient(client, cfg), nil
}

func newClient(cfg config.ProviderConfig) (*openai.Client, error) {
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

	client := openai.NewClient(opts...)
	return &client, nil
}

// NewFromClient wraps an existing client. Only the model and sampling
// fields of cfg are used.
func NewFromClient(client *openai.Client, cfg config.ProviderConfig) *Model {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Model{
		client:      client,
		model:       model,
		temperature: cfg.TemperatureValue(),
		maxTokens:   cfg.MaxTokens,
	}
}

func (m *Model) Name() string {
	return config.ProviderOpenAI + "/" + m.model
}

func (m *Model) Generate(ctx context.Context, messages []protocol.Message, opts llm.Options) (string, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.params(messages, opts))
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", llm.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (m *Model) Stream(ctx context.Context, messages []protocol.Message, opts llm.Options, onChunk func(string) error) (string, error) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, m.params(messages, opts))
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, ch := range chunk.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			text.WriteString(ch.Delta.Content)
			if err := onChunk(ch.Delta.Content); err != nil {
				return "", err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("openai streaming failed: %w", err)
	}

	if text.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return text.String(), nil
}

func (m *Model) params(messages []protocol.Message, opts llm.Options) openai.ChatCompletionNewParams {
	temperature := m.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Messages:    convertMessages(messages),
		Model:       m.model,
		Temperature: openai.Float(temperature),
	}

	maxTokens := m.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(maxTokens)
	}
	return params
}

func convertMessages(messages []protocol.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case protocol.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		case protocol.RoleTool:
			out = append(out, openai.UserMessage(fmt.Sprintf("Result of tool %s:\n%s", msg.Name, msg.Content)))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
