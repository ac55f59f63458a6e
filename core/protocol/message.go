// Package protocol holds the conversation types shared by sessions, language
// models and tools.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// NewMessage creates a Message with the given role and content.
//
// Example:
//
//	msg := protocol.NewMessage(protocol.RoleUser, "What is the capital of France?")
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// ToolResultMessage records the output of a tool so it can be fed back to a
// model. Providers without a native tool role receive it as a user turn.
func ToolResultMessage(tool, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: tool}
}

// Transcript renders messages as "role: content" lines, oldest first.
func Transcript(messages []Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(msg.Role))
		if msg.Name != "" {
			fmt.Fprintf(&b, "(%s)", msg.Name)
		}
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}

// ToolCall is a model's request to invoke a tool. Arguments is the JSON
// object passed to the tool handler.
//
// UnmarshalJSON accepts the flat form ({name, arguments}) and the nested
// function form ({function: {name, arguments}}) that chat APIs use, with
// arguments given either as an object or as a JSON-encoded string.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		Function  *struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	tc.ID = raw.ID
	tc.Name = raw.Name
	args := raw.Arguments
	if raw.Function != nil && raw.Function.Name != "" {
		tc.Name = raw.Function.Name
		args = raw.Function.Arguments
	}

	normalized, err := normalizeArguments(args)
	if err != nil {
		return fmt.Errorf("tool call %s: %w", tc.Name, err)
	}
	tc.Arguments = normalized
	return nil
}

// normalizeArguments unwraps string-encoded JSON and defaults to an empty
// object.
func normalizeArguments(args json.RawMessage) (json.RawMessage, error) {
	args = bytes.TrimSpace(args)
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}

	if args[0] == '"' {
		var encoded string
		if err := json.Unmarshal(args, &encoded); err != nil {
			return nil, err
		}
		if strings.TrimSpace(encoded) == "" {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid([]byte(encoded)) {
			return nil, fmt.Errorf("arguments are not valid JSON: %q", encoded)
		}
		return json.RawMessage(encoded), nil
	}

	return args, nil
}
