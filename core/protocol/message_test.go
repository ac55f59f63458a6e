package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
)

func TestNewMessage(t *testing.T) {
	msg := protocol.NewMessage(protocol.RoleUser, "hello")

	assert.Equal(t, protocol.RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.Empty(t, msg.Name)
}

func TestMessage_JSON(t *testing.T) {
	data, err := json.Marshal(protocol.NewMessage(protocol.RoleAssistant, "hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":"hi"}`, string(data))

	data, err = json.Marshal(protocol.ToolResultMessage("search", "3 results"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":"3 results","name":"search"}`, string(data))
}

func TestTranscript(t *testing.T) {
	messages := []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "weather in Paris?"),
		protocol.ToolResultMessage("weather", "sunny"),
		protocol.NewMessage(protocol.RoleAssistant, "It is sunny."),
	}

	expected := "user: weather in Paris?\ntool(weather): sunny\nassistant: It is sunny."
	assert.Equal(t, expected, protocol.Transcript(messages))
	assert.Empty(t, protocol.Transcript(nil))
}

func TestToolCall_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
		want protocol.ToolCall
	}{
		{
			name: "flat object arguments",
			data: `{"name":"search","arguments":{"query":"go"}}`,
			want: protocol.ToolCall{Name: "search", Arguments: json.RawMessage(`{"query":"go"}`)},
		},
		{
			name: "flat string arguments",
			data: `{"id":"c1","name":"search","arguments":"{\"query\":\"go\"}"}`,
			want: protocol.ToolCall{ID: "c1", Name: "search", Arguments: json.RawMessage(`{"query":"go"}`)},
		},
		{
			name: "nested function form",
			data: `{"id":"c2","type":"function","function":{"name":"weather","arguments":"{\"city\":\"Paris\"}"}}`,
			want: protocol.ToolCall{ID: "c2", Name: "weather", Arguments: json.RawMessage(`{"city":"Paris"}`)},
		},
		{
			name: "missing arguments",
			data: `{"name":"now"}`,
			want: protocol.ToolCall{Name: "now", Arguments: json.RawMessage(`{}`)},
		},
		{
			name: "empty string arguments",
			data: `{"name":"now","arguments":""}`,
			want: protocol.ToolCall{Name: "now", Arguments: json.RawMessage(`{}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tc protocol.ToolCall
			require.NoError(t, json.Unmarshal([]byte(tt.data), &tc))

			assert.Equal(t, tt.want.ID, tc.ID)
			assert.Equal(t, tt.want.Name, tc.Name)
			assert.JSONEq(t, string(tt.want.Arguments), string(tc.Arguments))
		})
	}
}

func TestToolCall_UnmarshalJSON_InvalidArguments(t *testing.T) {
	var tc protocol.ToolCall
	err := json.Unmarshal([]byte(`{"name":"search","arguments":"not json"}`), &tc)
	assert.Error(t, err)
}
