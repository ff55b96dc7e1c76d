package provider

import (
	"context"
	"encoding/json"
)

// Message is one turn in a conversation with the chat model.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-initiated request to run a registered function.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec declares a function the chat model may call. Parameters is a JSON
// schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Turn is one model reply: either final content or a batch of tool calls the
// caller must execute and feed back before the next step.
type Turn struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is the interface both oracles are consumed through: Generate for
// one-shot extraction, Chat for the tool-enabled conversation.
type Provider interface {
	// Generate runs a single-prompt completion and reports the token usage
	// the API measured for it.
	Generate(ctx context.Context, prompt string) (text string, inputTokens, outputTokens int64, err error)

	// Chat runs one conversational step over the full transcript. When tools
	// are supplied the model may answer with tool calls instead of content.
	Chat(ctx context.Context, system string, messages []Message, tools []ToolSpec) (Turn, error)
}
