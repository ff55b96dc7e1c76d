package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/atom-ai-labs/cataloger/provider"
)

// scriptedModel replays a fixed sequence of turns and records what it was
// sent each step.
type scriptedModel struct {
	turns       []provider.Turn
	calls       int
	transcripts [][]provider.Message
	toolsSeen   [][]provider.ToolSpec
}

func (s *scriptedModel) Generate(ctx context.Context, prompt string) (string, int64, int64, error) {
	return "", 0, 0, errors.New("not a completion model")
}

func (s *scriptedModel) Chat(ctx context.Context, system string, messages []provider.Message, tools []provider.ToolSpec) (provider.Turn, error) {
	s.transcripts = append(s.transcripts, append([]provider.Message{}, messages...))
	s.toolsSeen = append(s.toolsSeen, tools)
	if s.calls >= len(s.turns) {
		return provider.Turn{}, errors.New("script exhausted")
	}
	turn := s.turns[s.calls]
	s.calls++
	return turn, nil
}

func quietOrchestrator(model provider.Provider, tools ...Tool) *Orchestrator {
	o := New(model, tools...)
	o.Logger = log.New(io.Discard, "", 0)
	return o
}

func countingTool(name, reply string, calls *int) Tool {
	return Tool{
		Spec: provider.ToolSpec{Name: name, Description: "test tool"},
		Run: func(ctx context.Context, _ string) (string, error) {
			*calls++
			return reply, nil
		},
	}
}

func TestRespondWithoutToolCallsReturnsText(t *testing.T) {
	model := &scriptedModel{turns: []provider.Turn{{Content: "hola"}}}
	o := quietOrchestrator(model)

	text, appended, err := o.Respond(context.Background(), "persona", nil, "hi")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if text != "hola" {
		t.Fatalf("text = %q", text)
	}
	if len(appended) != 2 || appended[0].Role != "user" || appended[1].Role != "assistant" {
		t.Fatalf("appended = %v", appended)
	}
}

func TestRespondExecutesToolAndFeedsResultBack(t *testing.T) {
	calls := 0
	model := &scriptedModel{turns: []provider.Turn{
		{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "query_inventory"}}},
		{Content: "we have 3 cars"},
	}}
	o := quietOrchestrator(model, countingTool("query_inventory", `[{"model":"Hilux"}]`, &calls))

	text, appended, err := o.Respond(context.Background(), "persona", nil, "stock?")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if text != "we have 3 cars" {
		t.Fatalf("text = %q", text)
	}
	if calls != 1 {
		t.Fatalf("tool calls = %d, want 1", calls)
	}

	// Second model call must see the tool result wired to the call id.
	last := model.transcripts[1]
	toolMsg := last[len(last)-1]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "c1" || !strings.Contains(toolMsg.Content, "Hilux") {
		t.Fatalf("tool message = %+v", toolMsg)
	}
	// user, assistant tool-call turn, tool result, final assistant reply.
	if len(appended) != 4 {
		t.Fatalf("appended = %d messages, want 4", len(appended))
	}
}

func TestRespondToolFailureSurfacesAsToolResult(t *testing.T) {
	model := &scriptedModel{turns: []provider.Turn{
		{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "query_inventory"}}},
		{Content: "the inventory is unavailable right now"},
	}}
	failing := Tool{
		Spec: provider.ToolSpec{Name: "query_inventory"},
		Run: func(ctx context.Context, _ string) (string, error) {
			return "", errors.New("warehouse down")
		},
	}
	o := quietOrchestrator(model, failing)

	text, _, err := o.Respond(context.Background(), "persona", nil, "stock?")
	if err != nil {
		t.Fatalf("tool failure must not abort the conversation: %v", err)
	}
	if text == "" {
		t.Fatalf("expected a text reply")
	}
	last := model.transcripts[1]
	toolMsg := last[len(last)-1]
	if !strings.Contains(toolMsg.Content, "warehouse down") {
		t.Fatalf("tool result = %q, want embedded error", toolMsg.Content)
	}
}

func TestRespondStopsAtToolTurnCeiling(t *testing.T) {
	// The model asks for the tool forever; the loop must cut it off.
	turns := make([]provider.Turn, 0, 6)
	for i := 0; i < 5; i++ {
		turns = append(turns, provider.Turn{ToolCalls: []provider.ToolCall{{ID: "c", Name: "loop"}}})
	}
	turns = append(turns, provider.Turn{Content: "giving a direct answer"})

	calls := 0
	model := &scriptedModel{turns: turns}
	o := quietOrchestrator(model, countingTool("loop", "{}", &calls))

	text, _, err := o.Respond(context.Background(), "persona", nil, "go")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if text != "giving a direct answer" {
		t.Fatalf("text = %q", text)
	}
	if calls != DefaultMaxToolTurns {
		t.Fatalf("tool calls = %d, want %d", calls, DefaultMaxToolTurns)
	}
	// The forced final call carries no tools.
	if final := model.toolsSeen[len(model.toolsSeen)-1]; final != nil {
		t.Fatalf("final turn offered tools: %v", final)
	}
}

func TestRespondLowerCeilingIsHonored(t *testing.T) {
	turns := []provider.Turn{
		{ToolCalls: []provider.ToolCall{{ID: "c", Name: "loop"}}},
		{ToolCalls: []provider.ToolCall{{ID: "c", Name: "loop"}}},
		{Content: "done"},
	}
	calls := 0
	model := &scriptedModel{turns: turns}
	o := quietOrchestrator(model, countingTool("loop", "{}", &calls))
	o.MaxToolTurns = 2

	if _, _, err := o.Respond(context.Background(), "persona", nil, "go"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if calls != 2 {
		t.Fatalf("tool calls = %d, want 2", calls)
	}
}

func TestRespondUnknownToolReportsErrorToModel(t *testing.T) {
	model := &scriptedModel{turns: []provider.Turn{
		{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "nonexistent"}}},
		{Content: "sorry"},
	}}
	o := quietOrchestrator(model)

	if _, _, err := o.Respond(context.Background(), "persona", nil, "hi"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	last := model.transcripts[1]
	toolMsg := last[len(last)-1]
	if !strings.Contains(toolMsg.Content, "unknown tool") {
		t.Fatalf("tool result = %q", toolMsg.Content)
	}
}

func TestRespondHistoryIsPrepended(t *testing.T) {
	model := &scriptedModel{turns: []provider.Turn{{Content: "again?"}}}
	o := quietOrchestrator(model)

	history := []provider.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
	}
	if _, _, err := o.Respond(context.Background(), "persona", history, "second"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	sent := model.transcripts[0]
	if len(sent) != 3 || sent[0].Content != "first" || sent[2].Content != "second" {
		t.Fatalf("transcript = %v", sent)
	}
}
