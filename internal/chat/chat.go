package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/atom-ai-labs/cataloger/internal/telemetry"
	"github.com/atom-ai-labs/cataloger/internal/warehouse"
	"github.com/atom-ai-labs/cataloger/provider"
)

// DefaultMaxToolTurns bounds how many rounds of tool execution a single user
// message may trigger before the model is forced to answer in text.
const DefaultMaxToolTurns = 5

// Tool pairs a declared function with the code that runs when the model
// invokes it.
type Tool struct {
	Spec provider.ToolSpec
	Run  func(ctx context.Context, arguments string) (string, error)
}

// QueryInventoryTool binds the inventory read to a fixed table. The tool takes
// no arguments: it always returns the full, current table contents.
func QueryInventoryTool(reader *warehouse.Reader, ref warehouse.TableRef) Tool {
	return Tool{
		Spec: provider.ToolSpec{
			Name: "query_inventory",
			Description: "Fetches the CURRENT vehicle inventory from the warehouse. " +
				"Use this tool for ANY question about makes, models, versions, prices, " +
				"mileage, year, stock counts, comparisons between vehicles, or technical " +
				"specifications. It is the ONLY source of truth for inventory data.",
			Parameters: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		Run: func(ctx context.Context, _ string) (string, error) {
			return reader.ReadAll(ctx, ref), nil
		},
	}
}

// Orchestrator drives the tool-calling conversation loop. Each user message
// may trigger up to MaxToolTurns rounds of tool execution; after that the
// model is called once more without tools so the reply is always text.
type Orchestrator struct {
	Provider     provider.Provider
	Tools        []Tool
	MaxToolTurns int
	Logger       *log.Logger
}

func New(p provider.Provider, tools ...Tool) *Orchestrator {
	return &Orchestrator{
		Provider:     p,
		Tools:        tools,
		MaxToolTurns: DefaultMaxToolTurns,
		Logger:       log.New(os.Stdout, "[CHAT] ", log.LstdFlags),
	}
}

func (o *Orchestrator) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(io.Discard, "", 0)
}

func (o *Orchestrator) maxTurns() int {
	if o.MaxToolTurns > 0 {
		return o.MaxToolTurns
	}
	return DefaultMaxToolTurns
}

func (o *Orchestrator) findTool(name string) (Tool, bool) {
	for _, t := range o.Tools {
		if t.Spec.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

func (o *Orchestrator) specs() []provider.ToolSpec {
	out := make([]provider.ToolSpec, 0, len(o.Tools))
	for _, t := range o.Tools {
		out = append(out, t.Spec)
	}
	return out
}

// Respond answers a user message on top of an existing transcript. It returns
// the model's text reply plus the messages appended during this exchange (the
// user message, any tool-call turns, and the final assistant reply), so the
// caller can persist them as the new history suffix.
func (o *Orchestrator) Respond(ctx context.Context, system string, history []provider.Message, message string) (string, []provider.Message, error) {
	appended := []provider.Message{{Role: "user", Content: message}}
	transcript := append(append([]provider.Message{}, history...), appended...)

	for turn := 0; turn < o.maxTurns(); turn++ {
		reply, err := o.Provider.Chat(ctx, system, transcript, o.specs())
		if err != nil {
			return "", nil, fmt.Errorf("chat turn %d: %w", turn, err)
		}
		if len(reply.ToolCalls) == 0 {
			appended = append(appended, provider.Message{Role: "assistant", Content: reply.Content})
			return reply.Content, appended, nil
		}

		callMsg := provider.Message{Role: "assistant", Content: reply.Content, ToolCalls: reply.ToolCalls}
		appended = append(appended, callMsg)
		transcript = append(transcript, callMsg)

		for _, call := range reply.ToolCalls {
			result := o.execute(ctx, call)
			toolMsg := provider.Message{Role: "tool", Content: result, ToolCallID: call.ID}
			appended = append(appended, toolMsg)
			transcript = append(transcript, toolMsg)
		}
	}

	// Ceiling reached: one last call with no tools forces a text answer.
	o.logger().Printf("tool turn ceiling (%d) reached, forcing text reply", o.maxTurns())
	reply, err := o.Provider.Chat(ctx, system, transcript, nil)
	if err != nil {
		return "", nil, fmt.Errorf("final chat turn: %w", err)
	}
	appended = append(appended, provider.Message{Role: "assistant", Content: reply.Content})
	return reply.Content, appended, nil
}

// execute runs one tool call. Failures never abort the conversation: the
// error is handed back to the model as the tool result so it can recover in
// text.
func (o *Orchestrator) execute(ctx context.Context, call provider.ToolCall) string {
	telemetry.ToolInvocations.Inc()
	tool, ok := o.findTool(call.Name)
	if !ok {
		o.logger().Printf("model requested unknown tool %q", call.Name)
		return fmt.Sprintf(`{"error": "unknown tool %s"}`, call.Name)
	}
	o.logger().Printf("invoking tool %s", call.Name)
	result, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		o.logger().Printf("tool %s failed: %v", call.Name, err)
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return result
}
