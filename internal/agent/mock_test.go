package agent

import (
	"context"
	"fmt"

	"cinechat/internal/types"
)

// scriptedLLM replays a fixed sequence of completions and records every
// request it saw so tests can assert on the assembled conversations.
type scriptedLLM struct {
	script   []*types.Completion
	err      error
	requests []types.CompletionRequest
}

func (m *scriptedLLM) Complete(ctx context.Context, req types.CompletionRequest) (*types.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) == 0 {
		return nil, fmt.Errorf("scripted LLM exhausted after %d calls", len(m.requests))
	}
	next := m.script[0]
	m.script = m.script[1:]
	return next, nil
}

func finalText(text string) *types.Completion {
	return &types.Completion{Text: text, StopReason: "stop"}
}

func toolCalls(calls ...types.ToolCall) *types.Completion {
	return &types.Completion{ToolCalls: calls, StopReason: "tool_calls"}
}

func envelopeText(message, additionalContext string) string {
	if additionalContext == "" {
		return `{"message":"` + message + `","additional_context":null,"attachments":null}`
	}
	return `{"message":"` + message + `","additional_context":"` + additionalContext + `","attachments":null}`
}
