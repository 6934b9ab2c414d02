// Package agent implements the conversational agents: one shared shell
// that drives the LLM tool loop and three specializations (catalog
// discovery, person resolution, similar-movie lookup) that differ only
// in instructions and tool catalogs. The shell owns every defensive
// boundary against the model: bounded history, a capped tool loop,
// strict envelope decoding with raw-text fallback, and the rule that a
// malformed response never corrupts previously established state.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cinechat/internal/envelope"
	"cinechat/internal/thread"
	"cinechat/internal/types"
)

// UnavailableMessage is the user-visible reply when an upstream
// dependency fails mid-turn. The thread is left untouched so the user
// can simply retry.
const UnavailableMessage = "Désolé, le service est momentanément indisponible. Veuillez réessayer dans quelques instants."

// Tool couples one callable domain function with its handler. Handlers
// must be safe to run concurrently with each other; the model may issue
// several calls in one round.
type Tool struct {
	Def types.ToolDefinition
	Run func(ctx context.Context, input map[string]any) (any, error)
}

// Config parameterizes one shell instance.
type Config struct {
	// Name identifies the specialization in logs.
	Name string
	// Instructions is the system prompt. Injected at construction so
	// tests can substitute their own.
	Instructions string
	// HistoryWindow bounds how many trailing non-system messages are
	// replayed. Zero disables history.
	HistoryWindow int
	// MaxToolRounds bounds the tool loop; once exhausted the model is
	// asked to answer without further calls.
	MaxToolRounds int
	Temperature   float64
	// ContextNote renders the decoded thread state as one extra system
	// note, so the specialization decides which keys it understands and
	// how to phrase them. Returning "" skips the note.
	ContextNote func(th *thread.Thread) string
}

// Shell executes one agent invocation: replay bounded history, inject
// the step directive and the ground-truth context, run the tool loop,
// decode the envelope.
type Shell struct {
	cfg   Config
	llm   types.LLMClient
	tools []Tool
	log   *zap.Logger
}

// NewShell builds a shell for one specialization.
func NewShell(cfg Config, llm types.LLMClient, tools []Tool, log *zap.Logger) *Shell {
	if cfg.MaxToolRounds < 1 {
		cfg.MaxToolRounds = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{
		cfg:   cfg,
		llm:   llm,
		tools: tools,
		log:   log.Named("agent." + cfg.Name),
	}
}

// Execute runs one invocation against the accumulator and returns the
// updated copy. Only cancellation is returned as an error; every other
// failure degrades into a coherent visible message.
func (s *Shell) Execute(ctx context.Context, history []types.ChatMessage, step types.IntentStep, tc types.TurnContext) (types.TurnContext, error) {
	messages := s.assemble(history, step, tc)

	var raw string
	for round := 0; ; round++ {
		completion, err := s.llm.Complete(ctx, types.CompletionRequest{
			Messages:    messages,
			Tools:       s.toolDefs(round),
			Temperature: s.cfg.Temperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return tc, ctx.Err()
			}
			s.log.Error("completion failed", zap.Error(err))
			return s.unavailable(tc), nil
		}

		if len(completion.ToolCalls) == 0 {
			raw = completion.Text
			break
		}

		messages = append(messages, types.ChatMessage{
			Role:      types.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})

		results, err := s.runTools(ctx, completion.ToolCalls)
		if err != nil {
			if ctx.Err() != nil {
				return tc, ctx.Err()
			}
			s.log.Error("tool execution failed", zap.Error(err))
			return s.unavailable(tc), nil
		}
		messages = append(messages, results...)
	}

	return s.applyEnvelope(raw, tc), nil
}

// assemble builds the working conversation for one invocation.
func (s *Shell) assemble(history []types.ChatMessage, step types.IntentStep, tc types.TurnContext) []types.ChatMessage {
	messages := []types.ChatMessage{{Role: types.RoleSystem, Content: s.cfg.Instructions}}
	messages = append(messages, boundHistory(history, s.cfg.HistoryWindow)...)

	if hint := strings.TrimSpace(step.ContextHint); hint != "" {
		messages = append(messages, types.ChatMessage{
			Role:    types.RoleSystem,
			Content: "Directive for this step: " + hint,
		})
	}
	if ground := strings.TrimSpace(tc.Thread); ground != "" {
		messages = append(messages, types.ChatMessage{
			Role:    types.RoleSystem,
			Content: "Established context (ground truth, do not guess or contradict): " + ground,
		})
	}
	if s.cfg.ContextNote != nil {
		if note := strings.TrimSpace(s.cfg.ContextNote(thread.Parse(tc.Thread))); note != "" {
			messages = append(messages, types.ChatMessage{
				Role:    types.RoleSystem,
				Content: note,
			})
		}
	}
	return messages
}

// toolDefs returns the tool catalog, or nil once the round budget is
// spent so the model is forced to produce its final answer.
func (s *Shell) toolDefs(round int) []types.ToolDefinition {
	if round >= s.cfg.MaxToolRounds || len(s.tools) == 0 {
		return nil
	}
	defs := make([]types.ToolDefinition, len(s.tools))
	for i, t := range s.tools {
		defs[i] = t.Def
	}
	return defs
}

// runTools executes one round of tool calls concurrently and returns the
// tool-result messages in call order. An upstream failure aborts the
// round; a domain-level mistake (unknown tool, bad arguments) is fed
// back to the model as an error payload instead so it can correct
// itself.
func (s *Shell) runTools(ctx context.Context, calls []types.ToolCall) ([]types.ChatMessage, error) {
	results := make([]types.ChatMessage, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			content, err := s.runTool(gctx, call)
			if err != nil {
				return err
			}
			results[i] = types.ChatMessage{
				Role:       types.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Shell) runTool(ctx context.Context, call types.ToolCall) (string, error) {
	tool := s.lookup(call.Name)
	if tool == nil {
		s.log.Warn("model called unknown tool", zap.String("tool", call.Name))
		return errorPayload(fmt.Sprintf("unknown tool %q", call.Name)), nil
	}

	s.log.Debug("tool call", zap.String("tool", call.Name))
	out, err := tool.Run(ctx, call.Input)
	if err != nil {
		if types.IsUpstream(err) || ctx.Err() != nil {
			return "", err
		}
		// The model's mistake, not ours. Let it see the failure.
		return errorPayload(err.Error()), nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result of %s: %w", call.Name, err)
	}
	return string(data), nil
}

func (s *Shell) lookup(name string) *Tool {
	for i := range s.tools {
		if s.tools[i].Def.Name == name {
			return &s.tools[i]
		}
	}
	return nil
}

// applyEnvelope folds the model's final text into the accumulator. A
// valid envelope replaces the visible message, the thread (null keeps
// the prior one) and the attachments (null clears them). Anything less
// falls back to the raw text with prior state intact.
func (s *Shell) applyEnvelope(raw string, tc types.TurnContext) types.TurnContext {
	env, err := envelope.Decode(raw)
	if err != nil {
		s.log.Warn("envelope decode failed, falling back to raw text", zap.Error(err))
		return tc.WithResult(raw)
	}

	if env.AdditionalContext != nil {
		tc.Thread = reviseThread(tc.Thread, *env.AdditionalContext)
	}
	tc.Attachments = env.Attachments

	if strings.TrimSpace(env.Message) == "" {
		return tc.WithResult(raw)
	}
	return tc.WithResult(env.Message)
}

// reviseThread folds the emitted additional_context into the carried
// thread. An explicit empty string is the no-match signal: resolved
// identifier keys drop, every other key survives. A non-empty emission
// is normalized through the codec, dropping malformed segments and
// re-capping the candidates list, so model sloppiness never reaches the
// next turn.
func reviseThread(prior, emitted string) string {
	if strings.TrimSpace(emitted) == "" {
		th := thread.Parse(prior)
		th.ClearIdentifiers()
		return th.Serialize()
	}
	th := thread.Parse(emitted)
	if _, ok := th.Get(thread.KeyCandidates); ok {
		if cands := th.Candidates(); len(cands) > 0 {
			th.SetCandidates(cands)
		} else {
			th.Delete(thread.KeyCandidates)
		}
	}
	return th.Serialize()
}

// unavailable degrades the turn: generic apology, thread untouched,
// nothing to render.
func (s *Shell) unavailable(tc types.TurnContext) types.TurnContext {
	tc.Attachments = nil
	return tc.WithResult(UnavailableMessage)
}

// boundHistory returns the last n non-system messages.
func boundHistory(history []types.ChatMessage, n int) []types.ChatMessage {
	if n <= 0 {
		return nil
	}
	var recent []types.ChatMessage
	for _, m := range history {
		if m.Role == types.RoleSystem {
			continue
		}
		recent = append(recent, m)
	}
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	return recent
}

func errorPayload(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
