// Package intent classifies one user turn into an ordered list of
// routable intents. The model's output is untrusted: anything that does
// not decode into the expected shape collapses into the safe default, a
// single None step with a clarification question. The extractor never
// propagates a parse failure upward.
package intent

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"cinechat/internal/types"
)

// DefaultClarification is the fallback question when intent cannot be
// determined.
const DefaultClarification = "Je n'ai pas bien compris votre demande. Pouvez-vous préciser ce que vous cherchez ?"

// DefaultInstructions is the built-in classification prompt.
const DefaultInstructions = `You classify the latest user message of a movie tracking chat into at most 2 intents, in execution order.

Intent types (closed set, never invent others):
- "catalog_discovery": browse movies by year and/or genre, including "next page" follow-ups.
- "person_lookup": identify an actor or director the user named.
- "similar_movies": recommend movies similar to a reference movie, including "more like that" follow-ups.
- "none": nothing actionable.

Rules:
- The established context line, when present, is ground truth from earlier turns. If the previous assistant turn asked for a choice or confirmation and the user's reply is an affirmation or a selection ("oui", "le deuxième"), pick the next logical intent from that context instead of re-deriving from scratch. A confirmed person leads to that person's movies; a confirmed reference movie leads to similar_movies.
- Each intent carries a short "context_hint" for its agent, like "year=2014" or "selected candidate 2". Use null when there is nothing useful.
- If nothing is actionable, return a single "none" intent and set "clarify" to a short question in the user's language.
- Respond with exactly one JSON object: {"intents":[{"type": string, "context_hint": string or null}], "clarify": string or null}. No prose outside the JSON.`

// MaxSteps caps the intents executed per turn.
const MaxSteps = 2

// Extraction is one classification outcome. Clarify is non-empty iff
// the turn needs a follow-up question instead of agent work.
type Extraction struct {
	Steps   []types.IntentStep
	Clarify string
}

// Actionable reports whether any step routes to a real agent.
func (e Extraction) Actionable() bool {
	for _, s := range e.Steps {
		if s.Type != types.IntentNone {
			return true
		}
	}
	return false
}

// Config parameterizes the extractor.
type Config struct {
	// Instructions is the classification prompt, injected so tests can
	// substitute their own.
	Instructions string
	// HistoryWindow bounds the replayed history.
	HistoryWindow int
	Temperature   float64
}

// Extractor runs the classification call.
type Extractor struct {
	cfg Config
	llm types.LLMClient
	log *zap.Logger
}

// New builds an extractor.
func New(cfg Config, llm types.LLMClient, log *zap.Logger) *Extractor {
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{cfg: cfg, llm: llm, log: log.Named("intent")}
}

// wireExtraction is the shape the model is asked to emit. Decoding is
// deliberately lenient; coercion happens after.
type wireExtraction struct {
	Intents []struct {
		Type        string  `json:"type"`
		ContextHint *string `json:"context_hint"`
	} `json:"intents"`
	Clarify *string `json:"clarify"`
}

// Extract classifies the turn. Only cancellation is returned as an
// error; every other failure yields the safe default.
func (e *Extractor) Extract(ctx context.Context, history []types.ChatMessage, thread string) (Extraction, error) {
	messages := []types.ChatMessage{{Role: types.RoleSystem, Content: e.cfg.Instructions}}
	messages = append(messages, bounded(history, e.cfg.HistoryWindow)...)
	if t := strings.TrimSpace(thread); t != "" {
		messages = append(messages, types.ChatMessage{
			Role:    types.RoleSystem,
			Content: "Established context from earlier turns: " + t,
		})
	}

	completion, err := e.llm.Complete(ctx, types.CompletionRequest{
		Messages:     messages,
		Temperature:  e.cfg.Temperature,
		JSONResponse: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		e.log.Error("classification call failed", zap.Error(err))
		return safeDefault(), nil
	}

	ext, ok := decode(completion.Text)
	if !ok {
		e.log.Warn("unparseable classification output", zap.String("raw", truncate(completion.Text, 200)))
		return safeDefault(), nil
	}
	return ext, nil
}

// decode parses and normalizes the model output. Out-of-enum types are
// coerced to None, never dropped; the step list is capped.
func decode(raw string) (Extraction, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Extraction{}, false
	}
	var wire wireExtraction
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Extraction{}, false
	}

	var ext Extraction
	if wire.Clarify != nil {
		ext.Clarify = strings.TrimSpace(*wire.Clarify)
	}
	for _, in := range wire.Intents {
		step := types.IntentStep{Type: types.ParseIntentType(in.Type)}
		if in.ContextHint != nil {
			step.ContextHint = strings.TrimSpace(*in.ContextHint)
		}
		ext.Steps = append(ext.Steps, step)
		if len(ext.Steps) == MaxSteps {
			break
		}
	}

	if len(ext.Steps) == 0 {
		if ext.Clarify == "" {
			return Extraction{}, false
		}
		ext.Steps = []types.IntentStep{{Type: types.IntentNone}}
	}
	if !ext.Actionable() && ext.Clarify == "" {
		ext.Clarify = DefaultClarification
	}
	return ext, true
}

func safeDefault() Extraction {
	return Extraction{
		Steps:   []types.IntentStep{{Type: types.IntentNone}},
		Clarify: DefaultClarification,
	}
}

func bounded(history []types.ChatMessage, n int) []types.ChatMessage {
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
