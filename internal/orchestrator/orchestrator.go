// Package orchestrator runs one user turn: classify the turn into
// intent steps, then fold the turn context through the matching agents
// in order. Strictly sequential; step two may depend on state step one
// established.
package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"cinechat/internal/intent"
	"cinechat/internal/types"
)

// Agent is one conversational specialization the orchestrator can route
// a step to.
type Agent interface {
	Execute(ctx context.Context, history []types.ChatMessage, step types.IntentStep, tc types.TurnContext) (types.TurnContext, error)
}

// Extractor classifies a turn into intent steps.
type Extractor interface {
	Extract(ctx context.Context, history []types.ChatMessage, thread string) (intent.Extraction, error)
}

// Orchestrator is the top-level control loop.
type Orchestrator struct {
	extractor Extractor
	agents    map[types.IntentType]Agent
	maxSteps  int
	log       *zap.Logger
}

// New builds an orchestrator over a complete agent registry.
func New(extractor Extractor, agents map[types.IntentType]Agent, maxSteps int, log *zap.Logger) *Orchestrator {
	if maxSteps < 1 {
		maxSteps = intent.MaxSteps
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		extractor: extractor,
		agents:    agents,
		maxSteps:  maxSteps,
		log:       log.Named("orchestrator"),
	}
}

// Turn executes one user turn. The incoming thread is whatever
// additional_context the caller round-tripped from the previous
// response. Only cancellation is returned as an error; everything else
// degrades into a coherent result.
func (o *Orchestrator) Turn(ctx context.Context, history []types.ChatMessage, thread string) (types.TurnContext, error) {
	tc := types.TurnContext{Thread: thread}

	ext, err := o.extractor.Extract(ctx, history, thread)
	if err != nil {
		return tc, err
	}

	if !ext.Actionable() {
		clarify := ext.Clarify
		if clarify == "" {
			clarify = intent.DefaultClarification
		}
		o.log.Debug("no actionable intent, clarifying")
		return tc.WithResult(clarify), nil
	}

	steps := ext.Steps
	if len(steps) > o.maxSteps {
		steps = steps[:o.maxSteps]
	}

	for i, step := range steps {
		if step.Type == types.IntentNone {
			continue
		}
		ag, ok := o.agents[step.Type]
		if !ok {
			o.log.Error("no agent registered for intent", zap.String("intent", string(step.Type)))
			continue
		}

		o.log.Debug("executing step",
			zap.Int("step", i+1),
			zap.String("intent", string(step.Type)))

		tc, err = ag.Execute(ctx, history, step, tc)
		if err != nil {
			return tc, err
		}

		// Never invoke a subsequent agent without a grounding message.
		if tc.Result == "" {
			o.log.Warn("step produced no result, stopping turn early",
				zap.String("intent", string(step.Type)))
			break
		}
	}

	if tc.Result == "" {
		return tc.WithResult(intent.DefaultClarification), nil
	}
	return tc, nil
}
