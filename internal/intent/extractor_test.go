package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinechat/internal/types"
)

type stubLLM struct {
	text     string
	err      error
	requests []types.CompletionRequest
}

func (s *stubLLM) Complete(ctx context.Context, req types.CompletionRequest) (*types.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &types.Completion{Text: s.text, StopReason: "stop"}, nil
}

func extract(t *testing.T, llm *stubLLM, history []types.ChatMessage, thread string) Extraction {
	t.Helper()
	ext, err := New(Config{}, llm, nil).Extract(context.Background(), history, thread)
	require.NoError(t, err)
	return ext
}

func TestExtract_SingleDiscoveryIntent(t *testing.T) {
	llm := &stubLLM{text: `{"intents":[{"type":"catalog_discovery","context_hint":"year=2014"}],"clarify":null}`}
	history := []types.ChatMessage{{Role: types.RoleUser, Content: "je veux un film de 2014 avec du fantastique"}}

	ext := extract(t, llm, history, "")
	require.Len(t, ext.Steps, 1)
	assert.Equal(t, types.IntentCatalogDiscovery, ext.Steps[0].Type)
	assert.Equal(t, "year=2014", ext.Steps[0].ContextHint)
	assert.Empty(t, ext.Clarify)
	assert.True(t, ext.Actionable())

	// The classification call asks the provider for a JSON object.
	require.Len(t, llm.requests, 1)
	assert.True(t, llm.requests[0].JSONResponse)
}

func TestExtract_TwoOrderedIntents(t *testing.T) {
	llm := &stubLLM{text: `{"intents":[{"type":"person_lookup","context_hint":"Sofia Coppola"},{"type":"similar_movies","context_hint":null}],"clarify":null}`}

	ext := extract(t, llm, nil, "")
	require.Len(t, ext.Steps, 2)
	assert.Equal(t, types.IntentPersonLookup, ext.Steps[0].Type)
	assert.Equal(t, types.IntentSimilarMovies, ext.Steps[1].Type)
}

func TestExtract_CapsAtTwoIntents(t *testing.T) {
	llm := &stubLLM{text: `{"intents":[{"type":"catalog_discovery","context_hint":null},{"type":"person_lookup","context_hint":null},{"type":"similar_movies","context_hint":null}],"clarify":null}`}

	ext := extract(t, llm, nil, "")
	assert.Len(t, ext.Steps, MaxSteps)
}

func TestExtract_UnknownTypeCoercedToNone(t *testing.T) {
	llm := &stubLLM{text: `{"intents":[{"type":"order_pizza","context_hint":null}],"clarify":null}`}

	ext := extract(t, llm, nil, "")
	require.Len(t, ext.Steps, 1)
	assert.Equal(t, types.IntentNone, ext.Steps[0].Type)
	assert.False(t, ext.Actionable())
	// A non-actionable result always carries a question to ask.
	assert.NotEmpty(t, ext.Clarify)
}

func TestExtract_ClarificationPath(t *testing.T) {
	llm := &stubLLM{text: `{"intents":[{"type":"none","context_hint":null}],"clarify":"Quel film cherchez-vous ?"}`}

	ext := extract(t, llm, nil, "")
	assert.False(t, ext.Actionable())
	assert.Equal(t, "Quel film cherchez-vous ?", ext.Clarify)
}

func TestExtract_MalformedOutputSafeDefault(t *testing.T) {
	for _, raw := range []string{
		"",
		"not json at all",
		`{"intents": "wrong shape"}`,
		`{"intents":[],"clarify":null}`,
	} {
		llm := &stubLLM{text: raw}
		ext := extract(t, llm, nil, "")
		require.Len(t, ext.Steps, 1, "input %q", raw)
		assert.Equal(t, types.IntentNone, ext.Steps[0].Type)
		assert.Equal(t, DefaultClarification, ext.Clarify)
	}
}

func TestExtract_CompletionFailureSafeDefault(t *testing.T) {
	llm := &stubLLM{err: errors.New("connection refused")}

	ext := extract(t, llm, nil, "")
	assert.False(t, ext.Actionable())
	assert.Equal(t, DefaultClarification, ext.Clarify)
}

func TestExtract_CancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}, &stubLLM{text: "{}"}, nil).Extract(ctx, nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_ThreadInjectedAsGroundTruth(t *testing.T) {
	llm := &stubLLM{text: `{"intents":[{"type":"similar_movies","context_hint":"confirmed reference"}],"clarify":null}`}
	history := []types.ChatMessage{
		{Role: types.RoleAssistant, Content: "Parlez-vous du film The Matrix (1999) ?"},
		{Role: types.RoleUser, Content: "oui"},
	}

	ext := extract(t, llm, history, "refTmdbMovieId=603")
	assert.Equal(t, types.IntentSimilarMovies, ext.Steps[0].Type)

	msgs := llm.requests[0].Messages
	last := msgs[len(msgs)-1]
	assert.Equal(t, types.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "refTmdbMovieId=603")
}

func TestExtract_HistoryBounded(t *testing.T) {
	llm := &stubLLM{text: `{"intents":[{"type":"none","context_hint":null}],"clarify":"?"}`}
	var history []types.ChatMessage
	for i := 0; i < 12; i++ {
		history = append(history, types.ChatMessage{Role: types.RoleUser, Content: "x"})
	}

	extract(t, llm, history, "")
	// System prompt plus at most 6 replayed turns.
	assert.Len(t, llm.requests[0].Messages, 7)
}
