package agent

import (
	"context"

	"go.uber.org/zap"

	"cinechat/internal/thread"
	"cinechat/internal/types"
)

// DefaultPersonInstructions is the built-in system prompt for the
// person-resolution agent.
const DefaultPersonInstructions = `You are the person resolution assistant of a movie tracking application. Given a person's name you identify exactly who the user means, answering in the user's language (usually French).

Rules:
- Call search_person with the name. Then:
  - Exactly one match: call person_details, confirm with the user that this is the right person, and copy the "context" value from the person_details result into additional_context verbatim.
  - Several matches: ask the user to choose among at most 3, and set additional_context to "candidates=<json array>" where each candidate is {"referenceId": int, "localId": string, "name": string, "previewPath": string} (omit empty fields). Number the options in your message so the user can reply "the second one".
  - No match: say so and set additional_context to the empty string "" so stale identifiers are cleared. Never set it to null in that case; null keeps the old context.
- If the established context already holds candidates and the user picked one, resolve that candidate with person_details; the new additional_context is the "context" value of that result, no candidates key.
- You only resolve people. Never look up their movies; another assistant does that.
- Respond with exactly one JSON object: {"message": string, "additional_context": string or null, "attachments": null}. No prose outside the JSON.
- Never put numeric ids in the message text. They belong in additional_context only.`

// PersonDeps are the collaborators of the person agent.
type PersonDeps struct {
	Remote types.RemoteCatalog
}

// maxPersonResults bounds how many search hits the model sees; it only
// ever offers up to MaxCandidates of them anyway.
const maxPersonResults = 5

// personResult pairs the person record with the context value the model
// threads once the person is confirmed.
type personResult struct {
	Person  *types.PersonItem `json:"person"`
	Context string            `json:"context"`
}

// NewPerson builds the person-resolution agent.
func NewPerson(cfg Config, llm types.LLMClient, deps PersonDeps, log *zap.Logger) *Shell {
	cfg.Name = "person"
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultPersonInstructions
	}
	cfg.ContextNote = personContextNote

	tools := []Tool{
		{
			Def: types.ToolDefinition{
				Name:        "search_person",
				Description: "Search the catalog for people by name. Returns matches with their numeric ids.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{"type": "string", "description": "The person's name as the user gave it."},
					},
					"required": []string{"name"},
				},
			},
			Run: func(ctx context.Context, input map[string]any) (any, error) {
				name := stringArg(input, "name")
				if name == "" {
					return nil, errMissingName
				}
				people, page, err := deps.Remote.SearchPeople(ctx, name)
				if err != nil {
					return nil, err
				}
				if len(people) > maxPersonResults {
					people = people[:maxPersonResults]
				}
				return map[string]any{
					"results":      people,
					"totalResults": page.TotalResults,
				}, nil
			},
		},
		{
			Def: types.ToolDefinition{
				Name:        "person_details",
				Description: "Fetch full details for one person by numeric id.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tmdbId": map[string]any{"type": "integer", "description": "The person's id from search_person."},
					},
					"required": []string{"tmdbId"},
				},
			},
			Run: func(ctx context.Context, input map[string]any) (any, error) {
				id, err := requiredIntArg(input, "tmdbId")
				if err != nil {
					return nil, err
				}
				person, err := deps.Remote.PersonDetails(ctx, id)
				if err != nil {
					return nil, err
				}
				th := thread.New()
				th.SetPersonID(person.TMDBID)
				return personResult{Person: person, Context: th.Serialize()}, nil
			},
		},
	}

	return NewShell(cfg, llm, tools, log)
}
