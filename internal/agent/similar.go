package agent

import (
	"context"

	"go.uber.org/zap"

	"cinechat/internal/dispatch"
	"cinechat/internal/merge"
	"cinechat/internal/thread"
	"cinechat/internal/types"
)

// DefaultSimilarInstructions is the built-in system prompt for the
// similar-movie agent.
const DefaultSimilarInstructions = `You are the similar movies assistant of a movie tracking application. Given a reference movie you recommend movies like it, answering in the user's language (usually French).

Rules:
- You need the reference movie's numeric id before recommending. If the established context holds "refTmdbMovieId=<id>", use it directly; "show me more like that" re-issues search_similar_movies with that same id.
- If the user only named a movie, first call search_movies to resolve it:
  - Exactly one match: call search_similar_movies with its id.
  - Several matches: ask the user to choose among at most 3, setting additional_context to "candidates=<json array>" of {"referenceId": int, "localId": string, "name": string, "previewPath": string} (omit empty fields).
  - No match: say so and set additional_context to the empty string "" so stale identifiers are cleared. Never set it to null in that case; null keeps the old context.
- After recommending, copy the "context" value from the search_similar_movies result into additional_context verbatim (no candidates key) so a later turn can skip re-resolution.
- attachments lists the recommendations, at most 10; copy the "attachments" array from the search_similar_movies result, trimming entries you chose not to mention. Use null when you have nothing to show.
- Respond with exactly one JSON object: {"message": string, "additional_context": string or null, "attachments": array or null}. No prose outside the JSON.
- Never put numeric ids in the message text.`

// SimilarDeps are the collaborators of the similar-movie agent.
type SimilarDeps struct {
	Dispatcher types.Dispatcher
	Remote     types.RemoteCatalog
}

// maxSimilarResults caps one batch of recommendations.
const maxSimilarResults = 10

// NewSimilar builds the similar-movie agent.
func NewSimilar(cfg Config, llm types.LLMClient, deps SimilarDeps, log *zap.Logger) *Shell {
	cfg.Name = "similar"
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultSimilarInstructions
	}
	cfg.ContextNote = similarContextNote

	tools := []Tool{
		{
			Def: types.ToolDefinition{
				Name:        "search_movies",
				Description: "Search the library and the remote catalog for movies by title, optionally filtered by year. Use it to resolve the reference movie the user named.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{"type": "string", "description": "Title text to search for."},
						"year": map[string]any{"type": "integer", "description": "Optional release year filter."},
					},
					"required": []string{"text"},
				},
			},
			Run: func(ctx context.Context, input map[string]any) (any, error) {
				criteria := types.SearchCriteria{
					Text:     stringArg(input, "text"),
					PageSize: maxSimilarResults,
					Page:     1,
				}
				if criteria.Text == "" {
					return nil, errMissingText
				}
				criteria.Year, _ = intArg(input, "year")

				res, err := deps.Dispatcher.Send(ctx, dispatch.SearchMoviesQuery{Criteria: criteria})
				if err != nil {
					return nil, err
				}
				sr := res.(dispatch.SearchMoviesResult)

				remote, remotePage, err := deps.Remote.SearchMovies(ctx, criteria)
				if err != nil {
					return nil, err
				}
				return merge.Merge(sr.Items, remote, sr.Total, remotePage, merge.Options{
					Page:     1,
					PageSize: maxSimilarResults,
					Truncate: true,
				}), nil
			},
		},
		{
			Def: types.ToolDefinition{
				Name:        "movie_details",
				Description: "Fetch full details for one movie. Pass localId for a movie from the user's library, tmdbId otherwise.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tmdbId":  map[string]any{"type": "integer", "description": "The movie's catalog id."},
						"localId": map[string]any{"type": "string", "description": "The movie's library id, when it has one."},
					},
				},
			},
			Run: func(ctx context.Context, input map[string]any) (any, error) {
				if localID := stringArg(input, "localId"); localID != "" {
					res, err := deps.Dispatcher.Send(ctx, dispatch.MovieDetailsQuery{LocalID: localID})
					if err != nil {
						return nil, err
					}
					if item := res.(dispatch.MovieDetailsResult).Item; item != nil {
						return item, nil
					}
					// Library record gone; fall back to the catalog id.
				}
				id, err := requiredIntArg(input, "tmdbId")
				if err != nil {
					return nil, err
				}
				return deps.Remote.MovieDetails(ctx, id)
			},
		},
		{
			Def: types.ToolDefinition{
				Name:        "search_similar_movies",
				Description: "List movies similar to the reference movie, up to 10.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tmdbId": map[string]any{"type": "integer", "description": "The reference movie's id."},
					},
					"required": []string{"tmdbId"},
				},
			},
			Run: func(ctx context.Context, input map[string]any) (any, error) {
				id, err := requiredIntArg(input, "tmdbId")
				if err != nil {
					return nil, err
				}
				similar, err := deps.Remote.SimilarMovies(ctx, id)
				if err != nil {
					return nil, err
				}
				// One fixed batch; no local counterpart for similarity.
				batch := merge.Merge(nil, similar, 0, types.PageInfo{}, merge.Options{
					Page:     1,
					PageSize: maxSimilarResults,
					Truncate: true,
				})
				th := thread.New()
				th.SetRefMovieID(id)
				return movieBatch{
					Result:      batch,
					Context:     th.Serialize(),
					Attachments: attachmentsFor(batch.Items),
				}, nil
			},
		},
	}

	return NewShell(cfg, llm, tools, log)
}
