package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cinechat/internal/dispatch"
	"cinechat/internal/merge"
	"cinechat/internal/thread"
	"cinechat/internal/types"
)

// DefaultDiscoveryInstructions is the built-in system prompt for the
// catalog-discovery agent. Overridable through configuration.
const DefaultDiscoveryInstructions = `You are the catalog discovery assistant of a movie tracking application. You help the user browse movies by year and genre, answering in the user's language (usually French).

Rules:
- You need at least a year or a genre before searching. If you have neither, ask for one instead of guessing.
- Genre names must be resolved to their numeric ids with lookup_genres before calling discover_movies. Never invent genre ids.
- When the user asks for the next page, call discover_movies again with page incremented and the same year and genre ids. If the user changed the year or genres, reset page to 1.
- Respond with exactly one JSON object: {"message": string, "additional_context": string or null, "attachments": array or null}. No prose outside the JSON.
- additional_context carries your search state as "year=<int>;genreIds=<id,id>;page=<int>". The discover_movies result includes a ready-made "context" value for it; copy it verbatim, then append keys you did not change.
- attachments lists the movies found, at most 20; copy the "attachments" array from the discover_movies result, trimming entries you chose not to mention. Use null attachments when there is nothing to show.
- Never put numeric ids in the message text. They belong in additional_context and attachments only.`

// DiscoveryDeps are the collaborators of the discovery agent.
type DiscoveryDeps struct {
	Dispatcher types.Dispatcher
	Remote     types.RemoteCatalog
	// PageSize is the per-source page size used when merging.
	PageSize int
}

// NewDiscovery builds the catalog-discovery agent: lookup_genres plus a
// paged discover_movies that merges the library with the remote catalog.
func NewDiscovery(cfg Config, llm types.LLMClient, deps DiscoveryDeps, log *zap.Logger) *Shell {
	cfg.Name = "discovery"
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultDiscoveryInstructions
	}
	cfg.ContextNote = discoveryContextNote
	if deps.PageSize < 1 {
		deps.PageSize = types.MaxAttachments
	}

	tools := []Tool{
		{
			Def: types.ToolDefinition{
				Name:        "lookup_genres",
				Description: "List every known movie genre with its numeric id. Use it to resolve genre names the user mentioned.",
				InputSchema: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			Run: func(ctx context.Context, _ map[string]any) (any, error) {
				res, err := deps.Dispatcher.Send(ctx, dispatch.ListGenresQuery{})
				if err != nil {
					return nil, err
				}
				return res.(dispatch.ListGenresResult).Genres, nil
			},
		},
		{
			Def: types.ToolDefinition{
				Name:        "discover_movies",
				Description: "Find movies by release year and/or genre ids, paged. Searches the user's library and the remote catalog and returns the merged page.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"year":     map[string]any{"type": "integer", "description": "Release year filter."},
						"genreIds": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}, "description": "Resolved genre ids."},
						"page":     map[string]any{"type": "integer", "description": "Page number, starting at 1."},
					},
				},
			},
			Run: func(ctx context.Context, input map[string]any) (any, error) {
				criteria := types.SearchCriteria{
					GenreIDs: intSliceArg(input, "genreIds"),
					PageSize: deps.PageSize,
				}
				criteria.Year, _ = intArg(input, "year")
				if page, ok := intArg(input, "page"); ok && page > 0 {
					criteria.Page = page
				} else {
					criteria.Page = 1
				}
				if criteria.Year == 0 && len(criteria.GenreIDs) == 0 {
					return nil, fmt.Errorf("discover_movies needs a year or at least one genre id")
				}
				page, err := discoverBoth(ctx, deps, criteria)
				if err != nil {
					return nil, err
				}
				th := thread.New()
				if criteria.Year != 0 {
					th.SetYear(criteria.Year)
				}
				if len(criteria.GenreIDs) > 0 {
					th.SetGenreIDs(criteria.GenreIDs)
				}
				th.SetPage(criteria.Page)
				return movieBatch{
					Result:      page,
					Context:     th.Serialize(),
					Attachments: attachmentsFor(page.Items),
				}, nil
			},
		},
	}

	return NewShell(cfg, llm, tools, log)
}

// discoverBoth queries the library and the remote catalog in parallel
// and merges the two pages without truncation; the model drives paging.
func discoverBoth(ctx context.Context, deps DiscoveryDeps, criteria types.SearchCriteria) (merge.Result, error) {
	var (
		local      []types.MovieItem
		localTotal int
		remote     []types.MovieItem
		remotePage types.PageInfo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := deps.Dispatcher.Send(gctx, dispatch.SearchMoviesQuery{Criteria: criteria})
		if err != nil {
			return err
		}
		sr := res.(dispatch.SearchMoviesResult)
		local, localTotal = sr.Items, sr.Total
		return nil
	})
	g.Go(func() error {
		var err error
		remote, remotePage, err = deps.Remote.DiscoverMovies(gctx, criteria)
		return err
	})
	if err := g.Wait(); err != nil {
		return merge.Result{}, err
	}

	return merge.Merge(local, remote, localTotal, remotePage, merge.Options{
		Page:     criteria.Page,
		PageSize: criteria.PageSize,
	}), nil
}
