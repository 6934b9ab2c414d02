// Package dispatch is the query indirection between agent tools and the
// rest of the application. Tools never hold a database handle; they send
// a typed query through a Dispatcher and get the typed result back. The
// in-process mux here routes queries to the local catalog, but the same
// interface can front a message bus without touching the agents.
package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cinechat/internal/types"
)

// SearchMoviesQuery requests a paged library search.
type SearchMoviesQuery struct {
	Criteria types.SearchCriteria
}

// SearchMoviesResult carries the matches and the pre-paging total.
type SearchMoviesResult struct {
	Items []types.MovieItem
	Total int
}

// ListGenresQuery requests the full genre list.
type ListGenresQuery struct{}

// ListGenresResult carries the genres.
type ListGenresResult struct {
	Genres []types.Genre
}

// MovieDetailsQuery requests one library record by local ID.
type MovieDetailsQuery struct {
	LocalID string
}

// MovieDetailsResult carries the record, nil when absent.
type MovieDetailsResult struct {
	Item *types.MovieItem
}

// Mux routes typed queries to the local catalog.
type Mux struct {
	local types.LocalCatalog
	log   *zap.Logger
}

var _ types.Dispatcher = (*Mux)(nil)

// NewMux creates the in-process dispatcher.
func NewMux(local types.LocalCatalog, log *zap.Logger) *Mux {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mux{local: local, log: log.Named("dispatch")}
}

// Send routes one query. An unrecognized request type is a programming
// error and fails loudly.
func (m *Mux) Send(ctx context.Context, req any) (any, error) {
	switch q := req.(type) {
	case SearchMoviesQuery:
		items, total, err := m.local.SearchMovies(ctx, q.Criteria)
		if err != nil {
			return nil, fmt.Errorf("search movies: %w", err)
		}
		m.log.Debug("library search",
			zap.String("text", q.Criteria.Text),
			zap.Int("matches", total))
		return SearchMoviesResult{Items: items, Total: total}, nil

	case ListGenresQuery:
		genres, err := m.local.ListGenres(ctx)
		if err != nil {
			return nil, fmt.Errorf("list genres: %w", err)
		}
		return ListGenresResult{Genres: genres}, nil

	case MovieDetailsQuery:
		item, err := m.local.MovieByID(ctx, q.LocalID)
		if err != nil {
			return nil, fmt.Errorf("movie details: %w", err)
		}
		return MovieDetailsResult{Item: item}, nil

	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}
