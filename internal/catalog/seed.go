package catalog

import (
	"context"
	"fmt"

	"cinechat/internal/types"
)

// SeedDemo populates an empty library with a small set of movies so a
// fresh install has local results to merge against the remote catalog.
// No-op when the library already holds records.
func (l *Local) SeedDemo(ctx context.Context) error {
	var count int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movies").Scan(&count); err != nil {
		return fmt.Errorf("failed to inspect library: %w", err)
	}
	if count > 0 {
		return nil
	}

	genres := []types.Genre{
		{ID: 14, Name: "Fantasy"},
		{ID: 18, Name: "Drama"},
		{ID: 28, Name: "Action"},
		{ID: 35, Name: "Comedy"},
		{ID: 878, Name: "Science Fiction"},
	}
	for _, g := range genres {
		if err := l.AddGenre(ctx, g); err != nil {
			return err
		}
	}

	movies := []struct {
		item   types.MovieItem
		genres []int
	}{
		{types.MovieItem{TMDBID: 603, Title: "The Matrix", Year: 1999, PosterPath: "/f89U3ADr1oiB1s9GkdPOEpXUk5H.jpg"}, []int{28, 878}},
		{types.MovieItem{TMDBID: 157336, Title: "Interstellar", Year: 2014}, []int{18, 878}},
		{types.MovieItem{TMDBID: 122917, Title: "The Hobbit: The Battle of the Five Armies", Year: 2014}, []int{14, 28}},
		{types.MovieItem{TMDBID: 194, Title: "Amélie", Year: 2001}, []int{35, 18}},
		{types.MovieItem{TMDBID: 680, Title: "Pulp Fiction", Year: 1994}, []int{18, 28}},
	}
	for _, m := range movies {
		if _, err := l.AddMovie(ctx, m.item, m.genres); err != nil {
			return err
		}
	}
	return nil
}
