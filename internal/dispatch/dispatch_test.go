package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinechat/internal/types"
)

type fakeLocal struct {
	movies []types.MovieItem
	genres []types.Genre
	err    error
}

func (f *fakeLocal) SearchMovies(_ context.Context, _ types.SearchCriteria) ([]types.MovieItem, int, error) {
	return f.movies, len(f.movies), f.err
}

func (f *fakeLocal) ListGenres(_ context.Context) ([]types.Genre, error) {
	return f.genres, f.err
}

func (f *fakeLocal) MovieByID(_ context.Context, localID string) (*types.MovieItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.movies {
		if f.movies[i].LocalID == localID {
			return &f.movies[i], nil
		}
	}
	return nil, nil
}

func TestMuxRoutesSearch(t *testing.T) {
	mux := NewMux(&fakeLocal{movies: []types.MovieItem{{LocalID: "a", Title: "The Matrix"}}}, nil)

	res, err := mux.Send(context.Background(), SearchMoviesQuery{Criteria: types.SearchCriteria{Text: "matrix"}})
	require.NoError(t, err)

	sr, ok := res.(SearchMoviesResult)
	require.True(t, ok)
	assert.Equal(t, 1, sr.Total)
	assert.Equal(t, "The Matrix", sr.Items[0].Title)
}

func TestMuxRoutesGenres(t *testing.T) {
	mux := NewMux(&fakeLocal{genres: []types.Genre{{ID: 14, Name: "Fantasy"}}}, nil)

	res, err := mux.Send(context.Background(), ListGenresQuery{})
	require.NoError(t, err)
	assert.Equal(t, "Fantasy", res.(ListGenresResult).Genres[0].Name)
}

func TestMuxRoutesDetails(t *testing.T) {
	mux := NewMux(&fakeLocal{movies: []types.MovieItem{{LocalID: "a", Title: "The Matrix"}}}, nil)

	res, err := mux.Send(context.Background(), MovieDetailsQuery{LocalID: "a"})
	require.NoError(t, err)
	require.NotNil(t, res.(MovieDetailsResult).Item)

	res, err = mux.Send(context.Background(), MovieDetailsQuery{LocalID: "missing"})
	require.NoError(t, err)
	assert.Nil(t, res.(MovieDetailsResult).Item)
}

func TestMuxUnknownRequest(t *testing.T) {
	mux := NewMux(&fakeLocal{}, nil)

	_, err := mux.Send(context.Background(), struct{ X int }{})
	assert.Error(t, err)
}

func TestMuxPropagatesErrors(t *testing.T) {
	boom := errors.New("disk gone")
	mux := NewMux(&fakeLocal{err: boom}, nil)

	_, err := mux.Send(context.Background(), ListGenresQuery{})
	assert.ErrorIs(t, err, boom)
}
