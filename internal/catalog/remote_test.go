package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinechat/internal/types"
)

func testRemote(t *testing.T, handler http.Handler) *Remote {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := DefaultRemoteConfig("test-key")
	cfg.BaseURL = srv.URL
	cfg.Timeout = 2 * time.Second
	return NewRemote(cfg, nil)
}

func TestRemoteDiscoverMovies(t *testing.T) {
	var gotPath, gotQuery string
	r := testRemote(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		gotQuery = req.URL.RawQuery
		w.Write([]byte(`{
			"page": 2,
			"results": [
				{"id": 122917, "title": "The Hobbit: The Battle of the Five Armies", "release_date": "2014-12-10", "poster_path": "/hobbit.jpg", "overview": "Bilbo..."},
				{"id": 338952, "title": "Fantastic Beasts", "release_date": "2016-11-16"}
			],
			"total_pages": 7,
			"total_results": 130
		}`))
	}))

	items, page, err := r.DiscoverMovies(context.Background(), types.SearchCriteria{
		Year:     2014,
		GenreIDs: []int{14, 12},
		Page:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, "/discover/movie", gotPath)
	assert.Contains(t, gotQuery, "primary_release_year=2014")
	assert.Contains(t, gotQuery, "with_genres=14%2C12")
	assert.Contains(t, gotQuery, "page=2")
	assert.Contains(t, gotQuery, "api_key=test-key")

	require.Len(t, items, 2)
	assert.Equal(t, 122917, items[0].TMDBID)
	assert.Equal(t, 2014, items[0].Year)
	assert.Equal(t, "/hobbit.jpg", items[0].PosterPath)
	assert.Empty(t, items[0].LocalID)

	assert.Equal(t, types.PageInfo{Page: 2, TotalResults: 130, TotalPages: 7}, page)
}

func TestRemoteSearchPeople(t *testing.T) {
	r := testRemote(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/search/person", req.URL.Path)
		assert.Equal(t, "Sofia Coppola", req.URL.Query().Get("query"))
		w.Write([]byte(`{
			"page": 1,
			"results": [
				{"id": 1769, "name": "Sofia Coppola", "profile_path": "/sofia.jpg",
				 "known_for": [{"title": "Lost in Translation"}, {"name": "The Beguiled"}]}
			],
			"total_pages": 1,
			"total_results": 1
		}`))
	}))

	people, page, err := r.SearchPeople(context.Background(), "Sofia Coppola")
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, 1769, people[0].TMDBID)
	assert.Equal(t, []string{"Lost in Translation", "The Beguiled"}, people[0].KnownFor)
	assert.Equal(t, 1, page.TotalResults)
}

func TestRemoteSimilarMovies(t *testing.T) {
	r := testRemote(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/movie/603/similar", req.URL.Path)
		w.Write([]byte(`{"page":1,"results":[{"id":604,"title":"The Matrix Reloaded","release_date":"2003-05-15"}],"total_pages":1,"total_results":1}`))
	}))

	items, err := r.SimilarMovies(context.Background(), 603)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "The Matrix Reloaded", items[0].Title)
}

func TestRemoteFailureWrapsUpstream(t *testing.T) {
	r := testRemote(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))

	_, _, err := r.SearchMovies(context.Background(), types.SearchCriteria{Text: "matrix"})
	require.Error(t, err)
	assert.True(t, types.IsUpstream(err))
}

func TestRemoteMalformedBodyWrapsUpstream(t *testing.T) {
	r := testRemote(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))

	_, err := r.MovieDetails(context.Background(), 603)
	require.Error(t, err)
	assert.True(t, types.IsUpstream(err))
}

func TestRemoteCancellationNotUpstream(t *testing.T) {
	r := testRemote(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		<-req.Context().Done()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.MovieDetails(ctx, 603)
	require.Error(t, err)
	assert.False(t, types.IsUpstream(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoteCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultRemoteConfig("test-key")
	cfg.BaseURL = srv.URL
	cfg.FailureThreshold = 2
	cfg.CooldownPeriod = time.Minute
	r := NewRemote(cfg, nil)

	for i := 0; i < 5; i++ {
		_, err := r.MovieDetails(context.Background(), 603)
		require.Error(t, err)
		assert.True(t, types.IsUpstream(err))
	}
	// Once the circuit is open requests fail fast without hitting the server.
	assert.Equal(t, int32(2), hits.Load())
}
