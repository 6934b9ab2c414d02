package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"cinechat/internal/types"
)

// RemoteConfig holds the remote catalog client configuration.
type RemoteConfig struct {
	APIKey  string
	BaseURL string
	// Timeout bounds one HTTP request.
	Timeout time.Duration
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit; CooldownPeriod is how long it stays open.
	FailureThreshold uint32
	CooldownPeriod   time.Duration
}

// DefaultRemoteConfig returns sensible defaults.
func DefaultRemoteConfig(apiKey string) RemoteConfig {
	return RemoteConfig{
		APIKey:           apiKey,
		BaseURL:          "https://api.themoviedb.org/3",
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		CooldownPeriod:   30 * time.Second,
	}
}

// Remote implements types.RemoteCatalog over the TMDB HTTP API. All
// transport and upstream failures are wrapped in types.ErrUpstream so
// callers can distinguish them from their own mistakes; the circuit
// breaker fails fast once the upstream is known to be down.
type Remote struct {
	cfg        RemoteConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *zap.Logger
}

var _ types.RemoteCatalog = (*Remote)(nil)

// NewRemote creates a remote catalog client.
func NewRemote(cfg RemoteConfig, log *zap.Logger) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("remote-catalog")

	settings := gobreaker.Settings{
		Name:    "remote-catalog",
		Timeout: cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Remote{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		log:        log,
	}
}

// Wire shapes for the TMDB responses the core consumes.

type tmdbMovie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	PosterPath  string `json:"poster_path"`
	Overview    string `json:"overview"`
}

type tmdbMoviePage struct {
	Page         int         `json:"page"`
	Results      []tmdbMovie `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

type tmdbPerson struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	ProfilePath string `json:"profile_path"`
	KnownFor    []struct {
		Title string `json:"title"`
		Name  string `json:"name"`
	} `json:"known_for"`
}

type tmdbPersonPage struct {
	Page         int          `json:"page"`
	Results      []tmdbPerson `json:"results"`
	TotalPages   int          `json:"total_pages"`
	TotalResults int          `json:"total_results"`
}

// SearchMovies queries /search/movie by text.
func (r *Remote) SearchMovies(ctx context.Context, criteria types.SearchCriteria) ([]types.MovieItem, types.PageInfo, error) {
	params := url.Values{}
	params.Set("query", criteria.Text)
	if criteria.Year != 0 {
		params.Set("year", strconv.Itoa(criteria.Year))
	}
	setPage(params, criteria.Page)
	return r.moviePage(ctx, "/search/movie", params)
}

// DiscoverMovies queries /discover/movie by structured criteria.
func (r *Remote) DiscoverMovies(ctx context.Context, criteria types.SearchCriteria) ([]types.MovieItem, types.PageInfo, error) {
	params := url.Values{}
	if criteria.Year != 0 {
		params.Set("primary_release_year", strconv.Itoa(criteria.Year))
	}
	if len(criteria.GenreIDs) > 0 {
		ids := make([]string, len(criteria.GenreIDs))
		for i, id := range criteria.GenreIDs {
			ids[i] = strconv.Itoa(id)
		}
		params.Set("with_genres", strings.Join(ids, ","))
	}
	params.Set("sort_by", "popularity.desc")
	setPage(params, criteria.Page)
	return r.moviePage(ctx, "/discover/movie", params)
}

// SimilarMovies queries /movie/{id}/similar, first page only.
func (r *Remote) SimilarMovies(ctx context.Context, tmdbID int) ([]types.MovieItem, error) {
	items, _, err := r.moviePage(ctx, fmt.Sprintf("/movie/%d/similar", tmdbID), url.Values{})
	return items, err
}

// MovieDetails queries /movie/{id}.
func (r *Remote) MovieDetails(ctx context.Context, tmdbID int) (*types.MovieItem, error) {
	data, err := r.get(ctx, fmt.Sprintf("/movie/%d", tmdbID), url.Values{})
	if err != nil {
		return nil, err
	}
	var m tmdbMovie
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed movie details: %v", types.ErrUpstream, err)
	}
	item := m.item()
	return &item, nil
}

// SearchPeople queries /search/person by name.
func (r *Remote) SearchPeople(ctx context.Context, name string) ([]types.PersonItem, types.PageInfo, error) {
	params := url.Values{}
	params.Set("query", name)
	data, err := r.get(ctx, "/search/person", params)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	var page tmdbPersonPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, types.PageInfo{}, fmt.Errorf("%w: malformed person page: %v", types.ErrUpstream, err)
	}
	items := make([]types.PersonItem, 0, len(page.Results))
	for _, p := range page.Results {
		items = append(items, p.item())
	}
	return items, types.PageInfo{
		Page:         page.Page,
		TotalResults: page.TotalResults,
		TotalPages:   page.TotalPages,
	}, nil
}

// PersonDetails queries /person/{id}.
func (r *Remote) PersonDetails(ctx context.Context, tmdbID int) (*types.PersonItem, error) {
	data, err := r.get(ctx, fmt.Sprintf("/person/%d", tmdbID), url.Values{})
	if err != nil {
		return nil, err
	}
	var p tmdbPerson
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed person details: %v", types.ErrUpstream, err)
	}
	item := p.item()
	return &item, nil
}

func (r *Remote) moviePage(ctx context.Context, path string, params url.Values) ([]types.MovieItem, types.PageInfo, error) {
	data, err := r.get(ctx, path, params)
	if err != nil {
		return nil, types.PageInfo{}, err
	}
	var page tmdbMoviePage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, types.PageInfo{}, fmt.Errorf("%w: malformed movie page: %v", types.ErrUpstream, err)
	}
	items := make([]types.MovieItem, 0, len(page.Results))
	for _, m := range page.Results {
		items = append(items, m.item())
	}
	return items, types.PageInfo{
		Page:         page.Page,
		TotalResults: page.TotalResults,
		TotalPages:   page.TotalPages,
	}, nil
}

// get performs one GET through the circuit breaker. Cancellation is the
// caller's signal and passes through unwrapped; everything else is an
// upstream failure.
func (r *Remote) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("api_key", r.cfg.APIKey)
	endpoint := r.cfg.BaseURL + path + "?" + params.Encode()

	data, err := r.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.log.Debug("request rejected by open circuit", zap.String("path", path))
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrUpstream, path, err)
	}
	return data, nil
}

func setPage(params url.Values, page int) {
	if page < 1 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
}

func (m tmdbMovie) item() types.MovieItem {
	item := types.MovieItem{
		TMDBID:     m.ID,
		Title:      m.Title,
		PosterPath: m.PosterPath,
		Overview:   m.Overview,
	}
	if len(m.ReleaseDate) >= 4 {
		if y, err := strconv.Atoi(m.ReleaseDate[:4]); err == nil {
			item.Year = y
		}
	}
	return item
}

func (p tmdbPerson) item() types.PersonItem {
	item := types.PersonItem{
		TMDBID:      p.ID,
		Name:        p.Name,
		ProfilePath: p.ProfilePath,
	}
	for _, k := range p.KnownFor {
		title := k.Title
		if title == "" {
			title = k.Name
		}
		if title != "" {
			item.KnownFor = append(item.KnownFor, title)
		}
	}
	return item
}
