// Package catalog provides the two movie sources the agents query: the
// user's own library in SQLite and the remote TMDB-style catalog over
// HTTP. Both return the unified item shape from internal/types so the
// merger does not care where an item came from.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cinechat/internal/types"
)

// Local implements types.LocalCatalog backed by SQLite.
type Local struct {
	db *sql.DB
}

var _ types.LocalCatalog = (*Local)(nil)

// OpenLocal opens (creating if needed) the library database at path.
// Use ":memory:" for an ephemeral store.
func OpenLocal(path string) (*Local, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	l := &Local{db: db}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Local) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS movies (
			id TEXT PRIMARY KEY,
			tmdb_id INTEGER,
			title TEXT NOT NULL,
			year INTEGER,
			poster_path TEXT,
			overview TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_movies_title ON movies(title);`,
		`CREATE INDEX IF NOT EXISTS idx_movies_year ON movies(year);`,
		`CREATE INDEX IF NOT EXISTS idx_movies_tmdb ON movies(tmdb_id);`,
		`CREATE TABLE IF NOT EXISTS genres (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS movie_genres (
			movie_id TEXT NOT NULL REFERENCES movies(id),
			genre_id INTEGER NOT NULL REFERENCES genres(id),
			PRIMARY KEY (movie_id, genre_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_movie_genres_genre ON movie_genres(genre_id);`,
	}
	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (l *Local) Close() error {
	return l.db.Close()
}

// SearchMovies returns title-ordered matches for the criteria plus the
// total match count before paging. Zero-valued criteria dimensions are
// unconstrained; an unpaged query defaults to page 1, size 20.
func (l *Local) SearchMovies(ctx context.Context, criteria types.SearchCriteria) ([]types.MovieItem, int, error) {
	page := criteria.Page
	if page < 1 {
		page = 1
	}
	size := criteria.PageSize
	if size < 1 {
		size = 20
	}

	var where []string
	var args []any
	if criteria.Text != "" {
		where = append(where, "m.title LIKE ? COLLATE NOCASE")
		args = append(args, "%"+criteria.Text+"%")
	}
	if criteria.Year != 0 {
		where = append(where, "m.year = ?")
		args = append(args, criteria.Year)
	}
	joins := ""
	if len(criteria.GenreIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(criteria.GenreIDs)), ",")
		joins = " JOIN movie_genres mg ON mg.movie_id = m.id"
		where = append(where, "mg.genre_id IN ("+placeholders+")")
		for _, id := range criteria.GenreIDs {
			args = append(args, id)
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(DISTINCT m.id) FROM movies m" + joins + clause
	if err := l.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count movies: %w", err)
	}

	query := "SELECT DISTINCT m.id, m.tmdb_id, m.title, m.year, m.poster_path, m.overview FROM movies m" +
		joins + clause + " ORDER BY m.title COLLATE NOCASE LIMIT ? OFFSET ?"
	args = append(args, size, (page-1)*size)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search movies: %w", err)
	}
	defer rows.Close()

	var items []types.MovieItem
	for rows.Next() {
		item, err := scanMovie(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read movie rows: %w", err)
	}
	return items, total, nil
}

// ListGenres returns all genres ordered by name.
func (l *Local) ListGenres(ctx context.Context) ([]types.Genre, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT id, name FROM genres ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	defer rows.Close()

	var genres []types.Genre
	for rows.Next() {
		var g types.Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// MovieByID fetches one library record, or (nil, nil) when absent.
func (l *Local) MovieByID(ctx context.Context, localID string) (*types.MovieItem, error) {
	row := l.db.QueryRowContext(ctx,
		"SELECT id, tmdb_id, title, year, poster_path, overview FROM movies WHERE id = ?", localID)
	item, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// AddMovie inserts a library record, generating its local ID. Genre IDs
// must already exist in the genres table.
func (l *Local) AddMovie(ctx context.Context, item types.MovieItem, genreIDs []int) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO movies (id, tmdb_id, title, year, poster_path, overview) VALUES (?, ?, ?, ?, ?, ?)",
		id, nullableInt(item.TMDBID), item.Title, nullableInt(item.Year),
		nullableString(item.PosterPath), nullableString(item.Overview))
	if err != nil {
		return "", fmt.Errorf("failed to insert movie: %w", err)
	}
	for _, gid := range genreIDs {
		if _, err := l.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO movie_genres (movie_id, genre_id) VALUES (?, ?)", id, gid); err != nil {
			return "", fmt.Errorf("failed to link genre: %w", err)
		}
	}
	return id, nil
}

// AddGenre upserts a genre by its identifier.
func (l *Local) AddGenre(ctx context.Context, g types.Genre) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO genres (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name",
		g.ID, g.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert genre: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (types.MovieItem, error) {
	var item types.MovieItem
	var tmdbID, year sql.NullInt64
	var poster, overview sql.NullString
	if err := row.Scan(&item.LocalID, &tmdbID, &item.Title, &year, &poster, &overview); err != nil {
		if err == sql.ErrNoRows {
			return item, err
		}
		return item, fmt.Errorf("failed to scan movie: %w", err)
	}
	item.TMDBID = int(tmdbID.Int64)
	item.Year = int(year.Int64)
	item.PosterPath = poster.String
	item.Overview = overview.String
	return item, nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
