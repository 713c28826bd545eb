// Package catalog stores the songs the daemon can recognise in a small
// sqlite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/large-farva/earshot/internal/telemetry"
)

var (
	// ErrMissingFields is returned by Add when artist or title is blank.
	ErrMissingFields = errors.New("artist and title are required")
	// ErrEmpty is returned by Random when the catalog has no songs.
	ErrEmpty = errors.New("catalog is empty")
)

// Store wraps the sqlite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create catalog dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// One connection: sqlite has a single writer, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS songs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT,
		date_added DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist);
	CREATE INDEX IF NOT EXISTS idx_songs_title ON songs(title);
	`
	_, err := db.Exec(schema)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a song and returns it with its assigned ID. Fields are
// trimmed; artist and title must be non-empty.
func (s *Store) Add(ctx context.Context, artist, title, album string) (telemetry.Song, error) {
	song := telemetry.Song{
		Artist: strings.TrimSpace(artist),
		Title:  strings.TrimSpace(title),
		Album:  strings.TrimSpace(album),
	}
	if song.Artist == "" || song.Title == "" {
		return song, ErrMissingFields
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO songs (title, artist, album) VALUES (?, ?, ?)`,
		song.Title, song.Artist, nullable(song.Album))
	if err != nil {
		return song, fmt.Errorf("insert song: %w", err)
	}
	song.ID, err = res.LastInsertId()
	if err != nil {
		return song, fmt.Errorf("insert song: %w", err)
	}
	return song, nil
}

// List returns every song ordered by artist then title.
func (s *Store) List(ctx context.Context) ([]telemetry.Song, error) {
	return s.query(ctx, `
	SELECT id, title, artist, COALESCE(album, '')
	FROM songs ORDER BY artist, title`)
}

// Search returns songs whose title or artist contains q, ignoring ASCII
// case. LIKE wildcards in q are matched literally.
func (s *Store) Search(ctx context.Context, q string) ([]telemetry.Song, error) {
	term := "%" + escapeLike(q) + "%"
	return s.query(ctx, `
	SELECT id, title, artist, COALESCE(album, '')
	FROM songs
	WHERE title LIKE ? ESCAPE '\' OR artist LIKE ? ESCAPE '\'
	ORDER BY artist, title`, term, term)
}

// Count returns the number of songs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&n)
	return n, err
}

// Random returns one song chosen uniformly by sqlite, or ErrEmpty.
func (s *Store) Random(ctx context.Context) (telemetry.Song, error) {
	var song telemetry.Song
	err := s.db.QueryRowContext(ctx, `
	SELECT id, title, artist, COALESCE(album, '')
	FROM songs ORDER BY RANDOM() LIMIT 1`).Scan(&song.ID, &song.Title, &song.Artist, &song.Album)
	if errors.Is(err, sql.ErrNoRows) {
		return song, ErrEmpty
	}
	return song, err
}

// Seed fills an empty catalog with songs. It does nothing if the catalog
// already has rows and returns how many songs were inserted.
func (s *Store) Seed(ctx context.Context, songs []telemetry.Song) (int, error) {
	n, err := s.Count(ctx)
	if err != nil || n > 0 {
		return 0, err
	}
	for i, song := range songs {
		if _, err := s.Add(ctx, song.Artist, song.Title, song.Album); err != nil {
			return i, err
		}
	}
	return len(songs), nil
}

// DefaultSeed is the starter catalog used when catalog.seed is enabled.
var DefaultSeed = []telemetry.Song{
	{Artist: "Ed Sheeran", Title: "Shape of You", Album: "÷"},
	{Artist: "The Weeknd", Title: "Blinding Lights", Album: "After Hours"},
	{Artist: "Queen", Title: "Bohemian Rhapsody", Album: "A Night at the Opera"},
	{Artist: "Daft Punk", Title: "Get Lucky", Album: "Random Access Memories"},
	{Artist: "Adele", Title: "Rolling in the Deep", Album: "21"},
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]telemetry.Song, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	songs := []telemetry.Song{}
	for rows.Next() {
		var song telemetry.Song
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.Album); err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
