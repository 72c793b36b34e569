package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sbdl/internal/model"
)

// FileName is the name of the history database inside its directory.
const FileName = "sbdl.db"

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// HistoryDB stores past runs, the soundboards they touched and the files
// they wrote.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, ErrNotFound)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		root TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		soundboards INTEGER DEFAULT 0,
		downloaded INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		summary_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS soundboards (
		url TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		manifest_url TEXT,
		sound_count INTEGER DEFAULT 0,
		last_scraped TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		soundboard_url TEXT NOT NULL,
		identifier TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER DEFAULT 0,
		checksum TEXT,
		downloaded_at TEXT NOT NULL,
		UNIQUE(soundboard_url, identifier)
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_soundboard ON artifacts(soundboard_url);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord is the list view of a stored run.
type RunRecord struct {
	ID          string    `json:"id"`
	Command     string    `json:"command"`
	Root        string    `json:"root"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Soundboards int       `json:"soundboards"`
	Downloaded  int       `json:"downloaded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
}

// SaveRun stores a run summary, replacing any earlier save of the same run.
func (h *HistoryDB) SaveRun(ctx context.Context, s *model.RunSummary) error {
	summaryJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize run summary: %w", err)
	}

	query := `
	INSERT INTO runs (id, command, root, started_at, finished_at, soundboards, downloaded, skipped, failed, summary_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		soundboards = excluded.soundboards,
		downloaded = excluded.downloaded,
		skipped = excluded.skipped,
		failed = excluded.failed,
		summary_json = excluded.summary_json
	`

	_, err = h.db.ExecContext(ctx, query,
		s.ID,
		s.Command,
		s.Root,
		formatTimestamp(s.StartedAt),
		formatTimestamp(s.FinishedAt),
		len(s.Soundboards),
		s.FilesDownloaded,
		s.FilesSkipped,
		s.FilesFailed,
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
	SELECT id, command, root, started_at, finished_at, soundboards, downloaded, skipped, failed
	FROM runs
	ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Command, &r.Root, &started, &finished,
			&r.Soundboards, &r.Downloaded, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads the full summary of a run. It returns ErrNotFound when id is
// unknown.
func (h *HistoryDB) GetRun(ctx context.Context, id string) (*model.RunSummary, error) {
	var summaryJSON string
	err := h.db.QueryRowContext(ctx, `SELECT summary_json FROM runs WHERE id = ?`, id).Scan(&summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var s model.RunSummary
	if err := json.Unmarshal([]byte(summaryJSON), &s); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}
	return &s, nil
}

// SoundboardRecord is a stored soundboard with the number of artifacts
// recorded for it.
type SoundboardRecord struct {
	URL         string    `json:"url"`
	DisplayName string    `json:"display_name"`
	ManifestURL string    `json:"manifest_url,omitempty"`
	SoundCount  int       `json:"sound_count"`
	Artifacts   int       `json:"artifacts"`
	LastScraped time.Time `json:"last_scraped"`
}

// UpsertSoundboard stores sb, refreshing its name, manifest and last
// scraped time.
func (h *HistoryDB) UpsertSoundboard(ctx context.Context, sb *model.Soundboard) error {
	query := `
	INSERT INTO soundboards (url, display_name, manifest_url, sound_count, last_scraped)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		display_name = excluded.display_name,
		manifest_url = excluded.manifest_url,
		sound_count = excluded.sound_count,
		last_scraped = excluded.last_scraped
	`

	_, err := h.db.ExecContext(ctx, query,
		sb.URL,
		sb.DisplayName,
		sb.ManifestURL,
		len(sb.Manifest),
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save soundboard: %w", err)
	}
	return nil
}

// ListSoundboards returns every stored soundboard ordered by display name.
func (h *HistoryDB) ListSoundboards(ctx context.Context) ([]SoundboardRecord, error) {
	query := `
	SELECT s.url, s.display_name, s.manifest_url, s.sound_count, s.last_scraped,
		(SELECT COUNT(*) FROM artifacts a WHERE a.soundboard_url = s.url)
	FROM soundboards s
	ORDER BY s.display_name
	`

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list soundboards: %w", err)
	}
	defer rows.Close()

	var results []SoundboardRecord
	for rows.Next() {
		var (
			r           SoundboardRecord
			manifestURL sql.NullString
			lastScraped string
		)
		if err := rows.Scan(&r.URL, &r.DisplayName, &manifestURL, &r.SoundCount, &lastScraped, &r.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to scan soundboard: %w", err)
		}
		r.ManifestURL = manifestURL.String
		r.LastScraped = parseTimestamp(lastScraped)
		results = append(results, r)
	}
	return results, rows.Err()
}

// RecordArtifact stores a downloaded file for soundboardURL. A second
// download of the same identifier replaces the earlier record.
func (h *HistoryDB) RecordArtifact(ctx context.Context, soundboardURL string, a model.Artifact) error {
	query := `
	INSERT INTO artifacts (soundboard_url, identifier, path, size, checksum, downloaded_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(soundboard_url, identifier) DO UPDATE SET
		path = excluded.path,
		size = excluded.size,
		checksum = excluded.checksum,
		downloaded_at = excluded.downloaded_at
	`

	_, err := h.db.ExecContext(ctx, query,
		soundboardURL,
		a.Identifier,
		a.Path,
		a.Size,
		a.Checksum,
		formatTimestamp(a.DownloadedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns the artifacts recorded for soundboardURL ordered by
// identifier.
func (h *HistoryDB) ListArtifacts(ctx context.Context, soundboardURL string) ([]model.Artifact, error) {
	query := `
	SELECT identifier, path, size, checksum, downloaded_at
	FROM artifacts
	WHERE soundboard_url = ?
	ORDER BY identifier
	`

	rows, err := h.db.QueryContext(ctx, query, soundboardURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var results []model.Artifact
	for rows.Next() {
		var (
			a            model.Artifact
			checksum     sql.NullString
			downloadedAt string
		)
		if err := rows.Scan(&a.Identifier, &a.Path, &a.Size, &checksum, &downloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Checksum = checksum.String
		a.DownloadedAt = parseTimestamp(downloadedAt)
		results = append(results, a)
	}
	return results, rows.Err()
}

// formatTimestamp stores times as RFC 3339 in UTC so they sort as text.
// The zero time is stored as an empty string.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
