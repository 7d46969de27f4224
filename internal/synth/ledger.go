package synth

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jackzampolin/narrate/internal/providers"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ledgerNamespace scopes the deterministic ids the ledger derives.
var ledgerNamespace = uuid.MustParse("6f1b7c3e-2a44-5d7e-9c1f-0b8e4a6d2c71")

// Segment is one synthesized job recorded in the ledger.
type Segment struct {
	UnitID        string
	SequenceIndex int
	TextHash      string
	Provider      string
	File          string // relative to the output directory
	DurationMS    int
	BilledChars   int
	CostUSD       float64
	Marks         []providers.Mark
	RequestID     string
	CreatedAt     time.Time
}

// Ledger records completed segments so an interrupted run can resume.
type Ledger struct {
	db   *sql.DB
	path string
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection and writers serialize anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns the database file.
func (l *Ledger) Path() string { return l.path }

// Get returns the recorded segment for a job, if any.
func (l *Ledger) Get(ctx context.Context, bookKey, unitID string, seq int) (*Segment, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT unit_id, sequence_index, text_hash, provider, file, duration_ms,
            billed_chars, cost_usd, marks_json, request_id, created_at
        FROM segments WHERE book_key = ? AND unit_id = ? AND sequence_index = ?`,
		bookKey, unitID, seq)

	var (
		seg       Segment
		marksJSON sql.NullString
		requestID sql.NullString
		created   string
	)
	err := row.Scan(&seg.UnitID, &seg.SequenceIndex, &seg.TextHash, &seg.Provider, &seg.File,
		&seg.DurationMS, &seg.BilledChars, &seg.CostUSD, &marksJSON, &requestID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan segment: %w", err)
	}
	if marksJSON.Valid && marksJSON.String != "" {
		if err := json.Unmarshal([]byte(marksJSON.String), &seg.Marks); err != nil {
			return nil, fmt.Errorf("decode marks: %w", err)
		}
	}
	seg.RequestID = requestID.String
	seg.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &seg, nil
}

// Put records or replaces a segment.
func (l *Ledger) Put(ctx context.Context, bookKey string, seg *Segment) error {
	var marks any
	if len(seg.Marks) > 0 {
		data, err := json.Marshal(seg.Marks)
		if err != nil {
			return fmt.Errorf("encode marks: %w", err)
		}
		marks = string(data)
	}
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO segments (
            book_key, unit_id, sequence_index, text_hash, provider, file,
            duration_ms, billed_chars, cost_usd, marks_json, request_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (book_key, unit_id, sequence_index) DO UPDATE SET
            text_hash = excluded.text_hash,
            provider = excluded.provider,
            file = excluded.file,
            duration_ms = excluded.duration_ms,
            billed_chars = excluded.billed_chars,
            cost_usd = excluded.cost_usd,
            marks_json = excluded.marks_json,
            request_id = excluded.request_id,
            created_at = excluded.created_at`,
		bookKey, seg.UnitID, seg.SequenceIndex, seg.TextHash, seg.Provider, seg.File,
		seg.DurationMS, seg.BilledChars, seg.CostUSD, marks, nullableString(seg.RequestID),
		seg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record segment %s.%d: %w", seg.UnitID, seg.SequenceIndex, err)
	}
	return nil
}

// Count returns the number of segments recorded for a book.
func (l *Ledger) Count(ctx context.Context, bookKey string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM segments WHERE book_key = ?", bookKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count segments: %w", err)
	}
	return n, nil
}

// BookKey identifies a synthesis run by provider and voice settings, so
// switching voices does not reuse audio from another voice.
func BookKey(provider, voice, format string) string {
	return uuid.NewSHA1(ledgerNamespace, []byte(provider+"\x00"+voice+"\x00"+format)).String()
}

// TextHash fingerprints the text sent for a segment.
func TextHash(text string) string {
	return uuid.NewSHA1(ledgerNamespace, []byte(text)).String()
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return out, nil
}

func (l *Ledger) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
