// Package sqlite persists conversations, project notes and audit entries
// in a single SQLite database. It uses modernc.org/sqlite (pure Go, no
// CGO) with FTS5 full-text search for notes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// DB owns the database handle and the stores built on it.
type DB struct {
	config Config
	db     *sql.DB
	logger *slog.Logger

	conversations *ConversationStore
	notes         *NoteStore
	audit         *AuditStore
}

// Open opens (creating if needed) the database described by cfg and
// migrates its schema. dataDir is used when cfg.Path is empty.
func Open(ctx context.Context, cfg Config, dataDir string, logger *slog.Logger) (*DB, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = filepath.Join(dataDir, defaultDBFile)
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	for _, pragma := range cfg.pragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite storage opened", "path", cfg.Path, "journal_mode", cfg.JournalMode)

	return &DB{
		config:        cfg,
		db:            db,
		logger:        logger,
		conversations: &ConversationStore{db: db},
		notes:         &NoteStore{db: db, logger: logger},
		audit:         &AuditStore{db: db},
	}, nil
}

// Conversations returns the conversation store.
func (d *DB) Conversations() *ConversationStore { return d.conversations }

// Notes returns the project-note store.
func (d *DB) Notes() *NoteStore { return d.notes }

// Audit returns the audit-entry store.
func (d *DB) Audit() *AuditStore { return d.audit }

// Path returns the resolved database file path.
func (d *DB) Path() string { return d.config.Path }

// Ping verifies the database and the FTS5 index are reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT count(*) FROM notes_fts").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: FTS5 not available: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	d.logger.Info("sqlite storage closing")
	return d.db.Close()
}
