package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] upgrades the schema from version i to i+1.
// Statements use IF NOT EXISTS so a partially applied step can be rerun.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT    NOT NULL,
			seq             INTEGER NOT NULL,
			role            TEXT    NOT NULL,
			content         TEXT    NOT NULL DEFAULT '',
			name            TEXT    NOT NULL DEFAULT '',
			tool_id         TEXT    NOT NULL DEFAULT '',
			tool_calls      TEXT    NOT NULL DEFAULT '[]',
			created_at      TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (conversation_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS summaries (
			conversation_id TEXT PRIMARY KEY,
			summary         TEXT    NOT NULL,
			covers          INTEGER NOT NULL DEFAULT 0,
			updated_at      TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS notes (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			tags       TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE INDEX IF NOT EXISTS idx_notes_project ON notes(project_id)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			content,
			content=notes,
			content_rowid=rowid
		)`,

		`CREATE TRIGGER IF NOT EXISTS notes_ai AFTER INSERT ON notes BEGIN
			INSERT INTO notes_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,

		`CREATE TRIGGER IF NOT EXISTS notes_ad AFTER DELETE ON notes BEGIN
			INSERT INTO notes_fts(notes_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		END`,

		`CREATE TRIGGER IF NOT EXISTS notes_au AFTER UPDATE ON notes BEGIN
			INSERT INTO notes_fts(notes_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
			INSERT INTO notes_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
	},
	{
		`CREATE TABLE IF NOT EXISTS audit_log (
			id                TEXT PRIMARY KEY,
			ts                TEXT    NOT NULL,
			organization_id   TEXT    NOT NULL,
			user_id           TEXT    NOT NULL,
			conversation_id   TEXT    NOT NULL DEFAULT '',
			project_id        TEXT    NOT NULL DEFAULT '',
			chat_context      TEXT    NOT NULL DEFAULT '',
			request_type      TEXT    NOT NULL DEFAULT '',
			streaming         INTEGER NOT NULL DEFAULT 0,
			outcome           TEXT    NOT NULL,
			violation         TEXT    NOT NULL DEFAULT '',
			pii_types         TEXT    NOT NULL DEFAULT '[]',
			input_preview     TEXT    NOT NULL DEFAULT '',
			output_preview    TEXT    NOT NULL DEFAULT '',
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			latency_ms        INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_org ON audit_log(organization_id, ts)`,
	},
}

// schemaVersion is the version reached after all migrations.
var schemaVersion = len(migrations)

// migrate applies every migration newer than the recorded version, each
// in its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	for v := current; v < schemaVersion; v++ {
		if err := applyMigration(ctx, db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate to %d: %w\nstatement: %s", version, err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return tx.Commit()
}
