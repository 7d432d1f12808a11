package sqlite

import (
	"fmt"
	"time"
)

// Journal modes accepted in Config.JournalMode.
const (
	JournalWAL    = "wal"
	JournalDelete = "delete"
)

const defaultDBFile = "inovy.db"

// Config holds the SQLite storage configuration.
type Config struct {
	// Path is the database file. Empty means {dataDir}/inovy.db.
	Path string `yaml:"path"`

	// JournalMode is wal (default) or delete.
	JournalMode string `yaml:"journal_mode"`

	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

func (c Config) withDefaults() Config {
	if c.JournalMode == "" {
		c.JournalMode = JournalWAL
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	return c
}

func (c Config) validate() error {
	switch c.JournalMode {
	case JournalWAL, JournalDelete:
	default:
		return fmt.Errorf("sqlite: journal_mode %q must be %s or %s", c.JournalMode, JournalWAL, JournalDelete)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %s", c.BusyTimeout)
	}
	return nil
}

// pragmas returns the connection settings applied after open, in order.
func (c Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode=" + c.JournalMode,
		fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
}
