package correlation

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a local SQLite file, shared by every process on the host.
type SQLiteStore struct {
	sqlStore
}

// OpenSQLite opens and migrates a SQLite correlation store. A nil clock uses time.Now.
func OpenSQLite(path string, now Clock) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if now == nil {
		now = time.Now
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	if err := runMigrations("sqlite", "sqlite://"+cleanPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time keeps check-and-set free of SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	return &SQLiteStore{sqlStore{db: db, now: now}}, nil
}
