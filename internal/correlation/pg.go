package correlation

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore is a Store backed by Postgres, shared by all bot replicas.
type PGStore struct {
	sqlStore
}

// OpenPG opens and migrates a Postgres correlation store. dsn is a postgres:// URL.
func OpenPG(dsn string, now Clock) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	if now == nil {
		now = time.Now
	}

	if err := runMigrations("postgres", migrateURL(dsn)); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PGStore{sqlStore{db: db, now: now, dollar: true}}, nil
}

// migrateURL converts a postgres DSN to the scheme of the golang-migrate pgx/v5 driver.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
