package correlation

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// sqlStore implements Store over database/sql. The same statements serve SQLite and
// Postgres; only placeholder syntax differs.
type sqlStore struct {
	db     *sql.DB
	now    Clock
	dollar bool // Postgres-style $n placeholders
}

// rebind rewrites ? placeholders to $n when the dialect needs it.
func (s *sqlStore) rebind(query string) string {
	if !s.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) nowMillis() int64 { return s.now().UnixMilli() }

func (s *sqlStore) Put(ctx context.Context, messageID string, fields map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	expires := s.now().Add(TTL).UnixMilli()
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO correlation_records (message_id, expires_at) VALUES (?, ?)
		 ON CONFLICT (message_id) DO UPDATE SET expires_at = excluded.expires_at`),
		messageID, expires,
	); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM correlation_fields WHERE message_id = ?`), messageID); err != nil {
		return fmt.Errorf("clear fields: %w", err)
	}
	for field, value := range fields {
		if value == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO correlation_fields (message_id, field, value) VALUES (?, ?, ?)`),
			messageID, field, value,
		); err != nil {
			return fmt.Errorf("insert field %s: %w", field, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) Get(ctx context.Context, messageID string) (*Record, error) {
	var expires int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT expires_at FROM correlation_records WHERE message_id = ? AND expires_at > ?`),
		messageID, s.nowMillis(),
	).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT field, value FROM correlation_fields WHERE message_id = ?`), messageID)
	if err != nil {
		return nil, fmt.Errorf("get fields: %w", err)
	}
	defer rows.Close()

	rec := &Record{MessageID: messageID, Fields: make(map[string]string), ExpiresAt: time.UnixMilli(expires)}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		rec.Fields[field] = value
	}
	return rec, rows.Err()
}

// SetFieldIfAbsent relies on the (message_id, field) primary key: of several concurrent
// inserts exactly one affects a row.
func (s *sqlStore) SetFieldIfAbsent(ctx context.Context, messageID, field, value string) (bool, error) {
	now := s.nowMillis()
	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO correlation_fields (message_id, field, value)
		 SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT)
		 WHERE EXISTS (SELECT 1 FROM correlation_records WHERE message_id = ? AND expires_at > ?)
		 ON CONFLICT (message_id, field) DO NOTHING`),
		messageID, field, value, messageID, now,
	)
	if err != nil {
		return false, fmt.Errorf("set field: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set field rows: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, s.rebind(
		`SELECT 1 FROM correlation_records WHERE message_id = ? AND expires_at > ?`),
		messageID, now,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return false, nil
}

func (s *sqlStore) PurgeExpired(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	now := s.nowMillis()
	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM correlation_fields WHERE message_id IN
		 (SELECT message_id FROM correlation_records WHERE expires_at <= ?)`), now); err != nil {
		return 0, fmt.Errorf("purge fields: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM correlation_records WHERE expires_at <= ?`), now)
	if err != nil {
		return 0, fmt.Errorf("purge records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewMigrator returns a golang-migrate instance over the embedded migrations for the
// SQL backend selected by opts. The caller must Close it.
func NewMigrator(opts Options) (*migrate.Migrate, error) {
	switch opts.Backend {
	case "sqlite":
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		return newMigrator("sqlite", "sqlite://"+filepath.Clean(opts.SQLitePath))
	case "postgres", "pg":
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		return newMigrator("postgres", migrateURL(opts.PostgresDSN))
	default:
		return nil, fmt.Errorf("backend %q has no schema migrations", opts.Backend)
	}
}

func newMigrator(dialect, databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// runMigrations applies the embedded migrations for dialect ("sqlite" or "postgres")
// against databaseURL.
func runMigrations(dialect, databaseURL string) error {
	m, err := newMigrator(dialect, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
