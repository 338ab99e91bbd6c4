package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	driver      string
	createTable string
	selectValue string
	upsertValue string
}

var mysqlDialect = dialect{
	driver: "mysql",
	createTable: `CREATE TABLE IF NOT EXISTS kv_slots (
    slot_key VARCHAR(191) PRIMARY KEY,
    value LONGBLOB NOT NULL,
    updated_at TIMESTAMP(6) NOT NULL
)`,
	selectValue: `SELECT value FROM kv_slots WHERE slot_key = ?`,
	upsertValue: `INSERT INTO kv_slots (slot_key, value, updated_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`,
}

var postgresDialect = dialect{
	driver: "pgx",
	createTable: `CREATE TABLE IF NOT EXISTS kv_slots (
    slot_key TEXT PRIMARY KEY,
    value BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
	selectValue: `SELECT value FROM kv_slots WHERE slot_key = $1`,
	upsertValue: `INSERT INTO kv_slots (slot_key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (slot_key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
}

// SQLSlot stores each key as one row of the kv_slots table.
type SQLSlot struct {
	db      *sql.DB
	dialect dialect
}

// NewMySQLSlot connects to MySQL and ensures the kv_slots table exists.
func NewMySQLSlot(ctx context.Context, dsn string) (*SQLSlot, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return openSQLSlot(ctx, mysqlDialect, cfg.FormatDSN())
}

// NewPostgresSlot connects to PostgreSQL and ensures the kv_slots table exists.
func NewPostgresSlot(ctx context.Context, url string) (*SQLSlot, error) {
	if url == "" {
		return nil, errors.New("storage: postgres url is required")
	}
	return openSQLSlot(ctx, postgresDialect, url)
}

func openSQLSlot(ctx context.Context, d dialect, dsn string) (*SQLSlot, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.driver, err)
	}
	s := &SQLSlot{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLSlot) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTable); err != nil {
		return fmt.Errorf("failed to create kv_slots table: %w", err)
	}
	return nil
}

func (s *SQLSlot) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.selectValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLSlot) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.upsertValue, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write slot %q: %w", key, err)
	}
	return nil
}

func (s *SQLSlot) Close() error { return s.db.Close() }
