package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	logx "ordersched/pkg/logx"
)

//go:embed migrations_sqlite.sql migrations_postgres.sql
var migrationsFS embed.FS

var ErrDisabled = errors.New("storage disabled")

// Config configures the relational store.
//
// Driver values:
//   - "sqlite": SQLite database file (DSN is a file path)
//   - "postgres": Postgres (DSN is a connection string)
type Config struct {
	Driver      string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DB wraps *sql.DB with the driver-specific bits the ledgers need
// (placeholder style and row locking).
type DB struct {
	*sql.DB
	driver string
	log    logx.Logger
}

// Open initializes the configured store and runs migrations.
func Open(cfg Config, log logx.Logger) (*DB, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "pg":
		return openPostgres(cfg, log)
	case "", "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func openSQLite(cfg Config, log logx.Logger) (*DB, error) {
	path := strings.TrimSpace(cfg.DSN)
	if path == "" {
		return nil, errors.New("sqlite dsn (file path) is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &DB{DB: db, driver: "sqlite", log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func openPostgres(cfg Config, log logx.Logger) (*DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	st := &DB{DB: db, driver: "postgres", log: log}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (d *DB) migrate(ctx context.Context) error {
	name := "migrations_sqlite.sql"
	if d.driver == "postgres" {
		name = "migrations_postgres.sql"
	}
	b, err := migrationsFS.ReadFile(name)
	if err != nil {
		return err
	}
	if _, err := d.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("migrate (%s): %w", d.driver, err)
	}
	d.log.Debug("migrations applied", logx.String("driver", d.driver))
	return nil
}

// NewWithDB wraps an already-open handle. Used by tests to inject mocks;
// no migrations are run.
func NewWithDB(db *sql.DB, driver string, log logx.Logger) *DB {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DB{DB: db, driver: driver, log: log}
}

func (d *DB) Driver() string { return d.driver }

// Rebind rewrites "?" placeholders to the driver's native style.
// Queries in this repo are written with "?"; Postgres needs "$N".
func (d *DB) Rebind(q string) string {
	if d.driver != "postgres" {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// ForUpdate returns the row-locking suffix for SELECTs inside transactions.
// SQLite serializes writers at the connection level, so it needs none.
func (d *DB) ForUpdate() string {
	if d.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

// TxOptions returns the transaction options for read-modify-write sections.
func (d *DB) TxOptions() *sql.TxOptions {
	if d.driver == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
