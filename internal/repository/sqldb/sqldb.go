// Package sqldb implements the repository interfaces on database/sql.
//
// Two engines are supported through one code path:
//   - SQLite via modernc.org/sqlite (pure Go, the default)
//   - MySQL via github.com/go-sql-driver/mysql
//
// Only the statements that genuinely differ (row locking, duplicate-key
// detection, migration DDL) live in dialect.go. Everything else is plain
// SQL with ? placeholders, which both drivers accept.
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/sakif/reservations/internal/repository"

	// Drivers register themselves with database/sql in init().
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

var _ repository.Store = (*DB)(nil)

// Options configures Open.
type Options struct {
	Driver       string // "sqlite" (default) or "mysql"
	DSN          string // see SQLiteDSN for the sqlite form
	MaxOpenConns int
	Logger       *slog.Logger
	// Now, when set, stamps created_at in place of the storage clock.
	Now func() time.Time
}

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn    *sql.DB
	dialect dialect
	logger  *slog.Logger
	now     func() time.Time

	// fixedClock is set when Options.Now was given; it then wins over the
	// database server clock.
	fixedClock bool

	// writeGate admits one SQLite write transaction at a time.
	writeGate chan struct{}
}

// Open connects, verifies the connection and applies pending migrations.
func Open(ctx context.Context, opts Options) (*DB, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if d.name == mysqlDialect.name {
		if dsn, err = normalizeMySQLDSN(dsn); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening %s database: %w", d.name, err)
	}
	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: pinging %s database: %w", d.name, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	db := &DB{
		conn:       conn,
		dialect:    d,
		logger:     logger,
		now:        now,
		fixedClock: opts.Now != nil,
		writeGate:  make(chan struct{}, 1),
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the readiness check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Dialect returns the engine name ("sqlite" or "mysql").
func (db *DB) Dialect() string {
	return db.dialect.name
}

func (db *DB) migrate() error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{db.logger})
	if err := goose.SetDialect(db.dialect.goose); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.conn, db.dialect.migrations); err != nil {
		return fmt.Errorf("applying %s migrations: %w", db.dialect.name, err)
	}
	return nil
}

// timestamp returns the process clock in UTC at microsecond precision, the
// finest resolution MySQL DATETIME(6) keeps.
func (db *DB) timestamp() time.Time {
	return db.now().UTC().Truncate(time.Microsecond)
}

// gooseLogger routes goose progress output through slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}
