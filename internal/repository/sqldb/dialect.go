package sqldb

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect captures what differs between the supported engines.
//
// LOCKING:
// MySQL locks the schedule row with SELECT ... FOR UPDATE, so bookings on
// different schedules proceed in parallel. SQLite has no row locks; a write
// transaction starts with BEGIN IMMEDIATE, which takes the database write
// lock up front. Both give the booking engine the same guarantee: between
// the lock and commit, nobody else can insert a reservation for the schedule.
type dialect struct {
	name           string
	driver         string // database/sql driver name
	goose          string // goose dialect name
	migrations     string // directory inside migrationsFS
	lockSchedule   string
	beginImmediate bool
	isDuplicate    func(error) bool

	// nowQuery reads the server clock. Empty means the engine runs in
	// process (SQLite) and the process clock is the storage clock.
	nowQuery string
}

var (
	sqliteDialect = dialect{
		name:           "sqlite",
		driver:         "sqlite",
		goose:          "sqlite3",
		migrations:     "migrations/sqlite",
		lockSchedule:   `SELECT 1 FROM schedules WHERE id = ? LIMIT 1`,
		beginImmediate: true,
		isDuplicate:    isSQLiteDuplicate,
	}

	mysqlDialect = dialect{
		name:         "mysql",
		driver:       "mysql",
		goose:        "mysql",
		migrations:   "migrations/mysql",
		lockSchedule: `SELECT 1 FROM schedules WHERE id = ? LIMIT 1 FOR UPDATE`,
		nowQuery:     `SELECT UTC_TIMESTAMP(6)`,
		isDuplicate:  isMySQLDuplicate,
	}
)

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return sqliteDialect, nil
	case "mysql":
		return mysqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("sqldb: unsupported driver %q", driver)
	}
}

func isSQLiteDuplicate(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// mysqlDupEntry is ER_DUP_ENTRY.
const mysqlDupEntry = 1062

func isMySQLDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDupEntry
}

// SQLiteDSN builds a modernc.org/sqlite DSN for a database file.
//
// The pragmas are applied by the driver to every pooled connection, not just
// the first one:
//   - busy_timeout makes lock waits block instead of failing with SQLITE_BUSY
//   - foreign_keys enforces the reservation references
//   - journal_mode(WAL) lets readers run while a booking holds the write lock
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_time_format", "sqlite")
	return "file:" + path + "?" + q.Encode()
}

// normalizeMySQLDSN forces the options the repository code relies on.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("sqldb: parsing mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
