package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/reservations/internal/model"
	"github.com/sakif/reservations/internal/repository"
)

// querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithinTx runs fn in one write transaction.
//
// SQLite: database/sql's BeginTx issues a deferred BEGIN, which only takes
// the write lock at the first write. A reader that later upgrades can fail
// with SQLITE_BUSY without waiting. So on SQLite we pin a connection and issue
// BEGIN IMMEDIATE ourselves. Writers from this process queue on writeGate
// first, so busy_timeout only matters for other processes sharing the file.
//
// MySQL: a regular READ COMMITTED transaction. Row locks come from
// LockSchedule's FOR UPDATE, and READ COMMITTED makes the count taken after
// the lock see every reservation committed before it.
func (db *DB) WithinTx(ctx context.Context, fn func(tx repository.WriteTx) error) error {
	if db.dialect.beginImmediate {
		return db.withinImmediateTx(ctx, fn)
	}

	tx, err := db.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("sqldb: beginning transaction: %w", err)
	}

	if err := fn(&writeTx{q: tx, db: db}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: committing transaction: %w", err)
	}
	return nil
}

func (db *DB) withinImmediateTx(ctx context.Context, fn func(tx repository.WriteTx) error) error {
	select {
	case db.writeGate <- struct{}{}:
		defer func() { <-db.writeGate }()
	case <-ctx.Done():
		return fmt.Errorf("sqldb: waiting for write lock: %w", ctx.Err())
	}

	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqldb: acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("sqldb: beginning transaction: %w", err)
	}

	// COMMIT and ROLLBACK must run even when ctx was cancelled mid-transaction.
	endCtx := context.WithoutCancel(ctx)

	if err := fn(&writeTx{q: conn, db: db}); err != nil {
		if _, rbErr := conn.ExecContext(endCtx, "ROLLBACK"); rbErr != nil {
			db.logger.Error("rollback failed, discarding connection", slog.String("error", rbErr.Error()))
			discard(conn)
		}
		return err
	}

	if _, err := conn.ExecContext(endCtx, "COMMIT"); err != nil {
		if _, rbErr := conn.ExecContext(endCtx, "ROLLBACK"); rbErr != nil {
			discard(conn)
		}
		return fmt.Errorf("sqldb: committing transaction: %w", err)
	}
	return nil
}

// discard makes database/sql drop conn instead of returning it to the pool
// with a transaction still open.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
}

// writeTx implements repository.WriteTx on top of a transaction-bound querier.
type writeTx struct {
	q  querier
	db *DB
}

var _ repository.WriteTx = (*writeTx)(nil)

var existsQueries = map[string]string{
	repository.TableUsers:        `SELECT 1 FROM users WHERE id = ? LIMIT 1`,
	repository.TableSchedules:    `SELECT 1 FROM schedules WHERE id = ? LIMIT 1`,
	repository.TableReservations: `SELECT 1 FROM reservations WHERE id = ? LIMIT 1`,
}

func (tx *writeTx) IDExists(ctx context.Context, table, id string) (bool, error) {
	query, ok := existsQueries[table]
	if !ok {
		return false, fmt.Errorf("sqldb: unknown table %q", table)
	}
	return tx.exists(ctx, "checking "+table+" id", query, id)
}

func (tx *writeTx) LockSchedule(ctx context.Context, scheduleID string) (bool, error) {
	return tx.exists(ctx, "locking schedule", tx.db.dialect.lockSchedule, scheduleID)
}

func (tx *writeTx) UserExists(ctx context.Context, userID string) (bool, error) {
	return tx.exists(ctx, "checking user", `SELECT 1 FROM users WHERE id = ? LIMIT 1`, userID)
}

func (tx *writeTx) ReservationExists(ctx context.Context, scheduleID, userID string) (bool, error) {
	return tx.exists(ctx, "checking reservation",
		`SELECT 1 FROM reservations WHERE schedule_id = ? AND user_id = ? LIMIT 1`,
		scheduleID, userID)
}

func (tx *writeTx) exists(ctx context.Context, op, query string, args ...any) (bool, error) {
	var one int
	err := tx.q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqldb: %s: %w", op, err)
	}
	return true, nil
}

func (tx *writeTx) ScheduleCapacity(ctx context.Context, scheduleID string) (int, error) {
	var capacity int
	err := tx.q.QueryRowContext(ctx,
		`SELECT capacity FROM schedules WHERE id = ?`, scheduleID,
	).Scan(&capacity)
	if err != nil {
		return 0, fmt.Errorf("sqldb: reading capacity of %s: %w", scheduleID, err)
	}
	return capacity, nil
}

func (tx *writeTx) CountReservations(ctx context.Context, scheduleID string) (int, error) {
	var count int
	err := tx.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE schedule_id = ?`, scheduleID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqldb: counting reservations of %s: %w", scheduleID, err)
	}
	return count, nil
}

func (tx *writeTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	createdAt, err := tx.createdAt(ctx)
	if err != nil {
		return err
	}
	r.CreatedAt = createdAt
	_, err = tx.q.ExecContext(ctx,
		`INSERT INTO reservations (id, schedule_id, user_id, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.ScheduleID, r.UserID, r.CreatedAt,
	)
	return tx.insertErr("reservation", err)
}

func (tx *writeTx) InsertSchedule(ctx context.Context, s *model.Schedule) error {
	createdAt, err := tx.createdAt(ctx)
	if err != nil {
		return err
	}
	s.CreatedAt = createdAt
	_, err = tx.q.ExecContext(ctx,
		`INSERT INTO schedules (id, title, capacity, created_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Title, s.Capacity, s.CreatedAt,
	)
	return tx.insertErr("schedule", err)
}

func (tx *writeTx) InsertUser(ctx context.Context, u *model.User) error {
	createdAt, err := tx.createdAt(ctx)
	if err != nil {
		return err
	}
	u.CreatedAt = createdAt
	_, err = tx.q.ExecContext(ctx,
		`INSERT INTO users (id, email, nickname, staff, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Nickname, u.Staff, u.CreatedAt,
	)
	return tx.insertErr("user", err)
}

// createdAt is the timestamp for a row inserted in this transaction. On
// MySQL it is the server's UTC_TIMESTAMP(6), so every app instance stamps
// rows from one clock.
func (tx *writeTx) createdAt(ctx context.Context) (time.Time, error) {
	if tx.db.fixedClock || tx.db.dialect.nowQuery == "" {
		return tx.db.timestamp(), nil
	}
	var now time.Time
	if err := tx.q.QueryRowContext(ctx, tx.db.dialect.nowQuery).Scan(scanTime(&now)); err != nil {
		return time.Time{}, fmt.Errorf("sqldb: reading server clock: %w", err)
	}
	return now.Truncate(time.Microsecond), nil
}

func (tx *writeTx) insertErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if tx.db.dialect.isDuplicate(err) {
		return fmt.Errorf("sqldb: inserting %s: %w", what, repository.ErrDuplicate)
	}
	return fmt.Errorf("sqldb: inserting %s: %w", what, err)
}

// Truncate deletes children before parents so foreign keys hold throughout.
func (tx *writeTx) Truncate(ctx context.Context) error {
	for _, table := range []string{"reservations", "schedules", "users"} {
		if _, err := tx.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqldb: truncating %s: %w", table, err)
		}
	}
	return nil
}
