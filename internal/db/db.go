package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/shalteor/bplog/internal/db/migrations"
	"github.com/shalteor/bplog/internal/models"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrReadingNotFound = errors.New("reading not found")
)

// DBTX is the subset of database/sql used by the repositories.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	conn   *sql.DB
	logger *zap.Logger
}

// New opens the SQLite file at path and brings the schema up to date.
func New(ctx context.Context, path string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func dsn(path string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
		// take the write lock at BEGIN so read-then-write transactions wait on busy_timeout
		"_txlock=immediate",
	}
	if path == ":memory:" {
		// A private ":memory:" database is per connection; share one named
		// database across the pool instead.
		path = "bplog-" + uuid.NewString()
		params = append(params, "mode=memory", "cache=shared")
	} else {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// Migrate applies all pending embedded migrations.
func (db *DB) Migrate(ctx context.Context) error {
	provider, err := goose.NewProvider(database.DialectSQLite3, db.conn, migrations.FS)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, res := range results {
		db.logger.Info("migration applied",
			zap.Int64("version", res.Source.Version),
			zap.String("path", res.Source.Path),
			zap.Duration("duration", res.Duration),
		)
	}

	return nil
}

// Conn exposes the underlying pool, e.g. for health checks.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns a user repository bound to the connection pool.
func (db *DB) Users() *UserRepository {
	return NewUserRepository(db.conn)
}

// Readings returns a reading repository bound to the connection pool.
func (db *DB) Readings() *ReadingRepository {
	return NewReadingRepository(db.conn)
}

// WithTx runs fn inside a transaction on this database.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, db.conn, nil, fn)
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
func WithTx(ctx context.Context, conn *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// DeleteUser removes a user together with every reading they own.
func (db *DB) DeleteUser(ctx context.Context, userID int64) error {
	return db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := NewUserRepository(tx).GetByID(ctx, userID); err != nil {
			return err
		}
		if _, err := NewReadingRepository(tx).DeleteByUser(ctx, userID); err != nil {
			return err
		}
		return NewUserRepository(tx).Delete(ctx, userID)
	})
}

// CreateReadings inserts all readings atomically; on error none are kept.
func (db *DB) CreateReadings(ctx context.Context, readings []*models.Reading) error {
	return db.WithTx(ctx, func(ctx context.Context, tx DBTX) error {
		repo := NewReadingRepository(tx)
		for _, r := range readings {
			if err := repo.Create(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
