package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/pkg/database"
)

type txCtxKey struct{}

// DB is the TransactionManager over one connection pool.
// Repositories take their executor from it, so calls made inside
// WithTransaction join the transaction stored in ctx.
type DB struct {
	conn   *database.DB
	logger *zap.Logger
}

func NewDB(conn *database.DB, logger *zap.Logger) *DB {
	return &DB{conn: conn, logger: logger}
}

// WithTransaction commits when fn returns nil and rolls back otherwise.
// A ctx that already carries a transaction is passed straight through.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		if p := recover(); p != nil {
			db.logger.Error("Transaction rolled back after panic", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txCtxKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Executor returns the transaction in ctx, or the connection pool
func (db *DB) Executor(ctx context.Context) Executor {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db.conn.DB
}

// Rebind converts ? placeholders for the underlying driver
func (db *DB) Rebind(query string) string {
	return db.conn.Rebind(query)
}

// Driver returns the underlying driver name
func (db *DB) Driver() string {
	return db.conn.Driver()
}

// Conn returns the underlying connection pool
func (db *DB) Conn() *sql.DB {
	return db.conn.DB
}

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txCtxKey{}).(*sql.Tx)
	return tx
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ port.TransactionManager = (*DB)(nil)
