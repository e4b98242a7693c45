package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

type txState struct {
	tx    *sqlx.Tx
	mu    sync.Mutex
	hooks []func()
}

func stateFrom(ctx context.Context) *txState {
	state, _ := ctx.Value(txKey{}).(*txState)
	return state
}

// Executor is the query surface shared by *sqlx.DB and *sqlx.Tx.
type Executor interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// TxManager runs closures inside a single database transaction. Repositories
// resolve the active transaction from the context through Conn.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager constructs a transaction manager.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx begins a transaction, runs fn and commits when fn returns nil.
// Nested calls join the outer transaction. Hooks registered with AfterCommit
// run once the outermost transaction commits.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	state := &txState{tx: tx}
	if err = fn(context.WithValue(ctx, txKey{}, state)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	state.mu.Lock()
	hooks := state.hooks
	state.hooks = nil
	state.mu.Unlock()
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// AfterCommit defers fn until the transaction bound to ctx commits. Without a
// transaction fn runs immediately. Hooks are dropped on rollback.
func AfterCommit(ctx context.Context, fn func()) {
	state := stateFrom(ctx)
	if state == nil {
		fn()
		return
	}
	state.mu.Lock()
	state.hooks = append(state.hooks, fn)
	state.mu.Unlock()
}

// Conn returns the transaction bound to ctx, falling back to db.
func Conn(ctx context.Context, db *sqlx.DB) Executor {
	if state := stateFrom(ctx); state != nil {
		return state.tx
	}
	return db
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	return stateFrom(ctx) != nil
}

// WithoutTx returns a context that no longer carries a transaction, for work that
// must run outside of it such as after-commit hooks.
func WithoutTx(ctx context.Context) context.Context {
	if stateFrom(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, (*txState)(nil))
}
