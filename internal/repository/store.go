package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/andy/timebill/internal/db"
	"github.com/andy/timebill/internal/domain"
)

var (
	ErrTimerRunning = fmt.Errorf("%w: a timer is already running", domain.ErrConflict)
	ErrNumberTaken  = fmt.Errorf("%w: invoice number already issued", domain.ErrConflict)
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store groups the repositories so a service can run several of them in
// one transaction.
type Store interface {
	Clients() ClientRepository
	Projects() ProjectRepository
	Entries() TimeEntryRepository
	Invoices() InvoiceRepository

	// WithTx runs fn against a Store bound to a single transaction. Nested
	// calls reuse the outer transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}

type sqlStore struct {
	db   *db.DB
	q    DBTX
	inTx bool
}

// NewStore returns a Store backed by database
func NewStore(database *db.DB) Store {
	return &sqlStore{db: database, q: database}
}

func (s *sqlStore) Clients() ClientRepository { return NewClientRepo(s.q) }
func (s *sqlStore) Projects() ProjectRepository { return NewProjectRepo(s.q) }
func (s *sqlStore) Entries() TimeEntryRepository { return NewEntryRepo(s.q) }
func (s *sqlStore) Invoices() InvoiceRepository { return NewInvoiceRepo(s.q) }

func (s *sqlStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqlStore{db: s.db, q: tx, inTx: true})
	})
}

// isUniqueViolation matches the constraint message both SQLite drivers
// surface.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
