package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}

	// Transactor runs fn inside a single database transaction.
	// The transaction is committed if fn returns nil and rolled back otherwise.
	Transactor interface {
		RunInTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

// Page limits a listing.
type Page struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// Clamp applies the default size to an empty page and caps it at max.
func (p Page) Clamp(def, max int) Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if max > 0 && p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
