package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ada/core"
)

type Transactor struct {
	db      *sqlx.DB
	logger  core.Logger
	retries int
	delay   time.Duration
}

var _ core.Transactor = (*Transactor)(nil) // interface compliance check

// NewTransactor returns a Transactor retrying transient failures up to retries times,
// waiting attempt * delay between attempts.
func NewTransactor(db *sqlx.DB, logger core.Logger, retries int, delay time.Duration) *Transactor {
	if retries < 0 {
		retries = 0
	}
	return &Transactor{db: db, logger: logger, retries: retries, delay: delay}
}

func (t *Transactor) txOptions() *sql.TxOptions {
	if t.db.DriverName() == driverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil // sqlite: BEGIN IMMEDIATE (see sqliteDSN)
}

// RunInTx runs fn in a transaction, committed if fn returns nil and rolled back otherwise.
// fn may run more than once: it must not have effects outside the transaction.
func (t *Transactor) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	var err error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "waiting to retry transaction")
			case <-time.After(time.Duration(attempt) * t.delay):
			}
		}

		err = t.runOnce(ctx, fn)
		if err == nil || !IsTransient(err) {
			return err
		}
		t.logger.Warn("transient database error, retrying transaction", err, map[string]interface{}{"attempt": attempt + 1})
	}
	return errors.Wrap(err, "transaction retries exhausted")
}

func (t *Transactor) runOnce(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, t.txOptions())
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			t.logger.Error("rolling back transaction", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
