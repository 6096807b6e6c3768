// Package sqlxrepos implements the core repositories on top of sqlx.
// Queries are written with `?` placeholders and rebound for the driver in use (sqlite or postgres).
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ada/core"
)

// base is embedded by every repository.
type base struct {
	exec core.DBExecutor
}

func (b base) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return b.exec
}

// get scans a single row into dest, mapping sql.ErrNoRows to notFound.
func get(ctx context.Context, exec core.DBExecutor, notFound error, dest interface{}, query string, args ...interface{}) error {
	if err := sqlx.GetContext(ctx, exec, dest, exec.Rebind(query), args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return notFound
		}
		return err
	}
	return nil
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(query), args...)
}

// insertReturningID runs an INSERT ... RETURNING id statement.
func insertReturningID(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int64, error) {
	var id int64
	err := exec.QueryRowxContext(ctx, exec.Rebind(query), args...).Scan(&id)
	return id, err
}

func execRowsAffected(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int, error) {
	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// likePattern returns a lower-case "contains" pattern for LOWER(col) LIKE ?.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

// where joins conditions with AND.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
