package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
)

type auditRow struct {
	ID        int64      `db:"id"`
	ActorID   null.Int64 `db:"actor_id"`
	Action    string     `db:"action"`
	CreatedAt time.Time  `db:"created_at"`
}

type auditRepository struct {
	base
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(exec core.DBExecutor) *auditRepository {
	return &auditRepository{base{exec: exec}}
}

func (repo auditRepository) CreateEntry(ctx context.Context, e audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	id, err := insertReturningID(ctx, repo.getExec(exec),
		"INSERT INTO audit_log (actor_id, action, created_at) VALUES (?, ?, ?) RETURNING id",
		null.NewInt64(e.ActorID, e.ActorID != 0), e.Action, e.CreatedAt.UTC(),
	)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	e.ID = id
	return e, nil
}

func (repo auditRepository) QueryEntries(ctx context.Context, filter audit.Filter, exec ...core.DBExecutor) ([]audit.Entry, error) {
	var w where
	if filter.ActorID != 0 {
		w.add("actor_id = ?", filter.ActorID)
	}
	if filter.Search != "" {
		w.add(`LOWER(action) LIKE ? ESCAPE '\'`, likePattern(filter.Search))
	}
	if !filter.From.IsZero() {
		w.add("created_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("created_at <= ?", filter.To.UTC())
	}
	page := filter.Page.Clamp(100, 1000)

	var rows []auditRow
	q := "SELECT id, actor_id, action, created_at FROM audit_log" + w.String() + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, append(w.args, page.Limit, page.Offset)...); err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, audit.Entry{
			ID:        row.ID,
			ActorID:   row.ActorID.Int64,
			Action:    row.Action,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return entries, nil
}

func (repo auditRepository) DeleteEntriesBefore(ctx context.Context, cutoff time.Time, exec ...core.DBExecutor) (int, error) {
	n, err := execRowsAffected(ctx, repo.getExec(exec), "DELETE FROM audit_log WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting audit entries")
	}
	return n, nil
}
