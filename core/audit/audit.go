// Package audit keeps the append-only trail of ledger-mutating actions.
// The trail is consulted for dispute resolution only; balances never read it.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ada/core"
)

const writeTimeout = 5 * time.Second

type (
	Entry struct {
		ID        int64     `json:"id"`
		ActorID   int64     `json:"actor_id,omitempty"` // 0: system or unknown actor
		Action    string    `json:"action"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	Filter struct {
		ActorID int64     `query:"actor_id"`
		Search  string    `query:"search"`
		From    time.Time `query:"from"`
		To      time.Time `query:"to"`
		Page    core.Page
	}

	Repository interface {
		CreateEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) (Entry, error)
		QueryEntries(ctx context.Context, filter Filter, exec ...core.DBExecutor) ([]Entry, error)
		DeleteEntriesBefore(ctx context.Context, cutoff time.Time, exec ...core.DBExecutor) (int, error)
	}

	// Logger records an action on the trail without ever failing the caller.
	Logger interface {
		LogAction(ctx context.Context, actorID int64, action string)
	}
)

type job struct {
	entry   Entry
	flushed chan struct{}
}

// Trail writes entries on its own goroutine. LogAction never blocks and never fails:
// a full queue, a closed trail or a storage error is reported to the logger and the entry is dropped.
type Trail struct {
	repo   Repository
	logger core.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	done   chan struct{}
}

var _ Logger = (*Trail)(nil)

func NewTrail(repo Repository, logger core.Logger, queueSize int) *Trail {
	if queueSize <= 0 {
		queueSize = 1
	}
	t := &Trail{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		jobs:   make(chan job, queueSize),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Trail) run() {
	defer close(t.done)
	for j := range t.jobs {
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		t.write(j.entry)
	}
}

func (t *Trail) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := t.repo.CreateEntry(ctx, e); err != nil {
		t.logger.Error("audit write failed", errors.Wrap(err, "creating audit entry"), map[string]interface{}{
			"actor_id": e.ActorID,
			"action":   e.Action,
		})
	}
}

func (t *Trail) LogAction(_ context.Context, actorID int64, action string) {
	action = core.CleanString(action)
	if action == "" {
		return
	}
	e := Entry{ActorID: actorID, Action: action, CreatedAt: t.now().UTC()}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.logger.Warn("audit trail closed, entry dropped", map[string]interface{}{"action": action})
		return
	}
	select {
	case t.jobs <- job{entry: e}:
	default:
		t.logger.Warn("audit queue full, entry dropped", map[string]interface{}{"action": action})
	}
}

// Flush blocks until every entry queued before the call has been written (or dropped).
func (t *Trail) Flush() {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return
	}
	flushed := make(chan struct{})
	t.jobs <- job{flushed: flushed}
	t.mu.RUnlock()
	<-flushed
}

// Close drains the queue and stops the writer.
func (t *Trail) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.jobs)
	t.mu.Unlock()
	<-t.done
}

func (t *Trail) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	filter.Search = core.CleanString(filter.Search)
	return t.repo.QueryEntries(ctx, filter)
}

// Purge deletes entries older than the retention period and records the purge itself.
func (t *Trail) Purge(ctx context.Context, actorID int64, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, core.NewFieldError("retention", "must be positive")
	}
	cutoff := t.now().UTC().Add(-retention)
	cnt, err := t.repo.DeleteEntriesBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "deleting old audit entries")
	}
	if cnt > 0 {
		t.LogAction(ctx, actorID, fmt.Sprintf("Cleared %d audit entries older than %s", cnt, cutoff.Format("2006-01-02")))
	}
	return cnt, nil
}
