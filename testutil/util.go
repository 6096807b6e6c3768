// Package testutil holds test doubles shared by package tests.
// It must not import storage packages so that core packages can use it from internal tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
)

// Logger records messages instead of printing them.
type Logger struct {
	mu       sync.Mutex
	Messages []string // "LEVEL: msg"
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, level+": "+msg)
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("INFO", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("WARN", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("ERROR", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("FATAL", msg) }

// Count returns the number of messages logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, m := range l.Messages {
		if len(m) > len(level) && m[:len(level)+1] == level+":" {
			n++
		}
	}
	return n
}

type TrailEntry struct {
	ActorID int64
	Action  string
}

// Trail is a synchronous audit logger keeping actions in memory.
type Trail struct {
	mu      sync.Mutex
	Entries []TrailEntry
}

func (tr *Trail) LogAction(_ context.Context, actorID int64, action string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.Entries = append(tr.Entries, TrailEntry{ActorID: actorID, Action: action})
}

func (tr *Trail) Actions() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	actions := make([]string, 0, len(tr.Entries))
	for _, e := range tr.Entries {
		actions = append(actions, e.Action)
	}
	return actions
}

// Dec parses a decimal literal or fails the test.
func Dec(t testing.TB, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("Dec(%q) failed: %v", s, err)
	}
	return d
}

// AssertMoney fails the test if got != want (compared as exact decimals).
func AssertMoney(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !got.Equal(Dec(t, want)) {
		msg := ""
		if len(msgAndArgs) > 0 {
			msg = " (" + fmt.Sprint(msgAndArgs...) + ")"
		}
		t.Errorf("amount = %s, want %s%s", got.String(), want, msg)
	}
}
