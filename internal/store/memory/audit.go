package memory

import (
	"context"
	"sync"

	"inventra.io/internal/audit"
)

var _ audit.Sink = (*AuditLog)(nil)

// AuditLog is an append-only in-memory audit sink.
type AuditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func NewAuditLog() *AuditLog { return &AuditLog{} }

func (l *AuditLog) Append(_ context.Context, e audit.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// Entries returns a snapshot of recorded entries.
func (l *AuditLog) Entries() []audit.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]audit.Entry(nil), l.entries...)
}

// Actions returns the recorded actions in order.
func (l *AuditLog) Actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Action
	}
	return out
}
