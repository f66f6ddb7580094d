package testutil

import (
	"context"
	"sync"

	"github.com/mspfin/billing-engine/internal/domain/audit"
	"github.com/samber/lo"
)

// AuditRecorder keeps published audit entries in memory for assertions.
type AuditRecorder struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{}
}

func (r *AuditRecorder) Publish(_ context.Context, entries ...*audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
}

// Entries returns a copy of everything published so far.
func (r *AuditRecorder) Entries() []*audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.Entry(nil), r.entries...)
}

// ByAction returns the entries recorded for action.
func (r *AuditRecorder) ByAction(action audit.Action) []*audit.Entry {
	return lo.Filter(r.Entries(), func(e *audit.Entry, _ int) bool {
		return e.Action == action
	})
}

func (r *AuditRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
