package tradelog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRecorder keeps a bounded in-process trade log.
type MemoryRecorder struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64
	limit   int
}

// NewMemoryRecorder creates a recorder keeping at most limit entries
// (oldest dropped first). A non-positive limit keeps 1000.
func NewMemoryRecorder(limit int) *MemoryRecorder {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryRecorder{nextID: 1, limit: limit}
}

// Open appends a new open trade and assigns its ID.
func (r *MemoryRecorder) Open(_ context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cannot record nil entry")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.ID = r.nextID
	r.nextID++
	entry.Status = StatusOpen
	if entry.EntryTime.IsZero() {
		entry.EntryTime = time.Now().UTC()
	}
	r.entries = append(r.entries, *entry)
	if len(r.entries) > r.limit {
		r.entries = r.entries[len(r.entries)-r.limit:]
	}
	return nil
}

// Close finalizes a previously opened trade by ID.
func (r *MemoryRecorder) Close(_ context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cannot record nil entry")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].ID != entry.ID {
			continue
		}
		stored := &r.entries[i]
		stored.ExitPrice = entry.ExitPrice
		stored.ExitTime = entry.ExitTime
		if stored.ExitTime.IsZero() {
			stored.ExitTime = time.Now().UTC()
		}
		stored.ExitReason = entry.ExitReason
		stored.Fees += entry.Fees
		stored.PnL = entry.PnL
		stored.Status = StatusClosed
		*entry = *stored
		return nil
	}
	return fmt.Errorf("trade %d not found", entry.ID)
}

// Recent returns the newest entries, newest first.
func (r *MemoryRecorder) Recent(_ context.Context, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]Entry, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.entries[len(r.entries)-1-i]
	}
	return out, nil
}
