// Package ledger keeps the in-memory history of execution attempts.
//
// Records are created on every attempt, successful or not, and are
// immutable afterwards. They are never persisted.
package ledger

import (
	"context"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"ordito/internal/domain"
	"ordito/internal/usecase/eventbus"
)

// Ledger stores execution records keyed by a timestamp-derived ID.
type Ledger struct {
	bus    domain.EventBus
	logger *slog.Logger
	nowFn  func() time.Time

	mu      sync.RWMutex
	records map[string]domain.ExecutionRecord
	order   []string
	entropy *ulid.MonotonicEntropy
}

// New creates an empty Ledger. bus may be nil.
func New(bus domain.EventBus, logger *slog.Logger) *Ledger {
	now := time.Now()
	return &Ledger{
		bus:     bus,
		logger:  logger,
		nowFn:   time.Now,
		records: make(map[string]domain.ExecutionRecord),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
	}
}

// RecordSingle records the outcome of a single command. A non-nil err
// becomes a failure entry carrying the error message.
func (l *Ledger) RecordSingle(ctx context.Context, label, output string, err error) string {
	entry := domain.SuccessEntry(label, output)
	if err != nil {
		entry = domain.FailureEntry(label, err.Error())
	}
	return l.RecordGroup(ctx, label, []domain.ExecutionEntry{entry})
}

// RecordGroup records the entries of a group execution. Individual entries
// may have failed.
func (l *Ledger) RecordGroup(ctx context.Context, label string, entries []domain.ExecutionEntry) string {
	now := l.nowFn()

	l.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), l.entropy).String()
	rec := domain.ExecutionRecord{
		ID:        id,
		Label:     label,
		CreatedAt: now,
		Entries:   slices.Clone(entries),
	}
	l.records[id] = rec
	l.order = append(l.order, id)
	l.mu.Unlock()

	eventbus.Emit(ctx, l.bus, domain.EventExecutionRecorded, domain.ExecutionRecorded{
		RecordID:     id,
		Label:        label,
		Summary:      rec.Summary(),
		SuccessCount: rec.SuccessCount(),
		ErrorCount:   rec.ErrorCount(),
	})
	l.logger.Debug("execution recorded", "record_id", id, "label", label, "summary", string(rec.Summary()))
	return id
}

// Get returns a copy of the record with the given ID.
func (l *Ledger) Get(id string) (domain.ExecutionRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return domain.ExecutionRecord{}, false
	}
	rec.Entries = slices.Clone(rec.Entries)
	return rec, true
}

// List returns copies of all records in insertion order.
func (l *Ledger) List() []domain.ExecutionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ExecutionRecord, 0, len(l.order))
	for _, id := range l.order {
		rec := l.records[id]
		rec.Entries = slices.Clone(rec.Entries)
		out = append(out, rec)
	}
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// SuccessCount returns the successful entries of a record, 0 if unknown.
func (l *Ledger) SuccessCount(id string) int {
	rec, _ := l.Get(id)
	return rec.SuccessCount()
}

// ErrorCount returns the failed entries of a record, 0 if unknown.
func (l *Ledger) ErrorCount(id string) int {
	rec, _ := l.Get(id)
	return rec.ErrorCount()
}

// Summary classifies a record.
func (l *Ledger) Summary(id string) (domain.ExecutionSummary, bool) {
	rec, ok := l.Get(id)
	if !ok {
		return "", false
	}
	return rec.Summary(), true
}

// Clear removes one record and reports whether it existed.
func (l *Ledger) Clear(ctx context.Context, id string) bool {
	l.mu.Lock()
	_, ok := l.records[id]
	if ok {
		delete(l.records, id)
		l.order = slices.DeleteFunc(l.order, func(s string) bool { return s == id })
	}
	l.mu.Unlock()

	if ok {
		eventbus.Emit(ctx, l.bus, domain.EventLedgerCleared, map[string]string{"record_id": id})
	}
	return ok
}

// ClearAll removes every record.
func (l *Ledger) ClearAll(ctx context.Context) {
	l.mu.Lock()
	l.records = make(map[string]domain.ExecutionRecord)
	l.order = nil
	l.mu.Unlock()

	eventbus.Emit(ctx, l.bus, domain.EventLedgerCleared, nil)
}
