package logstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memKey struct {
	event string
	dest  string
}

// Memory is an in-process Store. Used by tests and as a dry-run backend.
type Memory struct {
	mu   sync.Mutex
	rows map[memKey]Record
	seq  map[memKey]int // insertion order, for stable Recent() ties
	next int
}

func NewMemory() *Memory {
	return &Memory{rows: map[memKey]Record{}, seq: map[memKey]int{}}
}

func (m *Memory) Append(ctx context.Context, r Record) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	k := memKey{event: r.SourceEventID, dest: r.DestinationID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.rows[k]; ok && prev.Outcome == OutcomeDelivered {
		return nil
	}
	if _, ok := m.seq[k]; !ok {
		m.seq[k] = m.next
		m.next++
	}
	m.rows[k] = r
	return nil
}

func (m *Memory) Get(ctx context.Context, sourceEventID, destinationID string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[memKey{event: sourceEventID, dest: destinationID}]
	return r, ok, nil
}

func (m *Memory) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	m.mu.Lock()
	type entry struct {
		rec Record
		seq int
	}
	all := make([]entry, 0, len(m.rows))
	for k, r := range m.rows {
		all = append(all, entry{rec: r, seq: m.seq[k]})
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].rec.At.Equal(all[j].rec.At) {
			return all[i].rec.At.After(all[j].rec.At)
		}
		return all[i].seq > all[j].seq
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]Record, len(all))
	for i, e := range all {
		out[i] = e.rec
	}
	return out, nil
}

func (m *Memory) Prune(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rows {
		if r.At.Before(before) {
			delete(m.rows, k)
			delete(m.seq, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
