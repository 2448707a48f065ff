package event

import (
	"context"
	"sync"
)

// MemoryLog is an in-memory append-only sink for demo/development mode and
// tests. Records are never mutated or removed.
type MemoryLog struct {
	mu      sync.RWMutex
	records []*Envelope
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(ctx context.Context, e *Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *e
	l.records = append(l.records, &cp)
	return nil
}

// All returns every record in append order.
func (l *MemoryLog) All() []*Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Envelope, len(l.records))
	copy(out, l.records)
	return out
}

// ByTopic returns records matching the topic pair, in append order.
func (l *MemoryLog) ByTopic(topics Topic) []*Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Envelope
	for _, e := range l.records {
		if e.Topics == topics {
			out = append(out, e)
		}
	}
	return out
}

// CountByTopic returns the number of records for a topic pair.
func (l *MemoryLog) CountByTopic(ctx context.Context, topics Topic) (int64, error) {
	return int64(len(l.ByTopic(topics))), nil
}

// Len returns the number of records.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

var _ Sink = (*MemoryLog)(nil)
