package auditlog

import (
	"context"
	"sync"
	"time"
)

type MemLog struct {
	mtx    sync.RWMutex
	events []Event
	Now    func() time.Time
}

var _ Log = (*MemLog)(nil)

func NewMemLog() *MemLog {
	return &MemLog{
		Now: time.Now,
	}
}

func (l *MemLog) AppendEvent(ctx context.Context, evt Event) (*Event, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	evt.ID = uint64(len(l.events) + 1)
	if evt.Timestamp.IsZero() {
		evt.Timestamp = l.Now().UTC()
	}
	l.events = append(l.events, evt)
	return &evt, nil
}

// newest first; events are appended in ID order
func (l *MemLog) reversed(match func(e *Event) bool) []Event {
	out := []Event{}
	for i := len(l.events) - 1; i >= 0; i-- {
		if match == nil || match(&l.events[i]) {
			out = append(out, l.events[i])
		}
	}
	return out
}

func page(events []Event, limit, offset int) []Event {
	if offset >= len(events) {
		return []Event{}
	}
	events = events[offset:]
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events
}

func (l *MemLog) ListEvents(ctx context.Context, limit, offset int) ([]Event, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return page(l.reversed(nil), limit, offset), nil
}

func (l *MemLog) ListEventsByUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return page(l.reversed(func(e *Event) bool { return e.UserID == userID }), limit, 0), nil
}
