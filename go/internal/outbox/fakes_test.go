package outbox

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/outbox/worker"
)

var errBoom = errors.New("boom")

type memRepo struct {
	mu        sync.Mutex
	events    []worker.OutboxEvent
	sent      map[uuid.UUID]int
	insertErr error
	fetchErr  error
	markErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{sent: make(map[uuid.UUID]int)}
}

func (m *memRepo) InsertOutboxEvent(ctx context.Context, event worker.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memRepo) FetchUnsentOutbox(ctx context.Context, limit int32) ([]worker.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []worker.OutboxEvent
	for _, e := range m.events {
		if m.sent[e.ID] > 0 {
			continue
		}
		out = append(out, e)
		if int32(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.sent[id]++
	return nil
}

func (m *memRepo) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*worker.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id && m.sent[id] == 0 {
			ev := e
			return &ev, nil
		}
	}
	return nil, ErrEventNotFound
}

func (m *memRepo) CountUnsent(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.events {
		if m.sent[e.ID] == 0 {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) add(eventType string) worker.OutboxEvent {
	e := worker.OutboxEvent{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		TimerID:   uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{}`),
	}
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return e
}

// flakyPublisher fails the first failures calls per event id.
type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	attempts  map[uuid.UUID]int
	published []worker.OutboxEvent
}

func newFlakyPublisher(failures int) *flakyPublisher {
	return &flakyPublisher{failures: failures, attempts: make(map[uuid.UUID]int)}
}

func (p *flakyPublisher) Publish(ctx context.Context, event worker.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[event.ID]++
	if p.attempts[event.ID] <= p.failures {
		return errBoom
	}
	p.published = append(p.published, event)
	return nil
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

type fakeConn bool

func (f fakeConn) IsConnected() bool { return bool(f) }
