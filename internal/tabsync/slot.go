package tabsync

import (
	"sync"

	"github.com/google/uuid"
)

// Slot is one tab's binding to the shared credential slot. Subscribers see
// external changes only: a tab is never notified about its own writes,
// matching browser storage-event semantics. Notifications are asynchronous
// but ordered.
type Slot interface {
	Load() string
	Store(token string) error
	Clear() error
	Subscribe(fn func(token string))
	Close()
}

type notice struct {
	from  string
	token string
}

// MemoryStore is the in-process shared slot. Every tab gets its own binding
// through Bind. A single dispatcher goroutine delivers change notices in
// write order.
type MemoryStore struct {
	mx    sync.Mutex
	value string
	subs  map[string]func(token string)

	ch   chan notice
	done chan struct{}
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		subs: make(map[string]func(token string)),
		ch:   make(chan notice, 16),
		done: make(chan struct{}),
	}

	go s.dispatch()

	return s
}

func (s *MemoryStore) Bind() Slot {
	return &memorySlot{store: s, id: uuid.NewString()}
}

func (s *MemoryStore) Close() {
	close(s.done)
}

func (s *MemoryStore) dispatch() {
	for {
		select {
		case n := <-s.ch:
			s.mx.Lock()

			var fns []func(string)

			for id, fn := range s.subs {
				if id != n.from && fn != nil {
					fns = append(fns, fn)
				}
			}
			s.mx.Unlock()

			for _, fn := range fns {
				fn(n.token)
			}
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) set(from, token string) {
	s.mx.Lock()
	s.value = token
	s.mx.Unlock()

	select {
	case s.ch <- notice{from: from, token: token}:
	case <-s.done:
	}
}

type memorySlot struct {
	store *MemoryStore
	id    string
}

func (m *memorySlot) Load() string {
	m.store.mx.Lock()
	defer m.store.mx.Unlock()

	return m.store.value
}

func (m *memorySlot) Store(token string) error {
	m.store.set(m.id, token)

	return nil
}

func (m *memorySlot) Clear() error {
	m.store.set(m.id, "")

	return nil
}

func (m *memorySlot) Subscribe(fn func(token string)) {
	m.store.mx.Lock()
	defer m.store.mx.Unlock()

	m.store.subs[m.id] = fn
}

func (m *memorySlot) Close() {
	m.store.mx.Lock()
	defer m.store.mx.Unlock()

	delete(m.store.subs, m.id)
}
