package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is an in-process Store. It backs tests and local runs
// without redis. Expiry is evaluated lazily against the configured clock.
type MemoryStorage struct {
	mu          sync.Mutex
	now         func() time.Time
	values      map[string]memoryValue
	sets        map[string]map[string]struct{}
	subscribers map[string]map[*memorySubscription]struct{}
	failure     error
}

type memoryValue struct {
	value     string
	expiresAt time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		now:         time.Now,
		values:      make(map[string]memoryValue),
		sets:        make(map[string]map[string]struct{}),
		subscribers: make(map[string]map[*memorySubscription]struct{}),
	}
}

func (m *MemoryStorage) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Fail makes every following operation return err wrapped as a store
// outage. Fail(nil) heals the store.
func (m *MemoryStorage) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// TTL reports the remaining lifetime of key. ok is false when the key is
// absent; a zero duration means the key never expires.
func (m *MemoryStorage) TTL(key string) (ttl time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.lookup(key)
	if !ok || v.expiresAt.IsZero() {
		return 0, ok
	}
	return v.expiresAt.Sub(m.now()), true
}

// DropSubscribers ends every live subscription, as a lost connection to
// the store would.
func (m *MemoryStorage) DropSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for channel, subs := range m.subscribers {
		for sub := range subs {
			sub.end()
		}
		delete(m.subscribers, channel)
	}
}

func (m *MemoryStorage) lookup(key string) (memoryValue, bool) {
	v, ok := m.values[key]
	if !ok {
		return memoryValue{}, false
	}
	if !v.expiresAt.IsZero() && !m.now().Before(v.expiresAt) {
		delete(m.values, key)
		return memoryValue{}, false
	}
	return v, true
}

func (m *MemoryStorage) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return "", unavailable(m.failure)
	}
	v, ok := m.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return v.value, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return unavailable(m.failure)
	}
	m.values[key] = memoryValue{value: value, expiresAt: m.expiry(ttl)}
	return nil
}

func (m *MemoryStorage) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return false, unavailable(m.failure)
	}
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.values[key] = memoryValue{value: value, expiresAt: m.expiry(ttl)}
	return true, nil
}

func (m *MemoryStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return false, unavailable(m.failure)
	}
	if _, ok := m.lookup(key); ok {
		return true, nil
	}
	return len(m.sets[key]) > 0, nil
}

func (m *MemoryStorage) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return unavailable(m.failure)
	}
	delete(m.values, key)
	delete(m.sets, key)
	return nil
}

func (m *MemoryStorage) SAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return unavailable(m.failure)
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (m *MemoryStorage) SRem(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return unavailable(m.failure)
	}
	delete(m.sets[key], member)
	if len(m.sets[key]) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *MemoryStorage) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return nil, unavailable(m.failure)
	}
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *MemoryStorage) Publish(_ context.Context, channel, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return unavailable(m.failure)
	}
	for sub := range m.subscribers[channel] {
		sub.push(payload)
	}
	return nil
}

func (m *MemoryStorage) Subscribe(_ context.Context, channel string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return nil, unavailable(m.failure)
	}

	sub := &memorySubscription{
		store:   m,
		channel: channel,
		wake:    make(chan struct{}, 1),
		out:     make(chan string),
		done:    make(chan struct{}),
	}
	subs, ok := m.subscribers[channel]
	if !ok {
		subs = make(map[*memorySubscription]struct{})
		m.subscribers[channel] = subs
	}
	subs[sub] = struct{}{}

	go sub.pump()
	return sub, nil
}

func (m *MemoryStorage) unsubscribe(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers[sub.channel], sub)
	if len(m.subscribers[sub.channel]) == 0 {
		delete(m.subscribers, sub.channel)
	}
}

// memorySubscription buffers without bound so Publish never blocks on a
// slow reader.
type memorySubscription struct {
	store   *MemoryStorage
	channel string

	mu    sync.Mutex
	queue []string
	ended bool

	wake chan struct{}
	out  chan string
	done chan struct{}
	once sync.Once
}

func (s *memorySubscription) push(payload string) {
	s.mu.Lock()
	s.queue = append(s.queue, payload)
	s.mu.Unlock()
	s.signal()
}

func (s *memorySubscription) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.signal()
}

func (s *memorySubscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			ended := s.ended
			s.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		payload := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- payload:
		case <-s.done:
			return
		}
	}
}

func (s *memorySubscription) Messages() <-chan string {
	return s.out
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.store.unsubscribe(s)
	})
	return nil
}
