package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/internal/ports/output"
	"wps-bot-bridge/pkg/clock"

	"github.com/sirupsen/logrus"
)

// Compile-time check to ensure MemorySessionStore implements SessionStore interface
var _ output.SessionStore = (*MemorySessionStore)(nil)

// sessionEntry guards one conversation. An entry marked dead has been removed
// from the map and must not be used; callers retry with a fresh entry.
type sessionEntry struct {
	mu      sync.Mutex
	session *domain.ConversationSession
	dead    bool
}

// MemorySessionStore struct - Output adapter for in-memory session storage
// Uses sync.Map of per-conversation entries, each with its own mutex, so
// operations on one conversation are serialized without a global lock.
type MemorySessionStore struct {
	sessions  sync.Map // conversation id -> *sessionEntry
	policy    domain.SessionPolicy
	clock     clock.Clock
	lastSweep atomic.Int64 // unix nanos of the last full sweep
}

// NewMemorySessionStore creates a new in-memory session store bounded by policy.
func NewMemorySessionStore(policy domain.SessionPolicy, c clock.Clock) *MemorySessionStore {
	if c == nil {
		c = clock.Real()
	}
	m := &MemorySessionStore{policy: policy, clock: c}
	m.lastSweep.Store(c.Now().UnixNano())
	return m
}

// withEntry runs fn with the live entry for id locked. When create is false
// and no entry exists, fn is not called and false is returned.
func (m *MemorySessionStore) withEntry(id string, create bool, fn func(e *sessionEntry, now time.Time)) bool {
	for {
		var e *sessionEntry
		now := m.clock.Now()
		if create {
			v, _ := m.sessions.LoadOrStore(id, &sessionEntry{session: domain.NewConversationSession(id, now)})
			e = v.(*sessionEntry)
		} else {
			v, ok := m.sessions.Load(id)
			if !ok {
				return false
			}
			e = v.(*sessionEntry)
		}

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		fn(e, now)
		e.mu.Unlock()
		return true
	}
}

// kill removes a locked entry from the map.
func (m *MemorySessionStore) kill(id string, e *sessionEntry) {
	e.dead = true
	m.sessions.CompareAndDelete(id, e)
}

// GetContext returns a copy of the turns of a conversation. An expired
// session is deleted and reads as empty.
func (m *MemorySessionStore) GetContext(ctx context.Context, conversationID string) ([]domain.Turn, error) {
	m.maybeSweep()

	history := []domain.Turn{}
	m.withEntry(conversationID, false, func(e *sessionEntry, now time.Time) {
		if e.session.IsExpired(now, m.policy.IdleTTL) {
			m.kill(conversationID, e)
			return
		}
		history = e.session.GetHistory()
	})
	return history, nil
}

// AppendTurn appends one turn, creating the session when needed.
func (m *MemorySessionStore) AppendTurn(ctx context.Context, conversationID string, role domain.Role, text string) error {
	return m.AppendTurns(ctx, conversationID, domain.Turn{Role: role, Text: text})
}

// AppendTurns appends every turn under one lock, so readers see all or none.
func (m *MemorySessionStore) AppendTurns(ctx context.Context, conversationID string, turns ...domain.Turn) error {
	m.maybeSweep()

	m.withEntry(conversationID, true, func(e *sessionEntry, now time.Time) {
		e.session.Append(now, m.policy, turns...)
	})
	return nil
}

// Reset removes a conversation session. Deleting a missing session is not an error.
func (m *MemorySessionStore) Reset(ctx context.Context, conversationID string) error {
	m.withEntry(conversationID, false, func(e *sessionEntry, now time.Time) {
		m.kill(conversationID, e)
	})
	return nil
}

// Sweep removes every session idle longer than the TTL at now. Entries
// locked by an in-flight operation are in use and skipped, so a sweep never
// waits on another conversation.
func (m *MemorySessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	m.sessions.Range(func(key, value any) bool {
		id := key.(string)
		e := value.(*sessionEntry)
		if !e.mu.TryLock() {
			return ctx.Err() == nil
		}
		if !e.dead && e.session.IsExpired(now, m.policy.IdleTTL) {
			m.kill(id, e)
			removed++
		}
		e.mu.Unlock()
		return ctx.Err() == nil
	})
	m.lastSweep.Store(now.UnixNano())
	return removed, ctx.Err()
}

// Policy returns the configured session policy.
func (m *MemorySessionStore) Policy() domain.SessionPolicy {
	return m.policy
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemorySessionStore) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// maybeSweep runs a full sweep from the access path at most once per TTL,
// so idle sessions are evicted even without the background sweeper.
func (m *MemorySessionStore) maybeSweep() {
	if m.policy.IdleTTL <= 0 {
		return
	}
	now := m.clock.Now()
	last := m.lastSweep.Load()
	if now.UnixNano()-last < int64(m.policy.IdleTTL) {
		return
	}
	if !m.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	if n, _ := m.Sweep(context.Background(), now); n > 0 {
		logrus.Debugf("Lazy sweep removed %d idle sessions", n)
	}
}

// StartSweeper sweeps on every tick until ctx is cancelled. The returned
// channel is closed once the goroutine has exited.
func (m *MemorySessionStore) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logrus.Info("Session sweeper stopped")
				return
			case <-ticker.C:
				n, err := m.Sweep(ctx, m.clock.Now())
				if err != nil {
					return
				}
				if n > 0 {
					logrus.Infof("Session sweeper removed %d idle sessions", n)
				}
			}
		}
	}()
	return done
}
