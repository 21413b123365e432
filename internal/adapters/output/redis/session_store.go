package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/internal/ports/output"
	"wps-bot-bridge/pkg/clock"

	goredis "github.com/redis/go-redis/v9"
)

// Compile-time check to ensure RedisSessionStore implements SessionStore interface
var _ output.SessionStore = (*RedisSessionStore)(nil)

const (
	keyPrefix = "session:"

	// maxTxRetries bounds optimistic transaction retries under contention
	maxTxRetries = 64
)

// RedisSessionStore struct - Output adapter keeping one JSON document per
// conversation. Key expiry enforces the idle TTL; appends run in WATCH/MULTI
// transactions so concurrent writers to one conversation never lose turns.
type RedisSessionStore struct {
	client *goredis.Client
	policy domain.SessionPolicy
	clock  clock.Clock
}

// NewRedisSessionStore creates a redis-backed session store bounded by policy.
func NewRedisSessionStore(client *goredis.Client, policy domain.SessionPolicy, c clock.Clock) *RedisSessionStore {
	if c == nil {
		c = clock.Real()
	}
	return &RedisSessionStore{client: client, policy: policy, clock: c}
}

func (r *RedisSessionStore) key(conversationID string) string {
	return keyPrefix + conversationID
}

// getter is satisfied by both the client and a transaction
type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// load reads a session through g; a missing key yields nil
func load(ctx context.Context, g getter, key string) (*domain.ConversationSession, error) {
	data, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s domain.ConversationSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}

// GetContext returns a copy of the turns of a conversation. An expired
// document is deleted and reads as empty. The delete runs in a WATCH
// transaction so an append committed after the read is never removed.
func (r *RedisSessionStore) GetContext(ctx context.Context, conversationID string) ([]domain.Turn, error) {
	key := r.key(conversationID)

	var history []domain.Turn
	err := r.watch(ctx, key, func(tx *goredis.Tx) error {
		var err error
		history, err = r.readOrExpire(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// readOrExpire loads the session through tx, queueing its deletion when it
// has expired
func (r *RedisSessionStore) readOrExpire(ctx context.Context, tx *goredis.Tx, key string) ([]domain.Turn, error) {
	s, err := load(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return []domain.Turn{}, nil
	}
	if !s.IsExpired(r.clock.Now(), r.policy.IdleTTL) {
		return s.GetHistory(), nil
	}

	_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []domain.Turn{}, nil
}

// AppendTurn appends one turn, creating the session when needed.
func (r *RedisSessionStore) AppendTurn(ctx context.Context, conversationID string, role domain.Role, text string) error {
	return r.AppendTurns(ctx, conversationID, domain.Turn{Role: role, Text: text})
}

// AppendTurns appends every turn in one optimistic transaction.
func (r *RedisSessionStore) AppendTurns(ctx context.Context, conversationID string, turns ...domain.Turn) error {
	key := r.key(conversationID)

	txf := func(tx *goredis.Tx) error {
		now := r.clock.Now()
		s, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		if s == nil {
			s = domain.NewConversationSession(conversationID, now)
		}
		s.Append(now, r.policy, turns...)

		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("session: failed to marshal: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl())
			return nil
		})
		return err
	}

	return r.watch(ctx, key, txf)
}

// watch runs txf under WATCH key, retrying when another writer touched the
// key before EXEC
func (r *RedisSessionStore) watch(ctx context.Context, key string, txf func(tx *goredis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session: %s gave up after %d conflicting transactions", key, maxTxRetries)
}

// Reset removes a conversation session. Deleting a missing key is not an error.
func (r *RedisSessionStore) Reset(ctx context.Context, conversationID string) error {
	return r.client.Del(ctx, r.key(conversationID)).Err()
}

// Sweep is a no-op: redis expires idle keys itself.
func (r *RedisSessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// ttl is the key expiry; zero keeps the key forever
func (r *RedisSessionStore) ttl() time.Duration {
	if r.policy.IdleTTL <= 0 {
		return 0
	}
	return r.policy.IdleTTL
}
