package sensitive

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	forwardKeyPrefix = "sensitive_data:"
	reverseKeyPrefix = "sensitive_data_reverse:"
	// DefaultTTL is the shared TTL for both conversation-scoped hashes.
	DefaultTTL = 7 * 24 * time.Hour
)

func forwardKey(conv string) string { return forwardKeyPrefix + conv }
func reverseKey(conv string) string { return reverseKeyPrefix + conv }

// Store is the two-hash backing for the Sensitive-Data Processor: identifier
// → original and masked → original, each with a shared TTL. Grounded on
// internal/skills/redis_cache.go's TTL-keyed Get/Set/Scan pattern, split
// across two hashes instead of one flat keyspace.
type Store interface {
	SetForward(ctx context.Context, conv, identifier, originalJSON string, ttl time.Duration) error
	GetForward(ctx context.Context, conv, identifier string) (string, bool, error)
	SetReverse(ctx context.Context, conv, masked, originalJSON string, ttl time.Duration) error
	GetReverse(ctx context.Context, conv, masked string) (string, bool, error)
	// AllReverse returns the full masked→original hash for conv, used by the
	// affix/length recovery heuristics. The map carries no insertion order;
	// recoverString sorts its keys so that the choice among several
	// candidates is deterministic.
	AllReverse(ctx context.Context, conv string) (map[string]string, error)
	// Clear removes both the forward and reverse mappings for conv (I3).
	Clear(ctx context.Context, conv string) error
}

// RedisStore is the production Store backend.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetForward(ctx context.Context, conv, identifier, originalJSON string, ttl time.Duration) error {
	key := forwardKey(conv)
	if err := s.client.HSet(ctx, key, identifier, originalJSON).Err(); err != nil {
		return err
	}
	if ttl > 0 {
		return s.client.Expire(ctx, key, ttl).Err()
	}
	return nil
}

func (s *RedisStore) GetForward(ctx context.Context, conv, identifier string) (string, bool, error) {
	v, err := s.client.HGet(ctx, forwardKey(conv), identifier).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) SetReverse(ctx context.Context, conv, masked, originalJSON string, ttl time.Duration) error {
	key := reverseKey(conv)
	if err := s.client.HSet(ctx, key, masked, originalJSON).Err(); err != nil {
		return err
	}
	if ttl > 0 {
		return s.client.Expire(ctx, key, ttl).Err()
	}
	return nil
}

func (s *RedisStore) GetReverse(ctx context.Context, conv, masked string) (string, bool, error) {
	v, err := s.client.HGet(ctx, reverseKey(conv), masked).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) AllReverse(ctx context.Context, conv string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, reverseKey(conv)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return m, nil
}

func (s *RedisStore) Clear(ctx context.Context, conv string) error {
	if err := s.client.Del(ctx, forwardKey(conv)).Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, reverseKey(conv)).Err()
}

// InMemoryStore is a process-local Store used for tests and development.
type InMemoryStore struct {
	forward map[string]map[string]string
	reverse map[string]map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		forward: make(map[string]map[string]string),
		reverse: make(map[string]map[string]string),
	}
}

func (s *InMemoryStore) SetForward(_ context.Context, conv, identifier, originalJSON string, _ time.Duration) error {
	if s.forward[conv] == nil {
		s.forward[conv] = make(map[string]string)
	}
	s.forward[conv][identifier] = originalJSON
	return nil
}

func (s *InMemoryStore) GetForward(_ context.Context, conv, identifier string) (string, bool, error) {
	v, ok := s.forward[conv][identifier]
	return v, ok, nil
}

func (s *InMemoryStore) SetReverse(_ context.Context, conv, masked, originalJSON string, _ time.Duration) error {
	if s.reverse[conv] == nil {
		s.reverse[conv] = make(map[string]string)
	}
	s.reverse[conv][masked] = originalJSON
	return nil
}

func (s *InMemoryStore) GetReverse(_ context.Context, conv, masked string) (string, bool, error) {
	v, ok := s.reverse[conv][masked]
	return v, ok, nil
}

func (s *InMemoryStore) AllReverse(_ context.Context, conv string) (map[string]string, error) {
	out := make(map[string]string, len(s.reverse[conv]))
	for k, v := range s.reverse[conv] {
		out[k] = v
	}
	return out, nil
}

func (s *InMemoryStore) Clear(_ context.Context, conv string) error {
	delete(s.forward, conv)
	delete(s.reverse, conv)
	return nil
}
