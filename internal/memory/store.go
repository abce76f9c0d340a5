package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"manifold/internal/observability"
)

// Record is a persistent per-conversation turn record. Output may be a
// string or a structured value already serialized to text by the caller.
type Record struct {
	Input    string    `json:"input"`
	Output   string    `json:"output"`
	Time     time.Time `json:"time"`
	TempData any       `json:"temp_data,omitempty"`
}

// Store persists per-conversation turn history and flattens the K most
// recent records into a single history turn on load, per the Memory Store
// component (§4.9). Grounded on internal/skills/redis_cache.go's TTL-cache
// pattern, generalized from Get/Set to a capped list plus conversation key.
type Store interface {
	// AppendRecord stores rec for conv, truncating the list to keep at most
	// maxRecords (0 disables truncation).
	AppendRecord(ctx context.Context, conv string, rec Record, maxRecords int) error
	// RecentHistory flattens the k most recent records for conv into the
	// format "user: <input>\n\nassistant: <output>" joined by blank lines.
	// Returns "" if no records exist.
	RecentHistory(ctx context.Context, conv string, k int) (string, error)
	// Count reports how many records are currently stored for conv.
	Count(ctx context.Context, conv string) (int, error)
	// OverflowHistory flattens every record except the keepLast most recent
	// ones, oldest first — the complement of RecentHistory, used to build
	// the text a Summarizer condenses before CompactOldest discards it.
	OverflowHistory(ctx context.Context, conv string, keepLast int) (string, error)
	// CompactOldest replaces every record but the keepLast most recent with
	// a single summary record, prepended so it still reads oldest-first.
	// Used by the optional long-history compaction path (§4.9 addendum):
	// once a conversation's record count exceeds a configured threshold,
	// the Summarizer condenses the overflow into one record rather than
	// silently dropping it via the plain maxRecords truncation.
	CompactOldest(ctx context.Context, conv string, keepLast int, summary Record) error
	Close() error
}

const memoryKeyPrefix = "memory:"

func memoryKey(conv string) string { return memoryKeyPrefix + conv }

// RedisStore is the production Store backend.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. ttl is the list's expiry,
// refreshed on every append; zero disables expiry.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) AppendRecord(ctx context.Context, conv string, rec Record, maxRecords int) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode memory record: %w", err)
	}
	key := memoryKey(conv)
	if err := s.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush memory record: %w", err)
	}
	if maxRecords > 0 {
		if err := s.client.LTrim(ctx, key, int64(-maxRecords), -1).Err(); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("conv", conv).Msg("memory_ltrim_failed")
		}
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("conv", conv).Msg("memory_expire_failed")
		}
	}
	return nil
}

func (s *RedisStore) RecentHistory(ctx context.Context, conv string, k int) (string, error) {
	if k <= 0 {
		return "", nil
	}
	key := memoryKey(conv)
	raws, err := s.client.LRange(ctx, key, int64(-k), -1).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("lrange memory records: %w", err)
	}
	return flattenHistory(raws)
}

func (s *RedisStore) Count(ctx context.Context, conv string) (int, error) {
	n, err := s.client.LLen(ctx, memoryKey(conv)).Result()
	if err != nil {
		return 0, fmt.Errorf("llen memory records: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) OverflowHistory(ctx context.Context, conv string, keepLast int) (string, error) {
	if keepLast < 0 {
		keepLast = 0
	}
	key := memoryKey(conv)
	raws, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("lrange memory records: %w", err)
	}
	if keepLast > 0 && len(raws) > keepLast {
		raws = raws[:len(raws)-keepLast]
	} else if keepLast >= len(raws) {
		raws = nil
	}
	return flattenHistory(raws)
}

func (s *RedisStore) CompactOldest(ctx context.Context, conv string, keepLast int, summary Record) error {
	key := memoryKey(conv)
	raws, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("lrange memory records: %w", err)
	}
	if keepLast < 0 {
		keepLast = 0
	}
	var kept []string
	if keepLast > 0 && len(raws) > keepLast {
		kept = raws[len(raws)-keepLast:]
	} else if keepLast > 0 {
		kept = raws
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, raw)
	if len(kept) > 0 {
		args := make([]any, len(kept))
		for i, r := range kept {
			args[i] = r
		}
		pipe.RPush(ctx, key, args...)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("compact memory records: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func flattenHistory(raws []string) (string, error) {
	if len(raws) == 0 {
		return "", nil
	}
	var turns []string
	for _, raw := range raws {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return "", fmt.Errorf("decode memory record: %w", err)
		}
		turns = append(turns, fmt.Sprintf("user: %s\n\nassistant: %s", rec.Input, rec.Output))
	}
	return strings.Join(turns, "\n\n"), nil
}

// InMemoryStore is a process-local Store used for tests and single-process
// development without a Redis dependency.
type InMemoryStore struct {
	byConv map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byConv: make(map[string][]Record)}
}

func (s *InMemoryStore) AppendRecord(_ context.Context, conv string, rec Record, maxRecords int) error {
	list := append(s.byConv[conv], rec)
	if maxRecords > 0 && len(list) > maxRecords {
		list = list[len(list)-maxRecords:]
	}
	s.byConv[conv] = list
	return nil
}

func (s *InMemoryStore) RecentHistory(_ context.Context, conv string, k int) (string, error) {
	if k <= 0 {
		return "", nil
	}
	list := s.byConv[conv]
	if len(list) > k {
		list = list[len(list)-k:]
	}
	var turns []string
	for _, rec := range list {
		turns = append(turns, fmt.Sprintf("user: %s\n\nassistant: %s", rec.Input, rec.Output))
	}
	return strings.Join(turns, "\n\n"), nil
}

func (s *InMemoryStore) Count(_ context.Context, conv string) (int, error) {
	return len(s.byConv[conv]), nil
}

func (s *InMemoryStore) OverflowHistory(_ context.Context, conv string, keepLast int) (string, error) {
	if keepLast < 0 {
		keepLast = 0
	}
	list := s.byConv[conv]
	if keepLast > 0 && len(list) > keepLast {
		list = list[:len(list)-keepLast]
	} else if keepLast >= len(list) {
		list = nil
	}
	var turns []string
	for _, rec := range list {
		turns = append(turns, fmt.Sprintf("user: %s\n\nassistant: %s", rec.Input, rec.Output))
	}
	return strings.Join(turns, "\n\n"), nil
}

func (s *InMemoryStore) CompactOldest(_ context.Context, conv string, keepLast int, summary Record) error {
	list := s.byConv[conv]
	if keepLast < 0 {
		keepLast = 0
	}
	var kept []Record
	if keepLast > 0 && len(list) > keepLast {
		kept = append(kept, list[len(list)-keepLast:]...)
	} else if keepLast > 0 {
		kept = append(kept, list...)
	}
	s.byConv[conv] = append([]Record{summary}, kept...)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
