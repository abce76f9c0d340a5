package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultContextTTL matches the origin's AgentContextManager.DEFAULT_TTL (24h).
const DefaultContextTTL = 24 * time.Hour

const (
	contextKeyPrefix   = "agent_context:"
	contextScenarioSet = "scenarios"
)

func contextKey(conv, scenario string) string {
	return fmt.Sprintf("%s%s:%s", contextKeyPrefix, conv, scenario)
}

func contextScenariosKey(conv string) string {
	return fmt.Sprintf("%s%s:%s", contextKeyPrefix, conv, contextScenarioSet)
}

// ContextRecord is one scenario's scratch data for a conversation (§6
// Persisted state: agent_context:<conv>:<scenario>).
type ContextRecord struct {
	Scenario  string          `json:"scenario"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// ContextStore persists arbitrary per-conversation scratch data keyed by an
// open-ended scenario name — any string the caller chooses, not a fixed
// enum. Finalization (§4.1 step 6) clears it for the conversation alongside
// the sensitive-data mappings. Grounded directly on
// agents/agent/memory/agent_context_manager.py in original_source/, which
// has no counterpart anywhere in the teacher: the scenarios set mirrors its
// Redis set index exactly (one key per scenario plus a set of scenario
// names), translated from its classmethod API to a Go interface.
type ContextStore interface {
	Store(ctx context.Context, conv, scenario string, data json.RawMessage, ttl time.Duration, metadata map[string]any) error
	Get(ctx context.Context, conv, scenario string) (ContextRecord, bool, error)
	GetAll(ctx context.Context, conv string) (map[string]ContextRecord, error)
	Delete(ctx context.Context, conv, scenario string) error
	ClearAll(ctx context.Context, conv string) error
	ListScenarios(ctx context.Context, conv string) ([]string, error)
}

// RedisContextStore is the production ContextStore backend.
type RedisContextStore struct {
	client redis.UniversalClient
}

func NewRedisContextStore(client redis.UniversalClient) *RedisContextStore {
	return &RedisContextStore{client: client}
}

func (s *RedisContextStore) Store(ctx context.Context, conv, scenario string, data json.RawMessage, ttl time.Duration, metadata map[string]any) error {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	rec := ContextRecord{Scenario: scenario, Data: data, CreatedAt: time.Now(), Metadata: metadata}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode agent context record: %w", err)
	}
	if err := s.client.Set(ctx, contextKey(conv, scenario), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set agent context: %w", err)
	}
	scenariosKey := contextScenariosKey(conv)
	if err := s.client.SAdd(ctx, scenariosKey, scenario).Err(); err != nil {
		return fmt.Errorf("add agent context scenario: %w", err)
	}
	if err := s.client.Expire(ctx, scenariosKey, ttl).Err(); err != nil {
		return fmt.Errorf("expire agent context scenarios set: %w", err)
	}
	return nil
}

func (s *RedisContextStore) Get(ctx context.Context, conv, scenario string) (ContextRecord, bool, error) {
	raw, err := s.client.Get(ctx, contextKey(conv, scenario)).Bytes()
	if err == redis.Nil {
		return ContextRecord{}, false, nil
	}
	if err != nil {
		return ContextRecord{}, false, fmt.Errorf("get agent context: %w", err)
	}
	var rec ContextRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ContextRecord{}, false, fmt.Errorf("decode agent context record: %w", err)
	}
	return rec, true, nil
}

func (s *RedisContextStore) GetAll(ctx context.Context, conv string) (map[string]ContextRecord, error) {
	scenarios, err := s.client.SMembers(ctx, contextScenariosKey(conv)).Result()
	if err != nil {
		return nil, fmt.Errorf("list agent context scenarios: %w", err)
	}
	out := make(map[string]ContextRecord, len(scenarios))
	for _, scenario := range scenarios {
		rec, ok, err := s.Get(ctx, conv, scenario)
		if err != nil {
			return nil, err
		}
		if ok {
			out[scenario] = rec
		}
	}
	return out, nil
}

func (s *RedisContextStore) Delete(ctx context.Context, conv, scenario string) error {
	if err := s.client.Del(ctx, contextKey(conv, scenario)).Err(); err != nil {
		return fmt.Errorf("delete agent context: %w", err)
	}
	return s.client.SRem(ctx, contextScenariosKey(conv), scenario).Err()
}

func (s *RedisContextStore) ClearAll(ctx context.Context, conv string) error {
	scenariosKey := contextScenariosKey(conv)
	scenarios, err := s.client.SMembers(ctx, scenariosKey).Result()
	if err != nil {
		return fmt.Errorf("list agent context scenarios: %w", err)
	}
	keys := make([]string, 0, len(scenarios)+1)
	for _, scenario := range scenarios {
		keys = append(keys, contextKey(conv, scenario))
	}
	keys = append(keys, scenariosKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear agent context: %w", err)
	}
	return nil
}

func (s *RedisContextStore) ListScenarios(ctx context.Context, conv string) ([]string, error) {
	scenarios, err := s.client.SMembers(ctx, contextScenariosKey(conv)).Result()
	if err != nil {
		return nil, fmt.Errorf("list agent context scenarios: %w", err)
	}
	return scenarios, nil
}

// InMemoryContextStore is a process-local ContextStore for tests and
// single-process development without a Redis dependency.
type InMemoryContextStore struct {
	mu   sync.Mutex
	data map[string]map[string]ContextRecord
}

func NewInMemoryContextStore() *InMemoryContextStore {
	return &InMemoryContextStore{data: make(map[string]map[string]ContextRecord)}
}

func (s *InMemoryContextStore) Store(_ context.Context, conv, scenario string, data json.RawMessage, _ time.Duration, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[conv] == nil {
		s.data[conv] = make(map[string]ContextRecord)
	}
	s.data[conv][scenario] = ContextRecord{Scenario: scenario, Data: data, CreatedAt: time.Now(), Metadata: metadata}
	return nil
}

func (s *InMemoryContextStore) Get(_ context.Context, conv, scenario string) (ContextRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[conv][scenario]
	return rec, ok, nil
}

func (s *InMemoryContextStore) GetAll(_ context.Context, conv string) (map[string]ContextRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ContextRecord, len(s.data[conv]))
	for k, v := range s.data[conv] {
		out[k] = v
	}
	return out, nil
}

func (s *InMemoryContextStore) Delete(_ context.Context, conv, scenario string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[conv], scenario)
	return nil
}

func (s *InMemoryContextStore) ClearAll(_ context.Context, conv string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, conv)
	return nil
}

func (s *InMemoryContextStore) ListScenarios(_ context.Context, conv string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.data[conv]))
	for k := range s.data[conv] {
		out = append(out, k)
	}
	return out, nil
}
