package repository

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"tts-relay/internal/domain"
)

// RedisStore is a Redis-backed ledger and conversation state store. Counter
// updates use HIncrBy, which Redis applies atomically, so concurrent charges
// for the same identity all land. Safe for multi-instance deployments.
type RedisStore struct {
	client    goredis.Cmdable
	keyPrefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "ttsrelay:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// NewRedisStore creates a Redis-backed store. The client must be a connected
// *goredis.Client or *goredis.ClusterClient.
func NewRedisStore(client goredis.Cmdable, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	s := &RedisStore{
		client:    client,
		keyPrefix: "ttsrelay:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) userKey(identity string) string {
	return s.keyPrefix + "user:" + identity
}

func (s *RedisStore) stateKey(identity string) string {
	return s.keyPrefix + "state:" + identity
}

// GetOrCreate returns the quota record for identity. HSetNX creates the
// counter field exactly once under concurrent first contact; every caller
// then reads the same field.
func (s *RedisStore) GetOrCreate(ctx context.Context, identity string) (domain.User, error) {
	key := s.userKey(identity)
	if err := s.client.HSetNX(ctx, key, "charactersSpent", 0).Err(); err != nil {
		return domain.User{}, fmt.Errorf("repository: GetOrCreate hsetnx: %w", err)
	}
	spent, err := s.client.HGet(ctx, key, "charactersSpent").Int()
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetOrCreate hget: %w", err)
	}
	return domain.User{Identity: identity, CharactersSpent: spent}, nil
}

// Charge atomically adds characters to the identity's counter and returns the
// updated record.
func (s *RedisStore) Charge(ctx context.Context, identity string, characters int) (domain.User, error) {
	spent, err := s.client.HIncrBy(ctx, s.userKey(identity), "charactersSpent", int64(characters)).Result()
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: Charge hincrby: %w", err)
	}
	return domain.User{Identity: identity, CharactersSpent: int(spent)}, nil
}

// State returns the conversation mode for identity, Inactive when absent.
func (s *RedisStore) State(ctx context.Context, identity string) (domain.ConversationState, error) {
	mode, err := s.client.Get(ctx, s.stateKey(identity)).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.StateInactive, nil
	}
	if err != nil {
		return domain.StateInactive, fmt.Errorf("repository: State get: %w", err)
	}
	if mode == string(domain.StateActive) {
		return domain.StateActive, nil
	}
	return domain.StateInactive, nil
}

// Activate marks identity as active. Idempotent: re-activating rewrites the
// same value.
func (s *RedisStore) Activate(ctx context.Context, identity string) error {
	if err := s.client.Set(ctx, s.stateKey(identity), string(domain.StateActive), 0).Err(); err != nil {
		return fmt.Errorf("repository: Activate set: %w", err)
	}
	return nil
}
