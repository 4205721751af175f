package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mandate/internal/verification"
	"mandate/pkg/sentinel"
)

const (
	sessionKeyPrefix = "verification_session:"
	idIndexKeyPrefix = "verification_session_id:"
)

// RedisStore persists verification sessions in redis with a TTL so abandoned
// exchanges age out. The TTL is generous; the protocol itself defines no
// server-side expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a redis-backed session store.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, session *verification.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode verification session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, sessionKeyPrefix+session.State, payload, s.ttl)
	pipe.Set(ctx, idIndexKeyPrefix+session.ID, session.State, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store verification session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByState(ctx context.Context, state string) (*verification.Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load verification session: %w", err)
	}

	var session verification.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decode verification session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*verification.Session, error) {
	state, err := s.client.Get(ctx, idIndexKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load verification session index: %w", err)
	}
	return s.FindByState(ctx, state)
}

func (s *RedisStore) Update(ctx context.Context, session *verification.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode verification session: %w", err)
	}

	// KEEPTTL preserves the original expiry across updates.
	set, err := s.client.SetXX(ctx, sessionKeyPrefix+session.State, payload, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("update verification session: %w", err)
	}
	if !set {
		return fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
	}
	return nil
}
