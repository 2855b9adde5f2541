package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "intake_session:"

// RedisSessionStore keeps chat sessions in Redis with a TTL matching the
// inactivity window, so abandoned sessions expire on their own.
type RedisSessionStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisSessionStore wraps a Redis client. A zero ttl uses the inactivity window.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("intake: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultInactivityWindow
	}
	return &RedisSessionStore{
		redis:  client,
		tracer: otel.Tracer("defense.internal.intake.session_store"),
		ttl:    ttl,
	}
}

func (s *RedisSessionStore) Load(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, errors.New("intake: session key required")
	}
	ctx, span := s.tracer.Start(ctx, "intake.session.load")
	defer span.End()

	raw, err := s.redis.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("intake: load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("intake: decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, key string, sess *Session) error {
	if key == "" {
		return errors.New("intake: session key required")
	}
	if sess == nil {
		return errors.New("intake: session cannot be nil")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("intake: marshal session: %w", err)
	}
	ctx, span := s.tracer.Start(ctx, "intake.session.save")
	defer span.End()

	if err := s.redis.Set(ctx, sessionKey(key), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Clear(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("intake: session key required")
	}
	ctx, span := s.tracer.Start(ctx, "intake.session.clear")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: clear session: %w", err)
	}
	return nil
}

func sessionKey(key string) string {
	return sessionKeyPrefix + key
}
