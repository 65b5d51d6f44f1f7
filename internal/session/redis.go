package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session state in Redis, for deployments where multiple
// bridge instances must share conversation chains. Request logs stay in the
// database store; Redis holds only the hot chain pointers.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(dsn string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid redis dsn: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func sessionKey(conversationKey string) string {
	return "qwen-bridge:session:" + conversationKey
}

// Get returns the session for the key, or nil when none exists
func (s *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	values, err := s.client.HGetAll(ctx, sessionKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	sess := &Session{Key: key, ChatID: values["chat_id"]}
	if parent, ok := values["parent_id"]; ok && parent != "" {
		sess.ParentID = &parent
	}
	return sess, nil
}

// Save upserts the session
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	fields := map[string]any{"chat_id": sess.ChatID}
	if sess.ParentID != nil {
		fields["parent_id"] = *sess.ParentID
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(sess.Key), fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, sessionKey(sess.Key), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetParentID implements Link
func (s *RedisStore) GetParentID(ctx context.Context, key string) (*string, error) {
	value, err := s.client.HGet(ctx, sessionKey(key), "parent_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	return &value, nil
}

// SetParentID implements Link
func (s *RedisStore) SetParentID(ctx context.Context, key, value string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(key), "parent_id", value)
	if s.ttl > 0 {
		pipe.Expire(ctx, sessionKey(key), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close releases the underlying connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
