package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenSet remembers which feed items were already stored.
type SeenSet interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// MemorySeen is a process-local SeenSet.
type MemorySeen struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemorySeen() *MemorySeen {
	return &MemorySeen{keys: make(map[string]struct{})}
}

func (s *MemorySeen) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *MemorySeen) Mark(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
	return nil
}

const (
	seenKey = "newslens:monitor:seen"
	seenTTL = 7 * 24 * time.Hour
)

// RedisSeen keeps the seen set in Redis so it survives restarts and is
// shared between instances.
type RedisSeen struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSeen connects to redisURL and verifies the connection.
func NewRedisSeen(ctx context.Context, redisURL string) (*RedisSeen, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisSeen{client: client, key: seenKey, ttl: seenTTL}, nil
}

func (s *RedisSeen) Seen(ctx context.Context, key string) (bool, error) {
	return s.client.SIsMember(ctx, s.key, key).Result()
}

// Mark adds key to the set and refreshes the set's expiry.
func (s *RedisSeen) Mark(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.key, key)
	pipe.Expire(ctx, s.key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisSeen) Close() error {
	return s.client.Close()
}
