package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Novip1906/tasks-live/internal/config"
	"github.com/redis/go-redis/v9"
)

type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
}

// callerBoundPoolWait stands in for "no pool timeout": go-redis replaces a
// zero timeout with its own short default, and the wait also ends with the
// caller's context.
const callerBoundPoolWait = 24 * time.Hour

func redisOptions(cfg *config.Redis) *redis.Options {
	poolTimeout := cfg.PoolTimeout
	if poolTimeout <= 0 {
		poolTimeout = callerBoundPoolWait
	}
	return &redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		PoolTimeout: poolTimeout,
	}
}

func NewRedisStorage(ctx context.Context, cfg *config.Redis, log *slog.Logger) (*RedisStorage, error) {
	rdb := redis.NewClient(redisOptions(cfg))

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, unavailable(err)
	}
	log.Info("connected to redis", slog.String("address", cfg.Address))

	return &RedisStorage{client: rdb, log: log}, nil
}

// Client exposes the underlying pool for redis-native helpers such as the
// rate limiter.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return value, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisStorage) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (r *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return count > 0, nil
}

func (r *RedisStorage) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisStorage) SAdd(ctx context.Context, key, member string) error {
	if err := r.client.SAdd(ctx, key, member).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisStorage) SRem(ctx context.Context, key, member string) error {
	if err := r.client.SRem(ctx, key, member).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisStorage) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return members, nil
}

func (r *RedisStorage) Publish(ctx context.Context, channel, payload string) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisStorage) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)

	// Wait for the subscribe confirmation so nothing published after we
	// return can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, unavailable(err)
	}

	sub := &redisSubscription{
		ps:   ps,
		in:   ps.Channel(),
		out:  make(chan string),
		done: make(chan struct{}),
	}
	go sub.forward()

	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	in   <-chan *redis.Message
	out  chan string
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	for msg := range s.in {
		select {
		case s.out <- msg.Payload:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan string {
	return s.out
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
