package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig 用于配置 Redis 连接
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient 创建客户端并 PING 验证连通性。
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Redis fans envelopes out over one Redis pub/sub channel. Each process,
// including the publisher, receives its own envelopes back through the
// subscription.
type Redis struct {
	client  *redis.Client
	channel string
	sub     *redis.PubSub
	hs      handlers
	done    chan struct{}
}

// NewRedis subscribes to channel and returns once the subscription is live.
// The broker owns client and closes it on Close.
func NewRedis(ctx context.Context, client *redis.Client, channel string) (*Redis, error) {
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}
	r := &Redis{client: client, channel: channel, sub: sub, done: make(chan struct{})}
	go r.loop()
	return r, nil
}

func (r *Redis) loop() {
	defer close(r.done)
	for msg := range r.sub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed broadcast envelope")
			continue
		}
		r.hs.dispatch(env)
	}
}

func (r *Redis) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

func (r *Redis) Subscribe(h Handler) { r.hs.add(h) }

func (r *Redis) Close() error {
	err := r.sub.Close()
	<-r.done
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}
