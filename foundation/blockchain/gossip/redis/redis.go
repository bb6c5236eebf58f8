// Package redis implements the gossip directory on top of redis. Every path
// is a key holding the latest payload plus a pub/sub channel of the same
// name carrying updates.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pocketcoin/node/foundation/blockchain/gossip"
)

// Config represents the configuration required to connect to redis.
type Config struct {
	Addrs       []string
	Password    string
	DB          int
	Prefix      string
	PresenceTTL time.Duration
}

// Redis represents the directory implementation backed by redis. This
// implements the gossip.Directory interface.
type Redis struct {
	client      goredis.UniversalClient
	prefix      string
	presenceTTL time.Duration
}

// New connects to redis and checks the connection.
func New(ctx context.Context, cfg Config) (*Redis, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewWithClient(client, cfg.Prefix, cfg.PresenceTTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, prefix string, presenceTTL time.Duration) *Redis {
	return &Redis{
		client:      client,
		prefix:      prefix,
		presenceTTL: presenceTTL,
	}
}

// Close releases the connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Publish replaces the latest payload on the path and notifies its
// subscribers.
func (r *Redis) Publish(ctx context.Context, path string, payload []byte) error {
	key := r.key(path)

	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.Publish(ctx, key, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}

	return nil
}

// Subscribe calls fn with the latest payload on the path and every later
// one until the context is done.
func (r *Redis) Subscribe(ctx context.Context, path string, fn gossip.Handler) error {
	key := r.key(path)

	ps := r.client.Subscribe(ctx, key)
	defer ps.Close()

	// Wait for the subscription before reading the stored value so no
	// update falls in between.
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", path, err)
	}

	latest, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return fmt.Errorf("get %s: %w", path, err)
	default:
		fn(latest)
	}

	ch := ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription closed")
			}
			fn([]byte(msg.Payload))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Announce records the identity as present with the current time.
func (r *Redis) Announce(ctx context.Context, identity string) error {
	key := r.key(gossip.SignalingPath)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, identity, now)
	pipe.Publish(ctx, key, identity)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("announce %s: %w", identity, err)
	}

	return nil
}

// EnumeratePeers calls fn for every identity announced within the presence
// window and every later announcement until the context is done.
func (r *Redis) EnumeratePeers(ctx context.Context, fn gossip.PeerHandler) error {
	key := r.key(gossip.SignalingPath)

	ps := r.client.Subscribe(ctx, key)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", gossip.SignalingPath, err)
	}

	present, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}

	for identity, ts := range present {
		if r.isFresh(ts) {
			fn(identity)
		}
	}

	ch := ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription closed")
			}
			fn(msg.Payload)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Redis) isFresh(ts string) bool {
	if r.presenceTTL <= 0 {
		return true
	}

	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}

	return time.Since(time.UnixMilli(ms)) <= r.presenceTTL
}

func (r *Redis) key(path string) string {
	return r.prefix + path
}
