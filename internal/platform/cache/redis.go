// Package cache holds the Redis connection settings shared by bearer
// sessions, directory invalidation and the job queue.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	pingTimeout = 5 * time.Second
	dialTimeout = 3 * time.Second
	ioTimeout   = 2 * time.Second
)

// Options addresses one Redis database.
type Options struct {
	Addr string
	DB   int
	// ClientName shows up in CLIENT LIST; empty keeps the server default.
	ClientName string
}

func (o Options) redisOptions() *redis.Options {
	return &redis.Options{
		Addr:         o.Addr,
		DB:           o.DB,
		ClientName:   o.ClientName,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	}
}

// AsynqOpt converts the options for asynq clients, servers and inspectors.
func (o Options) AsynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         o.Addr,
		DB:           o.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	}
}

// New creates a Redis client and verifies connectivity.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(opts.redisOptions())

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}
