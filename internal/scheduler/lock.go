package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker claims a calendar day so only one instance runs that day's cycle.
type Locker interface {
	TryLock(ctx context.Context, day string) (bool, error)
}

// NopLocker always grants the lock (single-instance deployment).
type NopLocker struct{}

func (NopLocker) TryLock(context.Context, string) (bool, error) { return true, nil }

const (
	lockPrefix = "payreminder:cycle:"
	lockTTL    = 23 * time.Hour
)

// RedisLocker claims a day with SET NX; the key expires before the next day's run.
type RedisLocker struct {
	client *redis.Client
	owner  string
}

// NewRedisLocker connects to url (redis://...) and verifies the connection.
func NewRedisLocker(ctx context.Context, url, owner string) (*RedisLocker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisLocker{client: client, owner: owner}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, day string) (bool, error) {
	return l.client.SetNX(ctx, lockPrefix+day, l.owner, lockTTL).Result()
}

func (l *RedisLocker) Close() error { return l.client.Close() }
