package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const promotionLockKey = "queue:promotion_lock"

// Lock is a scheduler-wide advisory lock around order promotion. Only one
// holder at a time may run the find-then-promote sequence; the TTL bounds how
// long a crashed holder can block the queue.
type Lock struct {
	Client *redis.Client
	TTL    time.Duration

	token string
}

func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	return &Lock{Client: client, TTL: ttl}
}

// Acquire takes the promotion lock. Returns false without error when another
// holder has it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, promotionLockKey, token, l.TTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lock if this instance still holds it. A lock that expired
// and was re-acquired elsewhere is left alone.
func (l *Lock) Release(ctx context.Context) error {
	val, err := l.Client.Get(ctx, promotionLockKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == l.token {
		_, err := l.Client.Del(ctx, promotionLockKey).Result()
		return err
	}
	return nil
}
