package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// Locker выдаёт право на один запуск сканирования среди реплик сервиса.
type Locker interface {
	// TryLock возвращает release и ok=false, если блокировку держит другая реплика.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// RedisLocker — Locker на redislock.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker создаёт Locker поверх клиента redislock.
func NewRedisLocker(client *redislock.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryLock пытается один раз получить блокировку без повторов.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("redis locker is not initialized")
	}
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	release := func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}
	return release, true, nil
}

// LocalLocker — Locker для одной реплики: блокировка всегда свободна.
type LocalLocker struct{}

// TryLock всегда выдаёт блокировку.
func (LocalLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = LocalLocker{}
)
