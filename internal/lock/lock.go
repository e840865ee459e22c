package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Locker interface {
	// Obtain не ждёт: занятый ключ сразу даёт ErrNotObtained.
	Obtain(ctx context.Context, key string) (release func(), err error)
}

var ErrNotObtained = errors.New("resource is locked by another operation")

// NewLocker блокировка в Redis, если клиент задан, иначе в памяти процесса.
func NewLocker(rdb *redis.Client, ttl time.Duration, zaplog *zap.Logger) Locker {
	if rdb == nil {
		return NewLocalLocker()
	}
	return &redisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		zaplog: zaplog,
	}
}

type redisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	zaplog *zap.Logger
}

func (l *redisLocker) Obtain(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// Контекст запроса к этому моменту может быть отменён
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.zaplog.Warn("redis lock release", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) Obtain(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	mutex, ok := l.locks[key]
	if !ok {
		mutex = &sync.Mutex{}
		l.locks[key] = mutex
	}
	l.mu.Unlock()

	if !mutex.TryLock() {
		return nil, ErrNotObtained
	}
	return mutex.Unlock, nil
}
