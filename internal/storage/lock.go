package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Locker 单写者互斥：去重检查与插入必须在同一把锁内完成
type Locker interface {
	// Lock 阻塞直到拿到锁或 ctx 结束，返回的 unlock 必须调用
	Lock(ctx context.Context) (unlock func(), err error)
}

// LocalLocker 进程内互斥
type LocalLocker struct {
	ch chan struct{}
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{ch: make(chan struct{}, 1)}
}

func (l *LocalLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RedisLocker 跨进程互斥：SET NX PX 加锁，Lua 脚本比较 token 后删除
type RedisLocker struct {
	rdb      *redis.Client
	key      string
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
}

var _ Locker = (*RedisLocker)(nil)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(rdb *redis.Client, key string, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{
		rdb:      rdb,
		key:      key,
		ttl:      ttl,
		interval: 200 * time.Millisecond,
		log:      log.With().Str("component", "redis_locker").Logger(),
	}
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", l.key, err)
		}
		if ok {
			return func() { l.release(token) }, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// release 失败时锁会一直保留到 TTL 过期
func (l *RedisLocker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
		l.log.Warn().Err(err).Str("key", l.key).Dur("ttl", l.ttl).Msg("release lock failed, held until ttl expires")
	}
}

// ChainLocker 按顺序获取多把锁，逆序释放
type ChainLocker []Locker

func (c ChainLocker) Lock(ctx context.Context) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range c {
		u, err := l.Lock(ctx)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return release, nil
}
