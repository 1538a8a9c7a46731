package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MatchLocker serializes writers of a single match. Different matches never contend.
type MatchLocker interface {
	Lock(ctx context.Context, matchID uint) (unlock func(), err error)
}

// LocalMatchLocker is an in-process keyed mutex. Entries are dropped once no caller holds
// or waits on them.
type LocalMatchLocker struct {
	mu    sync.Mutex
	locks map[uint]*matchMutex
}

type matchMutex struct {
	sem  chan struct{}
	refs int
}

func NewLocalMatchLocker() *LocalMatchLocker {
	return &LocalMatchLocker{locks: make(map[uint]*matchMutex)}
}

func (l *LocalMatchLocker) Lock(ctx context.Context, matchID uint) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[matchID]
	if !ok {
		m = &matchMutex{sem: make(chan struct{}, 1)}
		l.locks[matchID] = m
	}
	m.refs++
	l.mu.Unlock()

	select {
	case m.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-m.sem
				l.release(matchID, m)
			})
		}, nil
	case <-ctx.Done():
		l.release(matchID, m)
		return nil, conflict("match %d is busy: %v", matchID, ctx.Err())
	}
}

func (l *LocalMatchLocker) release(matchID uint, m *matchMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, matchID)
	}
}

// releaseScript deletes the lock key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisMatchLocker holds the per-match lock in Redis so several engine instances can
// share one database.
type RedisMatchLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisMatchLocker(client *redis.Client, ttl time.Duration) *RedisMatchLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisMatchLocker{
		client: client,
		prefix: "quiz-engine:match-lock",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

func (l *RedisMatchLocker) key(matchID uint) string {
	return fmt.Sprintf("%s:%d", l.prefix, matchID)
}

func (l *RedisMatchLocker) Lock(ctx context.Context, matchID uint) (func(), error) {
	key := l.key(matchID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, conflict("match %d is busy: %v", matchID, ctx.Err())
			}
			return nil, internalError("acquire match lock", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, conflict("match %d is busy: %v", matchID, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				log.Printf("[MatchLock] failed to release lock for match %d: %v", matchID, err)
			}
		})
	}, nil
}
