package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when a run is requested while another holds the guard.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// Guard provides run-in-progress exclusion. Acquire never blocks: it either
// returns a release func or ErrRunInProgress.
type Guard interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalGuard excludes overlapping runs within one process.
type LocalGuard struct {
	mu sync.Mutex
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) Acquire(context.Context) (func(), error) {
	if !g.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	return g.mu.Unlock, nil
}

var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisGuard excludes overlapping runs across instances sharing a redis.
// The TTL bounds how long a crashed holder can block others.
type RedisGuard struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisGuard(client redis.UniversalClient, key string, ttl time.Duration, logger *slog.Logger) *RedisGuard {
	return &RedisGuard{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With("component", "run_guard"),
	}
}

func (g *RedisGuard) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		n, err := unlockScript.Run(releaseCtx, g.client, []string{g.key}, token).Int()
		if err != nil {
			g.logger.Error("release run lock failed", "key", g.key, "error", err)
			return
		}
		if n == 0 {
			g.logger.Warn("run lock expired before release", "key", g.key)
		}
	}
	return release, nil
}
