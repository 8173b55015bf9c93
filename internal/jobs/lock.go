package jobs

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

var ErrAlreadyRunning = errors.New("job is already running")

// LockClient is the subset of the redis client used by RunLock.
type LockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only while it still holds our token, so a
// run that outlived its TTL never frees another run's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// extendScript resets the TTL only while the key still holds our token.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// RunLock keeps two runs of the same job from overlapping, across
// processes sharing one redis. A held lock is refreshed every third of
// its TTL, so long crawls keep it until they release.
type RunLock struct {
	client LockClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRunLock(client LockClient, ttl time.Duration, logger *slog.Logger) *RunLock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RunLock{client: client, ttl: ttl, logger: logger.With("component", "run_lock")}
}

func lockKey(job string) string {
	return "pricewatch:lock:" + job
}

// Acquire takes the lock for job. It returns a release func, or
// ErrAlreadyRunning when another run holds the lock.
func (l *RunLock) Acquire(ctx context.Context, job string) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKey(job), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", job, err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	key := lockKey(job)
	log := l.logger.With("job", job)

	leaseCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(leaseCtx, key, token, log)
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			stop()
			wg.Wait()

			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
				log.Error("failed to release run lock", "error", err)
			}
		})
	}
	return release, nil
}

func (l *RunLock) keepAlive(ctx context.Context, key, token string, log *slog.Logger) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := l.client.Eval(ctx, extendScript, []string{key}, token, l.ttl.Milliseconds()).Int64()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Warn("failed to refresh run lock", "error", err)
		case n == 0:
			log.Error("run lock lost before release")
			return
		}
	}
}
