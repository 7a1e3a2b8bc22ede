// ABOUTME: Per-tenant exclusive lease held for the duration of a sync cycle
// ABOUTME: In-process mutex map for a single node, Redis SET NX for several
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Leaser grants at most one holder per tenant. Acquire never blocks: a held
// lease yields ErrCycleInProgress.
type Leaser interface {
	Acquire(ctx context.Context, tenantID string) (release func(), err error)
}

// LocalLeaser serializes cycles within one process.
type LocalLeaser struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLeaser() *LocalLeaser {
	return &LocalLeaser{held: make(map[string]struct{})}
}

func (l *LocalLeaser) Acquire(_ context.Context, tenantID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[tenantID]; busy {
		return nil, ErrCycleInProgress
	}
	l.held[tenantID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, tenantID)
			l.mu.Unlock()
		})
	}, nil
}

const defaultLeaseTTL = 2 * time.Minute

// Only the holder's token may extend or delete the key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLeaser shares leases between processes. The key is refreshed every
// ttl/3 while held, so a crashed holder frees the tenant after at most ttl.
type RedisLeaser struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisLeaser(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLeaser {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLeaser{client: client, ttl: ttl, prefix: "crmsync:lease:", logger: logger}
}

func (l *RedisLeaser) Acquire(ctx context.Context, tenantID string) (func(), error) {
	key := l.prefix + tenantID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease for tenant %s: %w", tenantID, err)
	}
	if !ok {
		return nil, ErrCycleInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.logger.Warn("Failed to release lease", zap.String("tenant", tenantID), zap.Error(err))
			}
		})
	}, nil
}

func (l *RedisLeaser) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Err()
			cancel()
			if err != nil {
				l.logger.Warn("Failed to extend lease", zap.String("key", key), zap.Error(err))
			}
		}
	}
}

var (
	_ Leaser = (*LocalLeaser)(nil)
	_ Leaser = (*RedisLeaser)(nil)
)
