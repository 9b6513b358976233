package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/metrics"
)

// releaseScript deletes the key only while it still holds our token, so a
// lease that outlived its TTL cannot free somebody else's lock.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// renewScript pushes the expiry out while the key still holds our token.
var renewScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`)

const defaultRedisTTL = 30 * time.Second

// Redis is a lock shared by every instance talking to the same Redis.  The
// key expires after TTL so a crashed holder cannot wedge bookings; a live
// holder renews it every TTL/3 until Release.
type Redis struct {
	rdb     *redis.Client
	name    string
	key     string
	ttl     time.Duration
	poll    time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

type RedisOption func(*Redis)

func WithTTL(d time.Duration) RedisOption { return func(r *Redis) { r.ttl = d } }
func WithPollInterval(d time.Duration) RedisOption { return func(r *Redis) { r.poll = d } }
func WithRedisMetrics(m *metrics.Metrics) RedisOption {
	return func(r *Redis) { r.metrics = m }
}
func WithRedisLogger(l *zap.Logger) RedisOption { return func(r *Redis) { r.log = l } }

func NewRedis(rdb *redis.Client, name string, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, name: name, key: "lock:" + name, ttl: defaultRedisTTL, poll: 50 * time.Millisecond}
	for _, o := range opts {
		o(r)
	}
	if r.ttl <= 0 {
		r.ttl = defaultRedisTTL
	}
	r.log = logger.Named(r.log, "lock").With(zap.String("lock", name))
	return r
}

func (r *Redis) Name() string { return r.name }

func (r *Redis) Acquire(ctx context.Context, timeout time.Duration) (Lease, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)
	for {
		ok, err := r.rdb.SetNX(ctx, r.key, token, r.ttl).Result()
		if err != nil {
			r.metrics.ObserveLock("error")
			return nil, apperr.External("redis", err)
		}
		if ok {
			r.metrics.ObserveLock("acquired")
			le := &redisLease{r: r, token: token, stop: make(chan struct{}), done: make(chan struct{})}
			go le.keepAlive()
			return le, nil
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			r.metrics.ObserveLock("timeout")
			return nil, apperr.LockTimeout(r.name)
		}
		if wait > r.poll {
			wait = r.poll
		}
		select {
		case <-ctx.Done():
			r.metrics.ObserveLock("cancelled")
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ErrNotHeld is returned by Release when the lock expired and was taken by
// someone else before we released it.
var ErrNotHeld = errors.New("lock no longer held")

type redisLease struct {
	r     *Redis
	token string
	stop  chan struct{}
	done  chan struct{}
	lost  atomic.Bool
	once  sync.Once
	err   error
}

// keepAlive renews the key until Release or until the key is found to
// belong to someone else.  A failed renewal is retried on the next tick;
// the key only lapses if Redis stays unreachable for the rest of the TTL.
func (le *redisLease) keepAlive() {
	defer close(le.done)
	every := le.r.ttl / 3
	if every <= 0 {
		every = time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-le.stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := renewScript.Run(ctx, le.r.rdb, []string{le.r.key}, le.token, le.r.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			le.r.log.Warn("lock renewal failed", zap.Error(err))
		case n == 0:
			le.lost.Store(true)
			le.r.metrics.ObserveLock("lost")
			le.r.log.Error("lock expired while held")
			return
		}
	}
}

func (le *redisLease) Release(ctx context.Context) error {
	le.once.Do(func() {
		close(le.stop)
		<-le.done
		n, err := releaseScript.Run(ctx, le.r.rdb, []string{le.r.key}, le.token).Int()
		switch {
		case err != nil:
			le.err = err
		case n == 0:
			le.err = ErrNotHeld
		}
	})
	return le.err
}
