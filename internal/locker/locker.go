package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/models"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dex_archive_lock_"

var ErrLocked = errors.New("lock is held by another archive")

type LockerOption func(l *RedisLocker)

func WithLogger(logger *slog.Logger) LockerOption {
	return func(l *RedisLocker) {
		l.logger = logger
	}
}

func WithTTL(ttl time.Duration) LockerOption {
	return func(l *RedisLocker) {
		l.ttl = ttl
	}
}

// RedisLocker hands out single attempt locks, one per source blob.
type RedisLocker struct {
	rs     *redsync.Redsync
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(client *redis.Client, lockerOptions ...LockerOption) *RedisLocker {
	locker := &RedisLocker{
		rs:    redsync.New(goredis.NewPool(client)),
		redis: client,
	}
	for _, option := range lockerOptions {
		option(locker)
	}
	//defaults
	if locker.logger == nil {
		locker.logger = slog.Default()
	}
	if locker.ttl <= 0 {
		locker.ttl = 2 * time.Minute
	}
	return locker
}

func NewFromURI(uri string, lockerOptions ...LockerOption) (*RedisLocker, error) {
	connection, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(connection)
	if res := client.Ping(context.Background()); res.Err() != nil {
		return nil, res.Err()
	}
	return New(client, lockerOptions...), nil
} // .NewFromURI

// TryLock makes one attempt to take the lock for key. A lock held elsewhere
// is reported as ErrLocked.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(keyPrefix+key, redsync.WithExpiry(l.ttl), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, key)
		}
		return nil, err
	}
	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			l.logger.Error("failed to release archive lock", "key", key, "error", err)
		}
	}, nil
}

func (l *RedisLocker) Health(ctx context.Context) models.ServiceHealthResp {
	var shr models.ServiceHealthResp
	shr.Service = models.REDIS_LOCKER

	// Ping redis service
	if res := l.redis.Ping(ctx); res.Err() != nil {
		return shr.BuildErrorResponse(res.Err())
	}

	// all good
	shr.Status = models.STATUS_UP
	shr.HealthIssue = models.HEALTH_ISSUE_NONE
	return shr
}

func (l *RedisLocker) Close() error {
	return l.redis.Close()
}
