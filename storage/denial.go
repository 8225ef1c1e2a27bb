package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"Examiner/lib/sl"
	"Examiner/metrics"
)

// DefaultDenyTTL is how long a user waits between two assessments.
const DefaultDenyTTL = 300 * time.Second

// DenialStore keeps short-lived "denied" flags in Redis. Every failure to
// reach Redis is logged and treated as "not denied".
type DenialStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewDenialStore(client *redis.Client, ttl time.Duration, log *slog.Logger) *DenialStore {
	if ttl <= 0 {
		ttl = DefaultDenyTTL
	}
	return &DenialStore{
		client: client,
		ttl:    ttl,
		log:    log.With(sl.Module("denial-store")),
	}
}

// ConnectRedis builds a client and checks that the server answers. The
// client is returned even when the ping fails so callers may run fail-open.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return client, nil
}

func deniedKey(userId int64) string {
	return fmt.Sprintf("denied_%d", userId)
}

func (d *DenialStore) IsDenied(ctx context.Context, userId int64) bool {
	n, err := d.client.Exists(ctx, deniedKey(userId)).Result()
	if err != nil {
		metrics.StoreErrors.WithLabelValues(metrics.StoreRedis).Inc()
		d.log.With(sl.User(userId)).Error("checking denied user", sl.Err(err))
		return false
	}
	return n > 0
}

func (d *DenialStore) MarkDenied(ctx context.Context, userId int64) {
	if err := d.client.Set(ctx, deniedKey(userId), 1, d.ttl).Err(); err != nil {
		metrics.StoreErrors.WithLabelValues(metrics.StoreRedis).Inc()
		d.log.With(sl.User(userId)).Error("storing denied record", sl.Err(err))
		return
	}
	d.log.With(sl.User(userId), slog.Duration("ttl", d.ttl)).Info("stored denied record")
}

func (d *DenialStore) Close() error {
	return d.client.Close()
}
