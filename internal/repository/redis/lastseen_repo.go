package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lastSeenPrefix = "presence:lastseen:"
	lastSeenTTL    = 90 * 24 * time.Hour
)

// LastSeenRepo keeps per-user last-seen timestamps in Redis. This is the only
// presence state that survives the process; online/away is recomputed from
// live connections.
type LastSeenRepo struct {
	rdb *redis.Client
}

func NewLastSeenRepo(rdb *redis.Client) *LastSeenRepo {
	return &LastSeenRepo{rdb: rdb}
}

func (r *LastSeenRepo) Touch(ctx context.Context, userID uuid.UUID, at time.Time) error {
	key := lastSeenPrefix + userID.String()
	return r.rdb.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), lastSeenTTL).Err()
}

// Get returns the stored timestamp, or the zero time if the user was never seen.
func (r *LastSeenRepo) Get(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	key := lastSeenPrefix + userID.String()
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, val)
}
