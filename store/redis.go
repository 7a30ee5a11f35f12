package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps the table in a single hash, one field per Key. Saves
// build a staging hash and RENAME it over the live one.
type RedisStore struct {
	client  redis.Cmdable
	key     string
	timeout time.Duration
}

// NewRedisStore wraps an existing client. timeout bounds each call; zero
// means the caller's context decides.
func NewRedisStore(client redis.Cmdable, key string, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, timeout: timeout}
}

func (r *RedisStore) stagingKey() string { return r.key + ":staging" }

func (r *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RedisStore) Load(ctx context.Context) (map[Key]float64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	out := make(map[Key]float64, len(fields))
	for f, raw := range fields {
		k, err := ParseKey(f)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrCorrupt, f, err)
		}
		out[k] = v
	}
	return out, nil
}

func (r *RedisStore) Save(ctx context.Context, values map[Key]float64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if len(values) == 0 {
		if err := r.client.Del(ctx, r.key).Err(); err != nil {
			return fmt.Errorf("del %s: %w", r.key, err)
		}
		return nil
	}
	args, err := hashArgs(values)
	if err != nil {
		return err
	}
	staging := r.stagingKey()
	if err := r.client.Del(ctx, staging).Err(); err != nil {
		return fmt.Errorf("del %s: %w", staging, err)
	}
	if err := r.client.HSet(ctx, staging, args...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", staging, err)
	}
	if err := r.client.Rename(ctx, staging, r.key).Err(); err != nil {
		return fmt.Errorf("rename %s: %w", staging, err)
	}
	return nil
}

// Close closes the client when it owns one.
func (r *RedisStore) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// hashArgs flattens values into field/value pairs ordered by field.
func hashArgs(values map[Key]float64) ([]interface{}, error) {
	fields := make([]string, 0, len(values))
	byField := make(map[string]float64, len(values))
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value for %s is not finite", k)
		}
		f := k.String()
		fields = append(fields, f)
		byField[f] = v
	}
	sort.Strings(fields)
	args := make([]interface{}, 0, 2*len(fields))
	for _, f := range fields {
		args = append(args, f, strconv.FormatFloat(byField[f], 'g', -1, 64))
	}
	return args, nil
}
