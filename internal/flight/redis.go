package flight

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartclips-editor/internal/config"
)

const defaultKeyPrefix = "smartclips:commit:"

// RedisGuard is a Guard shared by every replica behind one Redis. Holds
// expire after the lock TTL so a crashed replica cannot wedge a session.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owner  string
}

// NewRedisGuard connects to Redis. owner identifies this replica's holds.
func NewRedisGuard(cfg config.RedisConfig, owner string) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisGuardWithClient(client, cfg.LockTTL, owner), nil
}

// NewRedisGuardWithClient wraps an existing client
func NewRedisGuardWithClient(client *redis.Client, ttl time.Duration, owner string) *RedisGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisGuard{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
		owner:  owner,
	}
}

// TryAcquire sets the key only if it does not exist
func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, g.owner, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire commit lock: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the key only while this owner still holds it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release drops the hold if this replica still owns it
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, g.client, []string{g.prefix + key}, g.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release commit lock: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
