package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so a
// lock that expired and was taken over is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every replica pointing at the same server.
// Keys expire after TTL so a crashed holder cannot wedge an agent forever.
type Redis struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedis(opt *redis.Options, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{
		Client: redis.NewClient(opt),
		Prefix: prefix,
		TTL:    ttl,
		tokens: map[string]string{},
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (bool, error) {
	if r == nil || r.Client == nil {
		return false, errors.New("redis locker not configured")
	}
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, r.Prefix+key, token, r.TTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	r.mu.Lock()
	if r.tokens == nil {
		r.tokens = map[string]string{}
	}
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	if r == nil || r.Client == nil {
		return nil
	}
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	err := releaseScript.Run(ctx, r.Client, []string{r.Prefix + key}, token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
