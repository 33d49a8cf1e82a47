package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock implements ports.Lock on top of Redis SET NX (acquire) and a
// compare-and-delete Lua script (release), the standard single-instance
// Redis mutual-exclusion recipe: a token identifies the holder so a
// slow caller can never release a lock someone else has since acquired.
type Lock struct {
	client *Client
	prefix string
}

func NewLock(client *Client, prefix string) *Lock {
	if prefix == "" {
		prefix = "jobtrail:lock:"
	}
	return &Lock{client: client, prefix: prefix}
}

func (l *Lock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+name, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (l *Lock) Release(ctx context.Context, name, token string) error {
	return releaseScript.Run(ctx, l.client.Client, []string{l.prefix + name}, token).Err()
}
