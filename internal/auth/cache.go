package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKey = "fubabus:agent:session"

// Cache persists the session in redis so a restarted agent can resume
// without a fresh login. A nil client disables persistence entirely.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Save(ctx context.Context, s Session) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = time.Until(s.ExpiresAt)
		if ttl <= 0 {
			return errors.New("save session: already expired")
		}
	}
	if err := c.rdb.Set(ctx, sessionKey, b, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the cached session; the bool reports whether one existed.
func (c *Cache) Load(ctx context.Context) (Session, bool, error) {
	if c.rdb == nil {
		return Session{}, false, nil
	}
	b, err := c.rdb.Get(ctx, sessionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	return s, true, nil
}

func (c *Cache) Clear(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, sessionKey).Err()
}
