package status

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the indicator state when no key is given.
const DefaultRedisKey = "gmbridge:status"

const redisTimeout = 2 * time.Second

// RedisStore implements Store on a Redis key.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore connects to the given Redis URL. The key is initialized to a
// starting state if it does not exist yet.
func NewRedisStore(ctx context.Context, addr, key string) (*RedisStore, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = DefaultRedisKey
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	b, _ := json.Marshal(State{Phase: PhaseStarting, Idle: true})
	_ = c.SetNX(ctx, key, b, 0).Err()
	return &RedisStore{client: c, key: key}, nil
}

// parseRedisURL parses addr into UniversalOptions supporting single, cluster,
// and sentinel deployments. Without a scheme addr is a plain host:port.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{Addrs: strings.Split(u.Host, ",")}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}

	q := u.Query()
	db := q.Get("db")
	switch u.Scheme {
	case "redis", "rediss":
		if p := strings.TrimPrefix(u.Path, "/"); p != "" {
			db = p
		}
		if u.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = strings.TrimPrefix(u.Path, "/")
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
		if u.Scheme == "rediss-sentinel" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	if db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid db: %v", err)
		}
		opts.DB = n
	}
	return opts, nil
}

// Load reads the state; read failures yield an "unknown" error state.
func (r *RedisStore) Load() State {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{Phase: PhaseStarting, Idle: true}
	}
	if err != nil {
		return State{Phase: PhaseError, LastError: "state unavailable: " + err.Error()}
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{Phase: PhaseError, LastError: "state unreadable"}
	}
	return st
}

// Store writes the state. Write errors are dropped; the next transition
// overwrites the key anyway.
func (r *RedisStore) Store(s State) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	_ = r.client.Set(ctx, r.key, b, 0).Err()
}

// Close releases the connection pool.
func (r *RedisStore) Close() error { return r.client.Close() }
