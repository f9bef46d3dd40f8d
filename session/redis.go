package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every failure talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultRedisPrefix namespaces mirrored session blobs.
const DefaultRedisPrefix = "as"

const scanBatch = 1000

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
  local count = tonumber(redis.call("GET", KEYS[3]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[3])
  elseif count == 1 then
    redis.call("DEL", KEYS[3])
  end
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisMirror is a write-through durable copy of the session table. It is
// written on create and delete and read only by Restore at startup; the
// in-process Store stays authoritative.
//
// Keys:
//
//	<prefix>:<token>    JSON session blob, TTL = remaining lifetime
//	au:<identity>       set of the identity's tokens
//	asc:count           number of mirrored sessions
type RedisMirror struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisMirror returns a mirror over client. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisMirror(client redis.UniversalClient, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisMirror{redis: client, prefix: prefix}
}

func (m *RedisMirror) key(token string) string {
	return m.prefix + ":" + token
}

func (m *RedisMirror) userKey(identity string) string {
	return "au:" + identity
}

func (m *RedisMirror) countKey() string {
	return "asc:count"
}

// Save writes sess with ttl and indexes it under its identity.
//
//	Performance: 1 MULTI/EXEC with 4 commands.
func (m *RedisMirror) Save(ctx context.Context, sess Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	userKey := m.userKey(sess.Identity)
	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.key(sess.Token), data, ttl)
		pipe.SAdd(ctx, userKey, sess.Token)
		pipe.Expire(ctx, userKey, ttl)
		pipe.Incr(ctx, m.countKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes token and its index entry. Deleting a missing session is
// a no-op and never drives the counter negative.
//
//	Performance: 1 Lua EVALSHA.
func (m *RedisMirror) Delete(ctx context.Context, identity, token string) error {
	keys := []string{m.key(token), m.userKey(identity), m.countKey()}
	if _, err := deleteSessionLua.Run(ctx, m.redis, keys, token).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get fetches one mirrored session. A missing key returns redis.Nil.
func (m *RedisMirror) Get(ctx context.Context, token string) (Session, error) {
	data, err := m.redis.Get(ctx, m.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// LoadAll scans every mirrored session. Corrupt blobs are skipped. This is
// an O(n) startup operation and must not be used on request paths.
func (m *RedisMirror) LoadAll(ctx context.Context) ([]Session, error) {
	pattern := m.prefix + ":*"
	var (
		cursor uint64
		out    []Session
	)

	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		if len(keys) > 0 {
			sessions, err := m.getMany(ctx, keys)
			if err != nil {
				return nil, err
			}
			out = append(out, sessions...)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return out, nil
}

func (m *RedisMirror) getMany(ctx context.Context, keys []string) ([]Session, error) {
	pipe := m.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]Session, 0, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil || sess.Token != strings.TrimPrefix(keys[i], m.prefix+":") {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// ActiveSessionCount returns the number of indexed tokens for identity.
func (m *RedisMirror) ActiveSessionCount(ctx context.Context, identity string) (int, error) {
	n, err := m.redis.SCard(ctx, m.userKey(identity)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Count returns the mirrored session counter.
func (m *RedisMirror) Count(ctx context.Context) (int, error) {
	n, err := m.redis.Get(ctx, m.countKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (m *RedisMirror) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := m.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
