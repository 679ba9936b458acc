// Package redisstore implements the session storage contract on Redis, so
// multiple service instances share one session view. Records are Redis
// hashes with a TTL slightly past their logical expiry; a secondary key
// indexes the current refresh-token hash.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shelterly/authcore/session"
)

// ErrUnavailable wraps backend failures so callers can tell an outage from
// a miss.
var ErrUnavailable = errors.New("session backend unavailable")

// expirySlack keeps expired-but-unGCed records readable long enough for
// revocation bookkeeping before Redis reaps them.
const expirySlack = 24 * time.Hour

// swapScript performs the atomic rotation: compare the stored refresh hash
// with the provided one, and only on match overwrite hash and timestamps
// and move the hash index. Concurrent rotations of the same token see the
// compare fail and lose cleanly.
const swapScript = `
local hash = redis.call("HGET", KEYS[1], "refresh_hash")
if not hash then
  return 0
end
if hash ~= ARGV[1] then
  return 1
end
redis.call("HSET", KEYS[1], "refresh_hash", ARGV[2], "fingerprint", ARGV[3], "last_used_at", ARGV[4], "expires_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[7])
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[3], ARGV[6], "PX", ARGV[7])
return 2
`

var swapLua = redis.NewScript(swapScript)

const (
	swapStatusNotFound int64 = 0
	swapStatusMismatch int64 = 1
	swapStatusSwapped  int64 = 2
)

// SessionStore is the Redis implementation of session.Store.
type SessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewSessionStore builds a SessionStore. prefix namespaces every key.
func NewSessionStore(client redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "sess"
	}
	return &SessionStore{redis: client, prefix: prefix}
}

func (s *SessionStore) key(id string) string      { return s.prefix + ":" + id }
func (s *SessionStore) hashKey(h string) string   { return s.prefix + ":rth:" + h }
func (s *SessionStore) userKey(uid string) string { return s.prefix + ":user:" + uid }

func (s *SessionStore) FindByID(ctx context.Context, id string) (*session.Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, session.ErrNotFound
	}
	return decodeSession(id, fields)
}

func (s *SessionStore) FindByRefreshTokenHash(ctx context.Context, hash string) (*session.Session, error) {
	id, err := s.redis.Get(ctx, s.hashKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// The index can outlive a rotation by a hair; trust only the record.
	if sess.RefreshTokenHash != hash {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	ttl := time.Until(sess.ExpiresAt) + expirySlack
	if ttl <= 0 {
		ttl = time.Minute
	}

	prevHash, err := s.redis.HGet(ctx, s.key(sess.ID), "refresh_hash").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(sess.ID), encodeSession(sess))
		pipe.PExpire(ctx, s.key(sess.ID), ttl)
		if prevHash != "" && prevHash != sess.RefreshTokenHash {
			pipe.Del(ctx, s.hashKey(prevHash))
		}
		pipe.Set(ctx, s.hashKey(sess.RefreshTokenHash), sess.ID, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SessionStore) SwapRefreshHash(ctx context.Context, sessionID, providedHash, nextHash, fingerprint string, lastUsedAt, expiresAt time.Time) (*session.Session, error) {
	ttl := time.Until(expiresAt) + expirySlack

	status, err := swapLua.Run(ctx, s.redis,
		[]string{s.key(sessionID), s.hashKey(providedHash), s.hashKey(nextHash)},
		providedHash,
		nextHash,
		fingerprint,
		strconv.FormatInt(lastUsedAt.UnixMilli(), 10),
		strconv.FormatInt(expiresAt.UnixMilli(), 10),
		sessionID,
		strconv.FormatInt(ttl.Milliseconds(), 10),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch status {
	case swapStatusNotFound:
		return nil, session.ErrNotFound
	case swapStatusMismatch:
		return nil, session.ErrHashMismatch
	}
	return s.FindByID(ctx, sessionID)
}

func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) error {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, id := range ids {
		revoked, err := s.redis.HGet(ctx, s.key(id), "revoked_at").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if revoked != "" && revoked != "0" {
			continue
		}
		err = s.redis.HSet(ctx, s.key(id),
			"revoked_at", strconv.FormatInt(at.UnixMilli(), 10),
			"revoked_reason", reason,
		).Err()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (s *SessionStore) ActiveForUser(ctx context.Context, userID string, now time.Time) ([]*session.Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out []*session.Session
	for _, id := range ids {
		sess, err := s.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if sess.Usable(now) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out, nil
}

func encodeSession(sess *session.Session) map[string]interface{} {
	fields := map[string]interface{}{
		"user_id":        sess.UserID,
		"refresh_hash":   sess.RefreshTokenHash,
		"fingerprint":    sess.DeviceFingerprint,
		"created_at":     strconv.FormatInt(sess.CreatedAt.UnixMilli(), 10),
		"last_used_at":   strconv.FormatInt(sess.LastUsedAt.UnixMilli(), 10),
		"expires_at":     strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10),
		"revoked_reason": sess.RevokedReason,
	}
	if sess.RevokedAt != nil {
		fields["revoked_at"] = strconv.FormatInt(sess.RevokedAt.UnixMilli(), 10)
	} else {
		fields["revoked_at"] = "0"
	}
	return fields
}

func decodeSession(id string, fields map[string]string) (*session.Session, error) {
	createdAt, err1 := millisField(fields, "created_at")
	lastUsedAt, err2 := millisField(fields, "last_used_at")
	expiresAt, err3 := millisField(fields, "expires_at")
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("%w: corrupt session record %s", ErrUnavailable, id)
	}

	sess := &session.Session{
		ID:                id,
		UserID:            fields["user_id"],
		RefreshTokenHash:  fields["refresh_hash"],
		DeviceFingerprint: fields["fingerprint"],
		CreatedAt:         createdAt,
		LastUsedAt:        lastUsedAt,
		ExpiresAt:         expiresAt,
		RevokedReason:     fields["revoked_reason"],
	}
	if raw := fields["revoked_at"]; raw != "" && raw != "0" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt session record %s", ErrUnavailable, id)
		}
		t := time.UnixMilli(ms)
		sess.RevokedAt = &t
	}
	return sess, nil
}

func millisField(fields map[string]string, name string) (time.Time, error) {
	ms, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
