package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// maxRevokeAttempts bounds optimistic-lock retries when another client
// touches the same session key mid-revoke.
const maxRevokeAttempts = 5

const blacklistMarker = "revoked"

// RedisSessionStore is the shared SessionStore used by every API instance.
//
// Index membership only changes through SADD/SREM inside MULTI. Revoke
// WATCHes the session key so concurrent revokers of one token cannot both
// succeed.
type RedisSessionStore struct {
	rdb goredis.UniversalClient
}

// NewRedisSessionStore wraps an existing client. The client's dial, read
// and write timeouts bound every store call.
func NewRedisSessionStore(rdb goredis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

// Put implements SessionStore.
func (s *RedisSessionStore) Put(ctx context.Context, rec SessionRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	// An absolute expiry earlier than now+ttl wins, so the key dies with
	// the signed token rather than a little after it.
	expireAt := time.Time{}
	if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(time.Now().Add(ttl)) {
		expireAt = rec.ExpiresAt
	}

	indexKey := userSessionsKey(rec.UserID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		// Every session shares the refresh TTL, so the newest one
		// outlives the rest and the index follows it.
		if expireAt.IsZero() {
			pipe.Set(ctx, sessionKey(rec.UserID, rec.TokenID), data, ttl)
			pipe.SAdd(ctx, indexKey, rec.TokenID)
			pipe.Expire(ctx, indexKey, ttl)
		} else {
			pipe.SetArgs(ctx, sessionKey(rec.UserID, rec.TokenID), data, goredis.SetArgs{ExpireAt: expireAt})
			pipe.SAdd(ctx, indexKey, rec.TokenID)
			pipe.ExpireAt(ctx, indexKey, expireAt)
		}
		return nil
	})
	if err != nil {
		return storeError("put", err)
	}
	return nil
}

// Get implements SessionStore.
func (s *RedisSessionStore) Get(ctx context.Context, userID, tokenID string) (SessionRecord, bool, error) {
	data, err := s.rdb.Get(ctx, sessionKey(userID, tokenID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, storeError("get", err)
	}

	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return SessionRecord{}, false, fmt.Errorf("decoding session %s: %w", sessionKey(userID, tokenID), err)
	}
	return rec, true, nil
}

// IsValid implements SessionStore.
func (s *RedisSessionStore) IsValid(ctx context.Context, userID, tokenID string) (bool, error) {
	var live, dead *goredis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		live = pipe.Exists(ctx, sessionKey(userID, tokenID))
		dead = pipe.Exists(ctx, blacklistKey(userID, tokenID))
		return nil
	})
	if err != nil {
		return false, storeError("is_valid", err)
	}
	return live.Val() == 1 && dead.Val() == 0, nil
}

// Revoke implements SessionStore. The blacklist entry lives as long as the
// session would have; a session without a TTL gets DefaultSessionTTL.
func (s *RedisSessionStore) Revoke(ctx context.Context, userID, tokenID string) (bool, error) {
	key := sessionKey(userID, tokenID)

	for range maxRevokeAttempts {
		var revoked bool
		err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			revoked = false

			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				// Drop a stale index member left by TTL expiry.
				return tx.SRem(ctx, userSessionsKey(userID), tokenID).Err()
			}

			ttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = DefaultSessionTTL
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, blacklistKey(userID, tokenID), blacklistMarker, ttl)
				pipe.Del(ctx, key)
				pipe.SRem(ctx, userSessionsKey(userID), tokenID)
				return nil
			})
			if err != nil {
				return err
			}
			revoked = true
			return nil
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, storeError("revoke", err)
		}
		return revoked, nil
	}

	return false, storeError("revoke", fmt.Errorf("%s still contended after %d attempts", key, maxRevokeAttempts))
}

// RevokeAll implements SessionStore.
//
// The index key is never deleted wholesale: each Revoke SREMs its member
// and Redis drops the set once empty. A login that lands mid-call keeps
// its index entry instead of being orphaned.
func (s *RedisSessionStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	tokenIDs, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, storeError("revoke_all", err)
	}

	count := 0
	for _, id := range tokenIDs {
		ok, err := s.Revoke(ctx, userID, id)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// List implements SessionStore.
func (s *RedisSessionStore) List(ctx context.Context, userID string) ([]SessionRecord, error) {
	tokenIDs, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, storeError("list", err)
	}
	if len(tokenIDs) == 0 {
		return []SessionRecord{}, nil
	}

	cmds := make([]*goredis.StringCmd, len(tokenIDs))
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range tokenIDs {
			cmds[i] = pipe.Get(ctx, sessionKey(userID, id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, storeError("list", err)
	}

	records := make([]SessionRecord, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue // expired between SMEMBERS and GET
		}
		var rec SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b SessionRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return records, nil
}
