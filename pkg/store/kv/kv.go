// Package kv implements the authoritative KV token store (spec.md §4.2) on
// top of Redis, following the shape of the teacher's
// pkg/authserver/storage Redis-backed storage: a key-prefixed namespace, a
// thin client wrapper, and native per-key TTLs for expiration.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// ErrNotFound is returned when a key is absent or its secret does not match.
var ErrNotFound = errors.New("kv: token not found")

const keyPrefix = "gafaelfawr:token:"

// entry is the wire representation of token.Data. Field names are part of
// the audit contract (spec.md §4.2): consumers must preserve them exactly.
type entry struct {
	Key      string              `json:"key"`
	Secret   string              `json:"secret"`
	Username string              `json:"username"`
	Type     token.Type          `json:"type"`
	Scopes   []string            `json:"scopes"`
	Created  time.Time           `json:"created"`
	Expires  *time.Time          `json:"expires,omitempty"`
	User     token.UserMetadata  `json:"user"`
}

// Store is the Redis-backed KV token store.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps an existing Redis client. prefix defaults to "gafaelfawr:token:"
// when empty.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = keyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// StoreData writes data, setting the Redis TTL to max(expires-now, 0), or
// no TTL when expires is nil.
func (s *Store) StoreData(ctx context.Context, data token.Data) error {
	e := entry{
		Key:      data.Token.Key,
		Secret:   data.Token.Secret,
		Username: data.Username,
		Type:     data.Type,
		Scopes:   token.SortScopes(append([]string(nil), data.Scopes...)),
		Created:  data.Created,
		Expires:  data.Expires,
		User:     data.User,
	}
	blob, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding token data: %w", err)
	}

	ttl, hasTTL := token.TTL(data.Expires, time.Now())
	if hasTTL && ttl == 0 {
		// Already expired: nothing to store, a sweep will clean up the
		// relational row instead.
		return nil
	}
	if !hasTTL {
		ttl = 0 // redis.Set treats 0 as "no expiration"
	}

	if err := s.client.Set(ctx, s.redisKey(data.Token.Key), blob, ttl).Err(); err != nil {
		return fmt.Errorf("writing token to redis: %w", err)
	}
	return nil
}

// GetData looks up a token by key and verifies its secret in constant time.
// Returns ErrNotFound if the key is absent or the secret does not match.
func (s *Store) GetData(ctx context.Context, tok token.Token) (*token.Data, error) {
	data, err := s.GetDataByKey(ctx, tok.Key)
	if err != nil {
		return nil, err
	}
	if !data.Token.Matches(tok.Secret) {
		return nil, ErrNotFound
	}
	return data, nil
}

// GetDataByKey looks up a token by key only, without verifying a secret.
func (s *Store) GetDataByKey(ctx context.Context, key string) (*token.Data, error) {
	blob, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading token from redis: %w", err)
	}

	var e entry
	if err := json.Unmarshal(blob, &e); err != nil {
		return nil, fmt.Errorf("decoding token data: %w", err)
	}

	return &token.Data{
		Token:    token.Token{Key: e.Key, Secret: e.Secret},
		Username: e.Username,
		Type:     e.Type,
		Scopes:   e.Scopes,
		Created:  e.Created,
		Expires:  e.Expires,
		User:     e.User,
	}, nil
}

// Delete removes a token from the KV store. Deleting an absent key is not
// an error (matches Redis DEL semantics, and the caller cannot distinguish
// "already gone" from "never existed").
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("deleting token from redis: %w", err)
	}
	return nil
}

// DeleteAll removes every token under this store's prefix. Only the
// package's tests call it; no CLI command or request path does.
func (s *Store) DeleteAll(ctx context.Context) error {
	keys, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.redisKey(k)
	}
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("deleting all tokens from redis: %w", err)
	}
	return nil
}

// List enumerates every live token key under this store's prefix using
// Redis's cursored SCAN, so a concurrent write cannot surface a stale key
// mid-enumeration the way KEYS would.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		var batch []string
		var err error
		batch, cursor, err = s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning redis keys: %w", err)
		}
		for _, rk := range batch {
			keys = append(keys, rk[len(s.prefix):])
		}
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Client returns the underlying Redis client, for callers that need a
// differently namespaced view of the same Redis instance (pkg/oidcprovider's
// authorization-code store).
func (s *Store) Client() *redis.Client {
	return s.client
}

// SetRaw writes an arbitrary byte blob under key with the given TTL (0 means
// no expiration). Used for data that doesn't fit token.Data's shape, such as
// authorization-code entries.
func (s *Store) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("writing raw value to redis: %w", err)
	}
	return nil
}

// GetRaw reads back a blob written with SetRaw. The second return value is
// false if the key is absent.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	blob, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading raw value from redis: %w", err)
	}
	return blob, true, nil
}

// DeleteRaw removes a key written with SetRaw. Deleting an absent key is not
// an error.
func (s *Store) DeleteRaw(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting raw value from redis: %w", err)
	}
	return nil
}
