// Package redis provides a Redis-backed implementation of the storage
// interfaces. Records are stored as JSON values with per-key TTLs matching
// the record's expiry, keeping Redis itself responsible for expiring codes
// and tokens.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/authserve/oauth2-server-go/storage"
)

var _ storage.Store = (*Store)(nil)

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// Client is the Redis client instance. Takes precedence over RedisAddr.
	Client *redis.Client

	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`

	// KeyPrefix for all keys. ENV: OAUTH_STORE_KEY_PREFIX
	KeyPrefix string `env:"OAUTH_STORE_KEY_PREFIX,default=oauth2:"`
}

// Store implements storage.Store using Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a Redis-backed store.
func New(cfg Config) (*Store, error) {
	cl := cfg.Client
	if cl == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		cl = redis.NewClient(&redis.Options{Addr: addr})
		if err := cl.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "oauth2:"
	}
	return &Store{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode redis config from env: %w", err)
	}
	return New(cfg)
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(kind, id string) string {
	return s.keyPrefix + kind + ":" + id
}

func (s *Store) setJSON(ctx context.Context, key string, v any, expiresAt time.Time) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			// Already expired; don't resurrect it.
			return s.client.Del(ctx, key).Err()
		}
	}
	if err := s.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// GetClient implements storage.ClientStore.
func (s *Store) GetClient(ctx context.Context, id string) (*storage.Client, error) {
	var c storage.Client
	if err := s.getJSON(ctx, s.key("client", id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// PutClient implements storage.ClientStore.
func (s *Store) PutClient(ctx context.Context, client *storage.Client) error {
	return s.setJSON(ctx, s.key("client", client.ID), client, time.Time{})
}

// DeleteClient implements storage.ClientStore.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key("client", id)).Err()
}

// PutCode implements storage.CodeStore.
func (s *Store) PutCode(ctx context.Context, code *storage.AuthorizationCode) error {
	return s.setJSON(ctx, s.key("code", code.Code), code, code.ExpiresAt)
}

// ConsumeCode implements storage.CodeStore using an optimistic WATCH
// transaction so concurrent consumers cannot both see Used=false.
func (s *Store) ConsumeCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	key := s.key("code", code)
	var rec storage.AuthorizationCode
	var alreadyUsed bool

	txn := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return storage.ErrNotFound
			}
			return err
		}
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal code record: %w", err)
		}
		if rec.Used {
			alreadyUsed = true
			return nil
		}
		updated := rec
		updated.Used = true
		ub, err := json.Marshal(&updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, ub, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			if alreadyUsed {
				return &rec, storage.ErrCodeAlreadyUsed
			}
			return &rec, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to consume code: transaction contention")
}

// UpdateCode implements storage.CodeStore.
func (s *Store) UpdateCode(ctx context.Context, code *storage.AuthorizationCode) error {
	return s.setJSON(ctx, s.key("code", code.Code), code, code.ExpiresAt)
}

// PutAccessToken implements storage.TokenStore.
func (s *Store) PutAccessToken(ctx context.Context, token *storage.AccessToken) error {
	return s.setJSON(ctx, s.key("at", token.Token), token, token.ExpiresAt)
}

// GetAccessToken implements storage.TokenStore.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	var t storage.AccessToken
	if err := s.getJSON(ctx, s.key("at", token), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteAccessToken implements storage.TokenStore.
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key("at", token)).Err()
}

// PutRefreshToken implements storage.TokenStore.
func (s *Store) PutRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	return s.setJSON(ctx, s.key("rt", token.Token), token, token.ExpiresAt)
}

// GetRefreshToken implements storage.TokenStore.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	var t storage.RefreshToken
	if err := s.getJSON(ctx, s.key("rt", token), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateRefreshToken implements storage.TokenStore.
func (s *Store) UpdateRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	return s.setJSON(ctx, s.key("rt", token.Token), token, token.ExpiresAt)
}

// DeleteRefreshToken implements storage.TokenStore.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key("rt", token)).Err()
}

// GetConsent implements storage.ConsentStore.
func (s *Store) GetConsent(ctx context.Context, clientID, subject string) (*storage.Consent, error) {
	var c storage.Consent
	if err := s.getJSON(ctx, s.key("consent", clientID+":"+subject), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// PutConsent implements storage.ConsentStore.
func (s *Store) PutConsent(ctx context.Context, consent *storage.Consent) error {
	return s.setJSON(ctx, s.key("consent", consent.ClientID+":"+consent.Subject), consent, time.Time{})
}

// DeleteConsent implements storage.ConsentStore.
func (s *Store) DeleteConsent(ctx context.Context, clientID, subject string) error {
	return s.client.Del(ctx, s.key("consent", clientID+":"+subject)).Err()
}
