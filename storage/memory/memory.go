// Package memory provides an in-memory implementation of the storage
// interfaces using github.com/hashicorp/golang-lru/v2 with TTL support.
// Suitable for single-process deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/authserve/oauth2-server-go/storage"
)

var _ storage.Store = (*Store)(nil)

// entry wraps a stored record with its expiry. A zero expiresAt means the
// record does not expire (clients, consents).
type entry struct {
	value     any
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// Store implements storage.Store over a bounded LRU cache.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
	done  chan struct{}
}

// New creates an in-memory store bounded to maxItems records.
func New(maxItems int) (*Store, error) {
	cache, err := lru.New[string, *entry](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	s := &Store{cache: cache, done: make(chan struct{})}
	go s.sweepExpired()
	return s, nil
}

// Close stops the background sweeper.
func (s *Store) Close() error {
	close(s.done)
	return nil
}

func (s *Store) sweepExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			for _, k := range s.cache.Keys() {
				if e, ok := s.cache.Peek(k); ok && e.expired() {
					s.cache.Remove(k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Store) put(key string, value any, expiresAt time.Time) {
	s.mu.Lock()
	s.cache.Add(key, &entry{value: value, expiresAt: expiresAt})
	s.mu.Unlock()
}

// get returns the live entry value or storage.ErrNotFound.
func (s *Store) get(key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache.Get(key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	if e.expired() {
		s.cache.Remove(key)
		return nil, storage.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) delete(key string) {
	s.mu.Lock()
	s.cache.Remove(key)
	s.mu.Unlock()
}

func clientKey(id string) string           { return "client:" + id }
func codeKey(code string) string           { return "code:" + code }
func accessKey(token string) string        { return "at:" + token }
func refreshKey(token string) string       { return "rt:" + token }
func consentKey(client, sub string) string { return "consent:" + client + ":" + sub }

// GetClient implements storage.ClientStore.
func (s *Store) GetClient(_ context.Context, id string) (*storage.Client, error) {
	v, err := s.get(clientKey(id))
	if err != nil {
		return nil, err
	}
	return cloneClient(v.(*storage.Client)), nil
}

// PutClient implements storage.ClientStore.
func (s *Store) PutClient(_ context.Context, client *storage.Client) error {
	s.put(clientKey(client.ID), cloneClient(client), time.Time{})
	return nil
}

// DeleteClient implements storage.ClientStore.
func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.delete(clientKey(id))
	return nil
}

// PutCode implements storage.CodeStore.
func (s *Store) PutCode(_ context.Context, code *storage.AuthorizationCode) error {
	c := *code
	s.put(codeKey(code.Code), &c, code.ExpiresAt)
	return nil
}

// ConsumeCode implements storage.CodeStore. The lookup and the used-flag
// write happen under one lock so a code can be consumed at most once.
func (s *Store) ConsumeCode(_ context.Context, code string) (*storage.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache.Get(codeKey(code))
	if !ok || e.expired() {
		s.cache.Remove(codeKey(code))
		return nil, storage.ErrNotFound
	}
	rec := e.value.(*storage.AuthorizationCode)
	out := *rec
	if rec.Used {
		return &out, storage.ErrCodeAlreadyUsed
	}
	rec.Used = true
	return &out, nil
}

// UpdateCode implements storage.CodeStore.
func (s *Store) UpdateCode(_ context.Context, code *storage.AuthorizationCode) error {
	c := *code
	s.put(codeKey(code.Code), &c, code.ExpiresAt)
	return nil
}

// PutAccessToken implements storage.TokenStore.
func (s *Store) PutAccessToken(_ context.Context, token *storage.AccessToken) error {
	t := *token
	s.put(accessKey(token.Token), &t, token.ExpiresAt)
	return nil
}

// GetAccessToken implements storage.TokenStore.
func (s *Store) GetAccessToken(_ context.Context, token string) (*storage.AccessToken, error) {
	v, err := s.get(accessKey(token))
	if err != nil {
		return nil, err
	}
	t := *(v.(*storage.AccessToken))
	return &t, nil
}

// DeleteAccessToken implements storage.TokenStore.
func (s *Store) DeleteAccessToken(_ context.Context, token string) error {
	s.delete(accessKey(token))
	return nil
}

// PutRefreshToken implements storage.TokenStore.
func (s *Store) PutRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	t := *token
	s.put(refreshKey(token.Token), &t, token.ExpiresAt)
	return nil
}

// GetRefreshToken implements storage.TokenStore.
func (s *Store) GetRefreshToken(_ context.Context, token string) (*storage.RefreshToken, error) {
	v, err := s.get(refreshKey(token))
	if err != nil {
		return nil, err
	}
	t := *(v.(*storage.RefreshToken))
	return &t, nil
}

// UpdateRefreshToken implements storage.TokenStore.
func (s *Store) UpdateRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	t := *token
	s.put(refreshKey(token.Token), &t, token.ExpiresAt)
	return nil
}

// DeleteRefreshToken implements storage.TokenStore.
func (s *Store) DeleteRefreshToken(_ context.Context, token string) error {
	s.delete(refreshKey(token))
	return nil
}

// GetConsent implements storage.ConsentStore.
func (s *Store) GetConsent(_ context.Context, clientID, subject string) (*storage.Consent, error) {
	v, err := s.get(consentKey(clientID, subject))
	if err != nil {
		return nil, err
	}
	c := *(v.(*storage.Consent))
	return &c, nil
}

// PutConsent implements storage.ConsentStore.
func (s *Store) PutConsent(_ context.Context, consent *storage.Consent) error {
	c := *consent
	s.put(consentKey(consent.ClientID, consent.Subject), &c, time.Time{})
	return nil
}

// DeleteConsent implements storage.ConsentStore.
func (s *Store) DeleteConsent(_ context.Context, clientID, subject string) error {
	s.delete(consentKey(clientID, subject))
	return nil
}

func cloneClient(c *storage.Client) *storage.Client {
	cc := *c
	cc.SecretHash = append([]byte(nil), c.SecretHash...)
	cc.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cc.GrantTypes = append([]string(nil), c.GrantTypes...)
	cc.ResponseTypes = append([]string(nil), c.ResponseTypes...)
	cc.Scopes = append([]string(nil), c.Scopes...)
	return &cc
}
