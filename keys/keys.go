// Package keys owns the authorization server's signing key material: loading
// an RSA private key from PEM, deriving a stable key ID, projecting the
// public half as a JWK Set document, and hot-reloading the key file when it
// changes on disk.
package keys

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-jose/go-jose/v4"
)

// Source provides the current signing key and its public JWK Set. Safe for
// concurrent use; Reload swaps the key atomically under the lock.
type Source struct {
	mu   sync.RWMutex
	key  *rsa.PrivateKey
	kid  string
	path string
	log  *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the slog logger used for reload events. If not provided,
// logs go to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.log = l }
}

// NewFromFile loads an RSA private key from a PEM file (PKCS#1 or PKCS#8).
func NewFromFile(path string, opts ...Option) (*Source, error) {
	s := &Source{path: path, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Generate creates a Source with an ephemeral 2048-bit key. Intended for
// tests and local development; production deployments load from a file.
func Generate(opts ...Option) (*Source, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	s := &Source{log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.set(key); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the key file. No-op error if the Source was generated.
func (s *Source) Reload() error {
	if s.path == "" {
		return errors.New("keys: source has no backing file")
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read key file %q: %w", s.path, err)
	}
	key, err := parsePEM(b)
	if err != nil {
		return fmt.Errorf("invalid key file %q: %w", s.path, err)
	}
	return s.set(key)
}

func (s *Source) set(key *rsa.PrivateKey) error {
	kid, err := thumbprint(&key.PublicKey)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.key = key
	s.kid = kid
	s.mu.Unlock()
	return nil
}

// Signer returns the current private key and its key ID for JWT signing.
func (s *Source) Signer() (*rsa.PrivateKey, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.kid
}

// JWKS returns the public JWK Set document.
func (s *Source) JWKS() jose.JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &s.key.PublicKey,
		KeyID:     s.kid,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
}

// JWKSJSON returns the serialized JWK Set.
func (s *Source) JWKSJSON() ([]byte, error) {
	set := s.JWKS()
	return json.Marshal(set)
}

// Watch reloads the key whenever the backing file is rewritten. Blocks until
// ctx is canceled; typically run on its own goroutine.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("keys: source has no backing file")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors and secret mounts replace the file, which
	// drops a watch registered on the file itself.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch key directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.log.Error("keys.reload.fail", slog.String("err", err.Error()))
				continue
			}
			_, kid := s.Signer()
			s.log.Info("keys.reload.ok", slog.String("kid", kid))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("keys.watch.err", slog.String("err", err.Error()))
		}
	}
}

func parsePEM(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not a PKCS#1 or PKCS#8 private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an RSA private key")
	}
	return key, nil
}

// thumbprint derives the RFC 7638 JWK thumbprint used as the key ID.
func thumbprint(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	tp, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}
