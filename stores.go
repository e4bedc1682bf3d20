package lingoclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Store key names shared with the app's other clients.
const (
	KeyNameAccessToken   = "access_token"
	KeyNameRefreshToken  = "refresh_token"
	KeyNameExpiresAt     = "expires_at"
	KeyNameUser          = "user"
	KeyNameOpenID        = "openid"
	KeyNamePrivacyAgreed = "privacyAgreed"
	KeyNameSysInfo       = "sysInfo"
)

// Backend is durable key-value storage. Values are opaque JSON documents.
type Backend interface {
	// Get returns the stored value. found is false if the key does not exist.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// CredentialStore defines the interface for storing and retrieving credentials
type CredentialStore interface {
	// LoadCredential returns the stored credential.
	// Returns nil, nil if nothing is stored.
	LoadCredential(ctx context.Context) (*Credential, error)

	// SaveCredential replaces the stored credential.
	SaveCredential(ctx context.Context, cred *Credential) error

	// ClearCredential removes the access token, refresh token, expiry and user.
	ClearCredential(ctx context.Context) error
}

// KeyClass says where a key lives.
type KeyClass int

const (
	// Volatile keys live in memory for the lifetime of the process.
	Volatile KeyClass = iota
	// Durable keys are written through to the Backend.
	Durable
)

// KeySpec declares one key of a Schema.
type KeySpec struct {
	Class   KeyClass
	Default any
}

// Schema lists every key a Store accepts.
type Schema map[string]KeySpec

// DefaultSchema returns the keys used by the learning app.
func DefaultSchema() Schema {
	return Schema{
		KeyNameAccessToken:   {Class: Durable},
		KeyNameRefreshToken:  {Class: Durable},
		KeyNameExpiresAt:     {Class: Durable},
		KeyNameUser:          {Class: Durable},
		KeyNameOpenID:        {Class: Durable},
		KeyNamePrivacyAgreed: {Class: Durable, Default: false},
		KeyNameSysInfo:       {Class: Volatile},
	}
}

// Store is a typed key-value cache in front of a Backend.
//
// Durable keys are read from the backend the first time they are accessed and
// served from memory afterwards; there is no TTL and no invalidation, so the
// process is assumed to be the only writer of the backend.
type Store struct {
	mu      sync.Mutex
	schema  Schema
	backend Backend
	values  map[string]json.RawMessage
	loaded  map[string]bool
	logger  *slog.Logger
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithSchema replaces the default schema.
func WithSchema(schema Schema) StoreOption {
	return func(s *Store) {
		s.schema = schema
	}
}

// WithStoreLogger sets the logger used to report invalid keys.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store persisting durable keys to backend.
// A nil backend keeps everything in memory.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		schema:  DefaultSchema(),
		backend: backend,
		values:  make(map[string]json.RawMessage),
		loaded:  make(map[string]bool),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) spec(key string) (KeySpec, error) {
	spec, ok := s.schema[key]
	if !ok {
		s.logger.Warn("store key not declared in schema", "key", key)
		return spec, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return spec, nil
}

// rawLocked returns the encoded value, hydrating durable keys on first access.
// Caller must hold s.mu
func (s *Store) rawLocked(ctx context.Context, key string, spec KeySpec) (json.RawMessage, bool, error) {
	if v, ok := s.values[key]; ok {
		return v, true, nil
	}
	if spec.Class != Durable || s.loaded[key] {
		return nil, false, nil
	}

	data, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %q: %w", key, err)
	}
	s.loaded[key] = true
	if !found {
		return nil, false, nil
	}
	s.values[key] = data
	return data, true, nil
}

// Get decodes the value of key into out. If the key is unset the schema
// default is decoded instead and found is false. Undeclared keys leave out
// untouched and return ErrInvalidKey.
func (s *Store) Get(ctx context.Context, key string, out any) (found bool, err error) {
	spec, err := s.spec(key)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	data, found, err := s.rawLocked(ctx, key, spec)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	if !found {
		if spec.Default == nil {
			return false, nil
		}
		if data, err = json.Marshal(spec.Default); err != nil {
			return false, fmt.Errorf("failed to encode default for %q: %w", key, err)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return found, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return found, nil
}

// Set stores value under key, writing durable keys through to the backend.
// The in-memory view only changes once the backend write succeeded.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	spec, err := s.spec(key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.Class == Durable {
		if err := s.backend.Set(ctx, key, data); err != nil {
			return fmt.Errorf("failed to persist %q: %w", key, err)
		}
	}
	s.values[key] = data
	s.loaded[key] = true
	return nil
}

// Remove deletes key from memory and, for durable keys, from the backend.
func (s *Store) Remove(ctx context.Context, key string) error {
	spec, err := s.spec(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.Class == Durable {
		if err := s.backend.Remove(ctx, key); err != nil {
			return fmt.Errorf("failed to remove %q: %w", key, err)
		}
	}
	delete(s.values, key)
	s.loaded[key] = true
	return nil
}

// Keys returns the declared keys that currently hold a value.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for key := range s.values {
		seen[key] = true
	}

	if lister, ok := s.backend.(Lister); ok {
		keys, err := lister.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			spec, declared := s.schema[key]
			if !declared || spec.Class != Durable {
				continue
			}
			// Removed in this process but not yet visible to the lister.
			if s.loaded[key] {
				if _, ok := s.values[key]; !ok {
					continue
				}
			}
			seen[key] = true
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// LoadCredential implements CredentialStore
func (s *Store) LoadCredential(ctx context.Context) (*Credential, error) {
	cred := &Credential{}
	var errs []error

	access, err := s.Get(ctx, KeyNameAccessToken, &cred.AccessToken)
	errs = append(errs, err)
	refresh, err := s.Get(ctx, KeyNameRefreshToken, &cred.RefreshToken)
	errs = append(errs, err)
	_, err = s.Get(ctx, KeyNameExpiresAt, &cred.ExpiresAt)
	errs = append(errs, err)
	user, err := s.Get(ctx, KeyNameUser, &cred.User)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if !access && !refresh && !user {
		return nil, nil
	}
	return cred, nil
}

// SaveCredential implements CredentialStore
func (s *Store) SaveCredential(ctx context.Context, cred *Credential) error {
	if cred == nil {
		return s.ClearCredential(ctx)
	}
	if err := KeyAccessToken.Set(ctx, s, cred.AccessToken); err != nil {
		return err
	}
	if cred.RefreshToken != "" {
		if err := KeyRefreshToken.Set(ctx, s, cred.RefreshToken); err != nil {
			return err
		}
	} else if err := KeyRefreshToken.Remove(ctx, s); err != nil {
		return err
	}
	if err := KeyExpiresAt.Set(ctx, s, cred.ExpiresAt); err != nil {
		return err
	}
	if cred.User != nil {
		if err := KeyUser.Set(ctx, s, cred.User); err != nil {
			return err
		}
		if cred.User.OpenID != "" {
			return KeyOpenID.Set(ctx, s, cred.User.OpenID)
		}
		return nil
	}
	return KeyUser.Remove(ctx, s)
}

// ClearCredential implements CredentialStore. Every field is attempted even
// if an earlier removal fails.
func (s *Store) ClearCredential(ctx context.Context) error {
	return errors.Join(
		KeyAccessToken.Remove(ctx, s),
		KeyRefreshToken.Remove(ctx, s),
		KeyExpiresAt.Remove(ctx, s),
		KeyUser.Remove(ctx, s),
	)
}

// Key is a typed handle for one store key.
type Key[T any] struct {
	Name string
}

// Typed handles for the default schema.
var (
	KeyAccessToken   = Key[string]{Name: KeyNameAccessToken}
	KeyRefreshToken  = Key[string]{Name: KeyNameRefreshToken}
	KeyExpiresAt     = Key[time.Time]{Name: KeyNameExpiresAt}
	KeyUser          = Key[*User]{Name: KeyNameUser}
	KeyOpenID        = Key[string]{Name: KeyNameOpenID}
	KeyPrivacyAgreed = Key[bool]{Name: KeyNamePrivacyAgreed}
	KeySysInfo       = Key[map[string]any]{Name: KeyNameSysInfo}
)

// Get returns the value or the schema default.
func (k Key[T]) Get(ctx context.Context, s *Store) (T, error) {
	var v T
	_, err := s.Get(ctx, k.Name, &v)
	return v, err
}

// Set stores v.
func (k Key[T]) Set(ctx context.Context, s *Store, v T) error {
	return s.Set(ctx, k.Name, v)
}

// Remove deletes the key.
func (k Key[T]) Remove(ctx context.Context, s *Store) error {
	return s.Remove(ctx, k.Name)
}

// MemoryBackend is a Backend that lives only as long as the process.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// Keys implements Lister
func (m *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
