// Package fs provides a file system-based store backend for lingoclient.
//
// All keys live in one JSON file, rewritten atomically on every change. When
// a secret is configured the file is sealed with NaCl secretbox.
package fs

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// DefaultFileName is used inside the config directory when no path is given.
const DefaultFileName = "store.json"

const nonceSize = 24

var sealedMagic = []byte("LCS1")

// ErrDecrypt means the file is sealed with a different secret or corrupt.
var ErrDecrypt = errors.New("failed to decrypt store file")

// Backend stores values in a single JSON file
type Backend struct {
	mu    sync.RWMutex
	path  string
	items map[string]json.RawMessage
	key   *[32]byte
}

// storeFile is the JSON structure stored on disk
type storeFile struct {
	Values map[string]json.RawMessage `json:"values"`
}

// Option configures a Backend
type Option func(*Backend) error

// WithSecret seals the file with a key derived from secret.
func WithSecret(secret string) Option {
	return func(b *Backend) error {
		if secret == "" {
			return nil
		}
		key, err := deriveKey(secret)
		if err != nil {
			return err
		}
		b.key = key
		return nil
	}
}

func deriveKey(secret string) (*[32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("lingoclient fs store"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}
	return &key, nil
}

// DefaultPath returns ~/.config/<appName>/store.json
func DefaultPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine config directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	if appName == "" {
		appName = "lingo"
	}
	return filepath.Join(configDir, appName, DefaultFileName), nil
}

// NewBackend opens the store file at path, which need not exist yet.
// If path is empty, DefaultPath("lingo") is used.
func NewBackend(path string, opts ...Option) (*Backend, error) {
	if path == "" {
		p, err := DefaultPath("")
		if err != nil {
			return nil, err
		}
		path = p
	}

	b := &Backend{
		path:  path,
		items: make(map[string]json.RawMessage),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	// Load existing values if file exists
	if err := b.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return b, nil
}

// load reads values from disk
func (b *Backend) load() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return err
	}

	if b.key != nil {
		if data, err = b.open(data); err != nil {
			return err
		}
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	if file.Values != nil {
		b.items = file.Values
	}
	return nil
}

func (b *Backend) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := append([]byte(nil), sealedMagic...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, b.key), nil
}

func (b *Backend) open(data []byte) ([]byte, error) {
	if len(data) < len(sealedMagic)+nonceSize || string(data[:len(sealedMagic)]) != string(sealedMagic) {
		return nil, fmt.Errorf("%w: %s is not a sealed store", ErrDecrypt, b.path)
	}
	data = data[len(sealedMagic):]

	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, b.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// saveLocked persists all values. Caller must hold b.mu
func (b *Backend) saveLocked() error {
	// Ensure directory exists with restricted permissions
	if err := os.MkdirAll(filepath.Dir(b.path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(storeFile{Values: b.items}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize store: %w", err)
	}
	if b.key != nil {
		if data, err = b.seal(data); err != nil {
			return err
		}
	}
	return writeAtomicFile(b.path, data)
}

// Get implements lingoclient.Backend
func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements lingoclient.Backend. The file is rewritten before Set returns.
func (b *Backend) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev, existed := b.items[key]
	b.items[key] = append(json.RawMessage(nil), value...)
	if err := b.saveLocked(); err != nil {
		if existed {
			b.items[key] = prev
		} else {
			delete(b.items, key)
		}
		return err
	}
	return nil
}

// Remove implements lingoclient.Backend
func (b *Backend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, existed := b.items[key]
	if !existed {
		return nil
	}
	delete(b.items, key)
	if err := b.saveLocked(); err != nil {
		b.items[key] = prev
		return err
	}
	return nil
}

// Keys implements lingoclient.Lister
func (b *Backend) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.items))
	for k := range b.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Path returns the path to the store file
func (b *Backend) Path() string {
	return b.path
}

// writeAtomicFile writes data to a file atomically by writing to a temp file first
func writeAtomicFile(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Owner read/write only
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
