// Package session adapts any scs session store (github.com/alexedwards/scs/v2)
// into a lingoclient store backend, so the client can reuse the memstore,
// Redis, SQL or Badger stores that scs already provides.
package session

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
)

// DefaultLifetime is how long an entry lives in the session store when no
// lifetime is configured.
const DefaultLifetime = 30 * 24 * time.Hour

// Backend implements lingoclient.Backend on top of an scs.Store. Each store
// key becomes one scs token: prefix+key.
type Backend struct {
	store    scs.Store
	prefix   string
	lifetime time.Duration
	now      func() time.Time
}

// Option configures a Backend
type Option func(*Backend)

// WithPrefix namespaces tokens, e.g. per installation.
func WithPrefix(prefix string) Option {
	return func(b *Backend) { b.prefix = prefix }
}

// WithLifetime sets the expiry passed to Commit. Entries vanish from the
// underlying store once it passes.
func WithLifetime(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.lifetime = d
		}
	}
}

func NewBackend(store scs.Store, opts ...Option) *Backend {
	b := &Backend{
		store:    store,
		prefix:   "lingo:",
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) token(key string) string {
	return b.prefix + key
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if cs, ok := b.store.(scs.CtxStore); ok {
		return cs.FindCtx(ctx, b.token(key))
	}
	return b.store.Find(b.token(key))
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	expiry := b.now().Add(b.lifetime)
	if cs, ok := b.store.(scs.CtxStore); ok {
		return cs.CommitCtx(ctx, b.token(key), value, expiry)
	}
	return b.store.Commit(b.token(key), value, expiry)
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	if cs, ok := b.store.(scs.CtxStore); ok {
		return cs.DeleteCtx(ctx, b.token(key))
	}
	return b.store.Delete(b.token(key))
}

// Keys implements lingoclient.Lister when the underlying store is iterable.
// Other stores report no keys.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	var all map[string][]byte
	var err error
	switch s := b.store.(type) {
	case scs.IterableCtxStore:
		all, err = s.AllCtx(ctx)
	case scs.IterableStore:
		all, err = s.All()
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(all))
	for token := range all {
		if key, ok := strings.CutPrefix(token, b.prefix); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
