//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"
)

// Backend implements lingoclient.Backend and lingoclient.Lister using
// Google Cloud Datastore. All keys of one installation share an ancestor,
// so listing them is a strongly consistent ancestor query.
type Backend struct {
	client    *datastore.Client
	namespace string
	install   string
}

// NewBackend creates a Datastore-backed store backend for installation install
func NewBackend(client *datastore.Client, namespace, install string) *Backend {
	return &Backend{
		client:    client,
		namespace: namespace,
		install:   install,
	}
}

func (b *Backend) parentKey() *datastore.Key {
	key := datastore.NameKey(KindInstall, b.install, nil)
	key.Namespace = b.namespace
	return key
}

func (b *Backend) namespacedKey(name string) *datastore.Key {
	key := datastore.NameKey(KindKV, name, b.parentKey())
	key.Namespace = b.namespace
	return key
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entity KVEntity
	if err := b.client.Get(ctx, b.namespacedKey(key), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entity.Value, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	k := b.namespacedKey(key)
	entity := &KVEntity{
		Key:       k,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	_, err := b.client.Put(ctx, k, entity)
	return err
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	return b.client.Delete(ctx, b.namespacedKey(key))
}

// Keys implements lingoclient.Lister
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	query := datastore.NewQuery(KindKV).Ancestor(b.parentKey()).KeysOnly()
	if b.namespace != "" {
		query = query.Namespace(b.namespace)
	}

	var keys []string
	it := b.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, key.Name)
	}
	return keys, nil
}
