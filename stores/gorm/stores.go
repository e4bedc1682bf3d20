//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate creates or updates the client_kv table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&KVModel{})
}

// Backend implements lingoclient.Backend and lingoclient.Lister using GORM.
// Rows are scoped by namespace so several installations can share a table.
type Backend struct {
	db        *gorm.DB
	namespace string
}

func NewBackend(db *gorm.DB, namespace string) *Backend {
	return &Backend{db: db, namespace: namespace}
}

// where selects the row for key. Map conditions make GORM quote the column
// names.
func (b *Backend) where(key string) map[string]any {
	return map[string]any{"namespace": b.namespace, "name": key}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var model KVModel
	err := b.db.WithContext(ctx).Where(b.where(key)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(model.Value), true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	model := &KVModel{
		Namespace: b.namespace,
		Key:       key,
		Value:     JSONValue(value),
	}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(model).Error
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	return b.db.WithContext(ctx).
		Where(b.where(key)).
		Delete(&KVModel{}).Error
}

// Keys implements lingoclient.Lister
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.db.WithContext(ctx).Model(&KVModel{}).
		Where(map[string]any{"namespace": b.namespace}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "name"}}).
		Pluck("name", &keys).Error
	return keys, err
}
