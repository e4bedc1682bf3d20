//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONValue stores a raw JSON document in a text column
type JSONValue json.RawMessage

func (v JSONValue) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return string(v), nil
}

func (v *JSONValue) Scan(value any) error {
	switch value := value.(type) {
	case nil:
		*v = nil
	case []byte:
		*v = append(JSONValue(nil), value...)
	case string:
		*v = JSONValue(value)
	default:
		return errors.New("unsupported type for JSONValue")
	}
	return nil
}

// KVModel is the GORM model for store entries
type KVModel struct {
	Namespace string    `gorm:"primaryKey;size:64"`
	Key       string    `gorm:"column:name;primaryKey;size:128"`
	Value     JSONValue `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (KVModel) TableName() string {
	return "client_kv"
}
