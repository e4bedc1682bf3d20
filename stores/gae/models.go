//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
)

// Kind constants for Datastore entities
const (
	KindInstall = "ClientInstall"
	KindKV      = "ClientKV"
)

// KVEntity is the Datastore entity for one store key
type KVEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Value     []byte         `datastore:"value,noindex"` // JSON encoded
	UpdatedAt time.Time      `datastore:"updated_at"`
}
