//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore lingoclient store backend.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - ClientInstall: one parent entity per installation (no properties)
//   - ClientKV: one child entity per store key, holding the JSON value
//
// # Namespacing
//
// Pass a namespace to isolate tenants:
//
//	backend := gae.NewBackend(client, "tenant-123", "device-1")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := lingoclient.NewStore(gae.NewBackend(client, "", installID))
package gae
