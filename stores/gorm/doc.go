//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based lingoclient store backend.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and suits deployments where several client processes on one host share
// their credentials through a database.
//
// # Database Schema
//
// The package auto-migrates one table:
//   - client_kv: one row per (namespace, name) holding the JSON value
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	store := lingoclient.NewStore(gormstore.NewBackend(db, "device-1"))
package gorm
