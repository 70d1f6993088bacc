// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the query result cache, backed by BadgerDB.
//
// Entries are keyed by the compiled plan's cache key, which folds in the
// context document fingerprint. A document edit changes the fingerprint,
// changes every cache key, and thereby invalidates all of that document's
// cached results eagerly. There is no explicit invalidation path and no
// lazy staleness window.
//
// The cache is the engine's only shared mutable state. BadgerDB handles
// concurrent readers and writers; a cache-miss race (two callers compiling
// and executing the same uncached plan) is tolerated by design, since
// executions are idempotent and the last writer wins.
//
// The cache is a performance optimization, not a source of truth: every
// entry is rebuildable by re-executing its plan, so losing the cache
// directory is harmless.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianInsight/services/insight/contextdoc"
)

// DefaultTTL applies when neither the context nor the caller overrides it.
const DefaultTTL = 3600 * time.Second

// ErrClosed is returned after Close.
var ErrClosed = errors.New("result cache is closed")

// Entry is one cached query result.
type Entry struct {
	// Key is the compiled plan's cache key.
	Key string `json:"key"`

	// Rows are the formatted result rows.
	Rows []contextdoc.Row `json:"rows"`

	// FormattedAt is when the rows were produced and formatted.
	FormattedAt time.Time `json:"formatted_at"`

	// TTLSeconds is the lifetime the entry was stored with.
	TTLSeconds int `json:"ttl_seconds"`
}

// Config configures the result cache.
type Config struct {
	// Path is the directory for cache files. Ignored when InMemory is set.
	Path string

	// InMemory keeps the cache off disk. Used by tests and ephemeral runs.
	InMemory bool

	// SyncWrites forces durable writes. The cache tolerates loss, so the
	// default is false.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil disables them.
	Logger *slog.Logger
}

// ResultCache is a TTL cache of executed query results.
//
// Safe for concurrent use.
type ResultCache struct {
	db *badger.DB
}

// Open creates a result cache with the given configuration.
//
// Inputs:
//
//	cfg - Cache configuration. Path is required unless InMemory is set.
//
// Outputs:
//
//	*ResultCache - Ready-to-use cache. Caller must Close it.
//	error - Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*ResultCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result cache: %w", err)
	}
	return &ResultCache{db: db}, nil
}

// OpenInMemory opens an ephemeral cache for tests.
func OpenInMemory() (*ResultCache, error) {
	return Open(Config{InMemory: true})
}

// Get returns the cached entry for a plan cache key.
//
// Outputs:
//
//	*Entry - The entry, or nil on a miss.
//	bool - Whether the key was present and unexpired.
//	error - Non-nil only on storage failure; a miss is not an error.
func (c *ResultCache) Get(key string) (*Entry, bool, error) {
	if c.db.IsClosed() {
		return nil, false, ErrClosed
	}

	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return &entry, true, nil
}

// Put stores formatted rows under a plan cache key with the given TTL.
// A non-positive ttl falls back to DefaultTTL. Badger expires the entry
// itself; Get never returns expired data.
func (c *ResultCache) Put(key string, rows []contextdoc.Row, ttl time.Duration) error {
	if c.db.IsClosed() {
		return ErrClosed
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	entry := Entry{
		Key:         key,
		Rows:        rows,
		FormattedAt: time.Now().UTC(),
		TTLSeconds:  int(ttl / time.Second),
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), val).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (c *ResultCache) Close() error {
	return c.db.Close()
}

// badgerLogger adapts slog to BadgerDB's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
