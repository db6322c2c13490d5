// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache keeps normalized trip batches in BadgerDB.
//
// An entry is keyed by the source file's absolute path, size, and
// modification time plus the analysis window, so editing the file or
// changing the window misses the cache and reparses.
//
// A batch is stored as a manifest under the key plus fixed-size chunks of
// trips under key#NNNNNN. Each chunk is written in its own transaction so
// a month of trips stays under badger's transaction and value size limits.
// The manifest is written last; a partially written batch reads as a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianMobility/services/mobility/records"
	mbadger "github.com/AleutianAI/AleutianMobility/services/mobility/storage/badger"
)

const tripPrefix = "trips/"

// DefaultChunkTrips is the number of trips per stored chunk. A chunk of
// JSON-encoded trips is a few megabytes, below the batch limit of badger's
// default 64 MB memtable.
const DefaultChunkTrips = 10_000

var (
	// ErrNilDB is returned by New when no store is given.
	ErrNilDB = errors.New("cache requires an open database")

	// ErrIncompleteEntry is returned by Get when a manifest names a chunk
	// that is missing.
	ErrIncompleteEntry = errors.New("cached entry is missing chunks")
)

// manifest is the value stored under an entry's key.
type manifest struct {
	Trips    int                    `json:"trips"`
	Chunks   int                    `json:"chunks"`
	Stats    records.NormalizeStats `json:"stats"`
	StoredAt time.Time              `json:"stored_at"`
}

// Entry is one cached trip batch.
type Entry struct {
	Trips    []records.TripRecord   `json:"trips"`
	Stats    records.NormalizeStats `json:"stats"`
	StoredAt time.Time              `json:"stored_at"`
}

// TripLoader reads and normalizes one trip file. ingest.LoadTrips
// satisfies it.
type TripLoader func(ctx context.Context, path string, w records.Window) ([]records.TripRecord, records.NormalizeStats, error)

// Stats counts cache outcomes since creation.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is a trip batch cache over a BadgerDB store.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	db         *mbadger.DB
	ttl        time.Duration
	chunkTrips int
	logger     *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache over db. A zero ttl keeps entries until the key
// changes or Purge runs.
func New(db *mbadger.DB, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{db: db, ttl: ttl, chunkTrips: DefaultChunkTrips, logger: logger}, nil
}

// Key derives the cache key for a trip file and window.
func Key(path string, info os.FileInfo, w records.Window) []byte {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return []byte(fmt.Sprintf("%s%s|%d|%d|%d|%d", tripPrefix, abs,
		info.Size(), info.ModTime().UnixNano(), w.Start.UnixNano(), w.End.UnixNano()))
}

func chunkKey(key []byte, i int) []byte {
	return fmt.Appendf(append([]byte(nil), key...), "#%06d", i)
}

// Get returns the entry stored under key, or false when absent.
// A manifest whose chunks are not all present reports ErrIncompleteEntry.
func (c *Cache) Get(ctx context.Context, key []byte) (*Entry, bool, error) {
	var entry *Entry
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var m manifest
		if err := readJSON(txn, key, &m); err != nil {
			return err
		}
		trips := make([]records.TripRecord, 0, m.Trips)
		for i := 0; i < m.Chunks; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk []records.TripRecord
			err := readJSON(txn, chunkKey(key, i), &chunk)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: chunk %d of %d", ErrIncompleteEntry, i, m.Chunks)
			}
			if err != nil {
				return err
			}
			trips = append(trips, chunk...)
		}
		if len(trips) != m.Trips {
			return fmt.Errorf("%w: %d trips, manifest says %d", ErrIncompleteEntry, len(trips), m.Trips)
		}
		entry = &Entry{Trips: trips, Stats: m.Stats, StoredAt: m.StoredAt}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func readJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		return nil
	})
}

// Put stores e under key, chunks first and the manifest last.
func (c *Cache) Put(ctx context.Context, key []byte, e *Entry) error {
	size := c.chunkTrips
	if size <= 0 {
		size = DefaultChunkTrips
	}
	chunks := 0
	for start := 0; start < len(e.Trips); start += size {
		end := min(start+size, len(e.Trips))
		if err := c.set(ctx, chunkKey(key, chunks), e.Trips[start:end]); err != nil {
			return fmt.Errorf("chunk %d: %w", chunks, err)
		}
		chunks++
	}
	return c.set(ctx, key, manifest{
		Trips:    len(e.Trips),
		Chunks:   chunks,
		Stats:    e.Stats,
		StoredAt: e.StoredAt,
	})
}

func (c *Cache) set(ctx context.Context, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		be := badger.NewEntry(key, val)
		if c.ttl > 0 {
			be = be.WithTTL(c.ttl)
		}
		return txn.SetEntry(be)
	})
}

// LoadTrips returns the normalized trips of path, from the cache when the
// file and window are unchanged, otherwise via load.
//
// Description:
//
//	A cache read or write failure is logged and the file is loaded
//	directly; the cache never turns a readable file into an error.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	path - Trip file path.
//	w - Analysis window.
//	load - Loader used on a miss.
//
// Outputs:
//
//	[]records.TripRecord - Normalized trips.
//	records.NormalizeStats - Stats from the original load.
//	bool - True on a cache hit.
//	error - Non-nil if the file cannot be read.
func (c *Cache) LoadTrips(ctx context.Context, path string, w records.Window, load TripLoader) ([]records.TripRecord, records.NormalizeStats, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, records.NormalizeStats{}, false, fmt.Errorf("stat trips: %w", err)
	}
	key := Key(path, info, w)

	entry, ok, err := c.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("trip cache read failed", slog.String("path", path), slog.String("error", err.Error()))
	case ok:
		c.hits.Add(1)
		c.logger.Debug("trip cache hit", slog.String("path", path), slog.Int("trips", len(entry.Trips)))
		return entry.Trips, entry.Stats, true, nil
	}
	c.misses.Add(1)

	trips, stats, err := load(ctx, path, w)
	if err != nil {
		return nil, stats, false, err
	}
	if err := c.Put(ctx, key, &Entry{Trips: trips, Stats: stats, StoredAt: time.Now().UTC()}); err != nil {
		c.logger.Warn("trip cache write failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return trips, stats, false, nil
}

// Purge removes every cached trip batch.
func (c *Cache) Purge() error {
	return c.db.DropPrefix([]byte(tripPrefix))
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
