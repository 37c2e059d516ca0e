// Copyright (C) 2025 DiffGraph Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workspace provides the durable scratch store for a pipeline run.
//
// It is backed by BadgerDB for low-latency embedded storage. Every chunk,
// extraction result, and staged batch is written here before the merge
// phase, so an interrupted run can resume without repeating completed
// provider calls. The store for a run is deleted on success and retained
// on failure.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/diffgraph/diffgraph/internal/chunker"
	"github.com/diffgraph/diffgraph/internal/graph"
	"github.com/diffgraph/diffgraph/internal/tools"
)

// Config holds configuration for a Workspace.
type Config struct {
	// Dir is the directory for the BadgerDB files.
	// Ignored when InMemory is true.
	Dir string

	// InMemory enables in-memory mode. Useful for testing; resume is
	// meaningless in this mode.
	InMemory bool

	// RunID namespaces all keys, so several runs can share a directory.
	RunID string

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil, BadgerDB
	// logging is disabled.
	Logger *slog.Logger
}

// Workspace is the durable intermediate store for one run.
//
// # Thread Safety
//
// All methods are safe for concurrent use; BadgerDB transactions provide
// the isolation.
type Workspace struct {
	db       *badger.DB
	runID    string
	dir      string
	inMemory bool
	log      *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
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
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (or creates) the workspace store for a run.
func Open(cfg Config) (*Workspace, error) {
	if cfg.RunID == "" {
		return nil, errors.New("run id is required")
	}
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("dir is required for a persistent workspace")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create workspace directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open workspace database: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Workspace{db: db, runID: cfg.RunID, dir: cfg.Dir, inMemory: cfg.InMemory, log: log}, nil
}

// RunID returns the run this workspace belongs to.
func (w *Workspace) RunID() string { return w.runID }

// Dir returns the backing directory, empty for in-memory workspaces.
func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) key(kind, rest string) []byte {
	return []byte("run/" + w.runID + "/" + kind + "/" + rest)
}

func (w *Workspace) prefix(kind string) []byte {
	return []byte("run/" + w.runID + "/" + kind + "/")
}

// storedChunk is the persisted form of a chunk plus its processing status.
type storedChunk struct {
	Chunk  chunker.Chunk  `json:"chunk"`
	Status chunker.Status `json:"status"`
}

// PutChunks persists the chunk set for a file.
//
// # Description
//
// Chunks already present are left untouched, so resuming a run keeps the
// done/failed status recorded by the previous attempt.
func (w *Workspace) PutChunks(chunks []chunker.Chunk) error {
	return w.db.Update(func(txn *badger.Txn) error {
		for _, c := range chunks {
			k := w.key("chunk", c.ID)
			if _, err := txn.Get(k); err == nil {
				continue
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			sc := storedChunk{Chunk: c, Status: chunker.StatusPending}
			buf, err := json.Marshal(sc)
			if err != nil {
				return fmt.Errorf("encoding chunk %s: %w", c.ID, err)
			}
			if err := txn.Set(k, buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetChunkStatus records the terminal state of a chunk.
func (w *Workspace) SetChunkStatus(chunkID string, status chunker.Status) error {
	return w.db.Update(func(txn *badger.Txn) error {
		k := w.key("chunk", chunkID)
		item, err := txn.Get(k)
		if err != nil {
			return fmt.Errorf("chunk %s not found: %w", chunkID, err)
		}
		var sc storedChunk
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sc)
		}); err != nil {
			return err
		}
		sc.Status = status
		buf, err := json.Marshal(sc)
		if err != nil {
			return err
		}
		return txn.Set(k, buf)
	})
}

// Chunks returns all chunks for a file, sorted by index.
func (w *Workspace) Chunks(filePath string) ([]chunker.Chunk, error) {
	return w.chunksWhere(filePath, func(chunker.Status) bool { return true })
}

// PendingChunks returns the chunks of a file still needing extraction:
// those never finished plus those that failed. Resume re-runs failed
// chunks rather than keeping their degraded results.
func (w *Workspace) PendingChunks(filePath string) ([]chunker.Chunk, error) {
	return w.chunksWhere(filePath, func(s chunker.Status) bool {
		return s == chunker.StatusPending || s == chunker.StatusFailed
	})
}

func (w *Workspace) chunksWhere(filePath string, keep func(chunker.Status) bool) ([]chunker.Chunk, error) {
	var out []chunker.Chunk
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := w.prefix("chunk")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sc storedChunk
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sc)
			}); err != nil {
				return err
			}
			if sc.Chunk.FilePath != filePath || !keep(sc.Status) {
				continue
			}
			out = append(out, sc.Chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// PutResult persists the extraction result of a chunk.
func (w *Workspace) PutResult(res tools.ChunkResult) error {
	buf, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result %s: %w", res.ChunkID, err)
	}
	return w.db.Update(func(txn *badger.Txn) error {
		return txn.Set(w.key("result", res.ChunkID), buf)
	})
}

// Results returns all extraction results for a file, sorted by chunk index.
func (w *Workspace) Results(filePath string) ([]tools.ChunkResult, error) {
	var out []tools.ChunkResult
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := w.prefix("result")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var res tools.ChunkResult
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &res)
			}); err != nil {
				return err
			}
			if res.FilePath != filePath {
				continue
			}
			out = append(out, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// StagedBatch is a batch waiting to be merged, keyed by its staging name.
type StagedBatch struct {
	Key   string      `json:"key"`
	Batch graph.Batch `json:"batch"`
}

// StageBatch persists a merge-ready batch under the given key. Staging the
// same key again overwrites, which keeps resume idempotent.
func (w *Workspace) StageBatch(key string, batch graph.Batch) error {
	buf, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding batch %s: %w", key, err)
	}
	return w.db.Update(func(txn *badger.Txn) error {
		return txn.Set(w.key("staged", key), buf)
	})
}

// StagedBatches returns every staged batch, sorted by key for a
// deterministic merge order.
func (w *Workspace) StagedBatches() ([]StagedBatch, error) {
	var out []StagedBatch
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := w.prefix("staged")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			var b graph.Batch
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			}); err != nil {
				return err
			}
			out = append(out, StagedBatch{Key: key, Batch: b})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// IsStaged reports whether a batch exists under the given staging key.
// Resume uses this to skip provider work already done; the merge phase
// itself always replays every staged batch, since the graph lives in
// memory and starts empty on every run.
func (w *Workspace) IsStaged(key string) (bool, error) {
	var staged bool
	err := w.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(w.key("staged", key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		staged = true
		return nil
	})
	return staged, err
}

// IsFileStaged reports whether a file's batch has been staged, meaning all
// of its chunks were extracted and mapped. Resume skips such files.
func (w *Workspace) IsFileStaged(filePath string) (bool, error) {
	return w.IsStaged("file/" + filePath)
}

// Close closes the store, retaining its contents for resume.
func (w *Workspace) Close() error {
	return w.db.Close()
}

// Destroy closes the store and removes its files. Called after a
// successful run.
func (w *Workspace) Destroy() error {
	if err := w.db.Close(); err != nil {
		return err
	}
	if w.inMemory || w.dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace directory %s: %w", w.dir, err)
	}
	return nil
}
