// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the uniform capability sets object and KV
// backends must implement, independent of where the bytes actually live.
// Concrete backends (pkg/backend/disk, pkg/backend/s3, pkg/backend/memkv,
// pkg/backend/rediskv) are compiled-in implementations rather than
// dynamically loaded modules — the original design's dlopen-based loading
// is an implementation convenience, not a semantic requirement, and Go's
// interface satisfaction gives the same pluggability at compile time.
package backend

import (
	"context"
	"time"
)

// ObjectHandle is an open object on an object backend. Callers must Close
// it; the underlying bytes survive independently of the handle.
type ObjectHandle interface {
	ReadAt(buf []byte, off int64) (int, error)
	WriteAt(buf []byte, off int64) (int, error)
	Sync() error
	// Status returns the backend's view of modification time and physical
	// size. Per the data model, this is not a trustworthy proxy for a
	// transformation object's logical sizes — those live in KV metadata.
	Status() (mtime time.Time, size int64, err error)
	Close() error
}

// ObjectBackend stores byte-addressable objects identified by
// (namespace, name).
type ObjectBackend interface {
	Create(ctx context.Context, namespace, name string) (ObjectHandle, error)
	Open(ctx context.Context, namespace, name string) (ObjectHandle, error)
	Delete(ctx context.Context, namespace, name string) error
	Close() error
}

// KVEntry is one key/value pair yielded by an iterator.
type KVEntry struct {
	Key   string
	Value []byte
}

// KVIterator walks entries in an order set by the backend: memkv yields
// key order, rediskv the unordered order of a Redis SCAN. Next returns
// false once exhausted.
type KVIterator interface {
	Next(ctx context.Context) (KVEntry, bool, error)
	Close() error
}

// KVBatch accumulates puts and deletes for one atomic KV_PUT/KV_DELETE
// group before Execute commits them together.
type KVBatch interface {
	Put(key string, value []byte)
	Delete(key string)
}

// KVBackend stores namespaced key/value records.
type KVBackend interface {
	NewBatch(namespace string) KVBatch
	Execute(ctx context.Context, namespace string, batch KVBatch) error
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	GetAll(ctx context.Context, namespace string) (KVIterator, error)
	GetByPrefix(ctx context.Context, namespace, prefix string) (KVIterator, error)
	Close() error
}
