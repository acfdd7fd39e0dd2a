// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package memkv implements backend.KVBackend as an in-process ordered
// index over github.com/google/btree, keyed by namespace\x00key. The
// B-tree gives GetByPrefix/GetAll real ordered-range iteration (an
// AscendGreaterOrEqual walk that stops past the prefix) instead of an
// unordered map that would need a full scan and sort on every call.
package memkv

import (
	"context"
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/julea-io/julea-go/pkg/backend"
)

const degree = 32

type entry struct {
	key   string // namespace\x00key, the B-tree ordering key
	value []byte
}

func (e *entry) Less(than btree.Item) bool {
	return e.key < than.(*entry).key
}

func composite(namespace, key string) string {
	return namespace + "\x00" + key
}

// Backend is a single in-process ordered KV store.
type Backend struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// New returns an empty in-memory KV backend.
func New() *Backend {
	return &Backend{tree: btree.New(degree)}
}

type batchOp struct {
	del   bool
	key   string
	value []byte
}

type batch struct {
	ops []batchOp
}

func (b *batch) Put(key string, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

func (b *batch) Delete(key string) {
	b.ops = append(b.ops, batchOp{del: true, key: key})
}

func (kv *Backend) NewBatch(namespace string) backend.KVBatch {
	return &batch{}
}

func (kv *Backend) Execute(ctx context.Context, namespace string, bb backend.KVBatch) error {
	b := bb.(*batch)
	kv.mu.Lock()
	defer kv.mu.Unlock()
	for _, op := range b.ops {
		ck := composite(namespace, op.key)
		if op.del {
			kv.tree.Delete(&entry{key: ck})
			continue
		}
		cp := make([]byte, len(op.value))
		copy(cp, op.value)
		kv.tree.ReplaceOrInsert(&entry{key: ck, value: cp})
	}
	return nil
}

func (kv *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	item := kv.tree.Get(&entry{key: composite(namespace, key)})
	if item == nil {
		return nil, nil
	}
	return item.(*entry).value, nil
}

type iterator struct {
	entries []backend.KVEntry
	pos     int
}

func (it *iterator) Next(ctx context.Context) (backend.KVEntry, bool, error) {
	if it.pos >= len(it.entries) {
		return backend.KVEntry{}, false, nil
	}
	e := it.entries[it.pos]
	it.pos++
	return e, true, nil
}

func (it *iterator) Close() error { return nil }

func (kv *Backend) GetAll(ctx context.Context, namespace string) (backend.KVIterator, error) {
	return kv.scan(namespace, namespace+"\x00", namespace+"\x01")
}

func (kv *Backend) GetByPrefix(ctx context.Context, namespace, prefix string) (backend.KVIterator, error) {
	lo := composite(namespace, prefix)
	return kv.scan(namespace, lo, namespace+"\x01")
}

func (kv *Backend) scan(namespace, lo, hi string) (backend.KVIterator, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	var out []backend.KVEntry
	kv.tree.AscendGreaterOrEqual(&entry{key: lo}, func(i btree.Item) bool {
		e := i.(*entry)
		if e.key >= hi || !strings.HasPrefix(e.key, lo) {
			return false
		}
		key := e.key[len(namespace)+1:]
		v := make([]byte, len(e.value))
		copy(v, e.value)
		out = append(out, backend.KVEntry{Key: key, Value: v})
		return true
	})
	return &iterator{entries: out}, nil
}

func (kv *Backend) Close() error { return nil }
