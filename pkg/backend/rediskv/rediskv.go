// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package rediskv implements backend.KVBackend over Redis
// (github.com/redis/go-redis/v9), giving the capability set a second
// remote-capable store alongside the in-process memkv backend. Records are
// stored as plain string keys "namespace\x00key"; batches commit via a
// MULTI/EXEC transaction pipeline so a KV_PUT/KV_DELETE group reaches the server as one round
// trip, matching the batch pipeline's "one network message per run" rule.
package rediskv

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/julea-io/julea-go/pkg/backend"
)

// Backend is a Redis-backed KV store.
type Backend struct {
	client *redis.Client
}

// New connects to a Redis server at addr.
func New(addr string) (*Backend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("rediskv: ping %q: %w", addr, err)
	}
	return &Backend{client: client}, nil
}

// NewWithClient wraps an already-constructed client, letting tests point
// it at a miniredis instance.
func NewWithClient(client *redis.Client) *Backend {
	return &Backend{client: client}
}

func composite(namespace, key string) string {
	return namespace + "\x00" + key
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
	if len(b.ops) == 0 {
		return nil
	}
	pipe := kv.client.TxPipeline()
	for _, op := range b.ops {
		ck := composite(namespace, op.key)
		if op.del {
			pipe.Del(ctx, ck)
			continue
		}
		pipe.Set(ctx, ck, op.value, 0)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("rediskv: execute batch: %w", err)
	}
	return nil
}

func (kv *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	v, err := kv.client.Get(ctx, composite(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rediskv: get %q: %w", key, err)
	}
	return v, nil
}

type iterator struct {
	kv        *Backend
	ctx       context.Context
	namespace string
	it        *redis.ScanIterator
}

func (it *iterator) Next(ctx context.Context) (backend.KVEntry, bool, error) {
	if !it.it.Next(ctx) {
		if err := it.it.Err(); err != nil {
			return backend.KVEntry{}, false, fmt.Errorf("rediskv: scan: %w", err)
		}
		return backend.KVEntry{}, false, nil
	}
	full := it.it.Val()
	v, err := it.kv.client.Get(ctx, full).Bytes()
	if err != nil {
		return backend.KVEntry{}, false, fmt.Errorf("rediskv: scan get %q: %w", full, err)
	}
	key := strings.TrimPrefix(full, it.namespace+"\x00")
	return backend.KVEntry{Key: key, Value: v}, true, nil
}

func (it *iterator) Close() error { return nil }

func (kv *Backend) GetAll(ctx context.Context, namespace string) (backend.KVIterator, error) {
	return kv.scan(ctx, namespace, namespace+"\x00*")
}

func (kv *Backend) GetByPrefix(ctx context.Context, namespace, prefix string) (backend.KVIterator, error) {
	return kv.scan(ctx, namespace, composite(namespace, prefix)+"*")
}

func (kv *Backend) scan(ctx context.Context, namespace, pattern string) (backend.KVIterator, error) {
	it := kv.client.Scan(ctx, 0, pattern, 0).Iterator()
	return &iterator{kv: kv, ctx: ctx, namespace: namespace, it: it}, nil
}

func (kv *Backend) Close() error {
	return kv.client.Close()
}
