// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package rediskv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/julea-io/julea-go/pkg/backend"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client)
}

func TestRedisKVPutGetDelete(t *testing.T) {
	kv := newTestBackend(t)
	ctx := context.Background()

	b := kv.NewBatch("bench")
	b.Put("o", []byte("hello"))
	require.NoError(t, kv.Execute(ctx, "bench", b))

	v, err := kv.Get(ctx, "bench", "o")
	require.NoError(t, err)
	require.Equal(t, "hello", string(v))

	b = kv.NewBatch("bench")
	b.Delete("o")
	require.NoError(t, kv.Execute(ctx, "bench", b))

	v, err = kv.Get(ctx, "bench", "o")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestRedisKVPrefix(t *testing.T) {
	kv := newTestBackend(t)
	ctx := context.Background()

	b := kv.NewBatch("bench")
	b.Put("o_0", []byte("a"))
	b.Put("o_1", []byte("b"))
	b.Put("zzz", []byte("c"))
	require.NoError(t, kv.Execute(ctx, "bench", b))

	it, err := kv.GetByPrefix(ctx, "bench", "o_")
	require.NoError(t, err)
	var got []backend.KVEntry
	for {
		e, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, e)
	}
	require.Len(t, got, 2)
}
