// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julea-io/julea-go/pkg/backend"
)

func drain(t *testing.T, it backend.KVIterator) []backend.KVEntry {
	t.Helper()
	var out []backend.KVEntry
	for {
		e, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

func TestMemKVPutGet(t *testing.T) {
	kv := New()
	ctx := context.Background()

	b := kv.NewBatch("bench")
	b.Put("o", []byte("hello"))
	require.NoError(t, kv.Execute(ctx, "bench", b))

	v, err := kv.Get(ctx, "bench", "o")
	require.NoError(t, err)
	require.Equal(t, "hello", string(v))

	v, err = kv.Get(ctx, "other", "o")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestMemKVDelete(t *testing.T) {
	kv := New()
	ctx := context.Background()

	b := kv.NewBatch("bench")
	b.Put("o", []byte("x"))
	require.NoError(t, kv.Execute(ctx, "bench", b))

	b = kv.NewBatch("bench")
	b.Delete("o")
	require.NoError(t, kv.Execute(ctx, "bench", b))

	v, err := kv.Get(ctx, "bench", "o")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestMemKVPrefixAndAll(t *testing.T) {
	kv := New()
	ctx := context.Background()

	b := kv.NewBatch("bench")
	b.Put("o_0", []byte("a"))
	b.Put("o_1", []byte("b"))
	b.Put("other", []byte("c"))
	require.NoError(t, kv.Execute(ctx, "bench", b))

	it, err := kv.GetByPrefix(ctx, "bench", "o_")
	require.NoError(t, err)
	entries := drain(t, it)
	require.Len(t, entries, 2)
	require.Equal(t, "o_0", entries[0].Key)
	require.Equal(t, "o_1", entries[1].Key)

	it, err = kv.GetAll(ctx, "bench")
	require.NoError(t, err)
	require.Len(t, drain(t, it), 3)

	it, err = kv.GetAll(ctx, "empty-namespace")
	require.NoError(t, err)
	require.Empty(t, drain(t, it))
}
