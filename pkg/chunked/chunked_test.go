// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julea-io/julea-go/pkg/backend/disk"
	"github.com/julea-io/julea-go/pkg/backend/memkv"
	"github.com/julea-io/julea-go/pkg/batch"
	"github.com/julea-io/julea-go/pkg/object"
	"github.com/julea-io/julea-go/pkg/transform"
)

func newLocalSession(t *testing.T) *object.Session {
	t.Helper()
	ob, err := disk.New(t.TempDir())
	require.NoError(t, err)
	return &object.Session{ObjectBackend: ob, KVBackend: memkv.New(), MaxOperationSize: 64 * 1024}
}

func TestSplitSpanMatchesChunkBoundaryFixture(t *testing.T) {
	spans := splitSpan(50, 100, 64)
	require.Len(t, spans, 3)

	require.Equal(t, chunkSpan{chunkID: 0, localOff: 50, localLen: 14, bufOff: 0}, spans[0])
	require.Equal(t, chunkSpan{chunkID: 1, localOff: 0, localLen: 64, bufOff: 14}, spans[1])
	require.Equal(t, chunkSpan{chunkID: 2, localOff: 0, localLen: 22, bufOff: 78}, spans[2])
}

// TestChunkedBoundaries is spec scenario S4: chunk_size=64, write 100 bytes
// at offset 50 against a fresh (NONE, CLIENT) chunked object. After
// execute, chunk_count must be 3, with the byte ranges above landing in
// their respective chunks.
func TestChunkedBoundaries(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "big", 64)

	b := batch.New(batch.SafetyStorage)
	require.NoError(t, obj.Create(ctx, b, transform.None, transform.ModeClient))

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i + 1)
	}

	b = batch.New(batch.SafetyStorage)
	wr, err := obj.Write(ctx, b, payload, 50)
	require.NoError(t, err)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, 100, wr.N())
	require.EqualValues(t, 3, obj.ChunkCount())

	buf := make([]byte, 100)
	b = batch.New(batch.SafetyNone)
	rr := obj.Read(b, buf, 50)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, 100, rr.N())
	require.Equal(t, payload, buf)

	chunk0 := object.New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "big_0")
	chunk0.SetTransformation(transform.None, transform.ModeClient)
	chunk1 := object.New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "big_1")
	chunk1.SetTransformation(transform.None, transform.ModeClient)
	chunk2 := object.New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "big_2")
	chunk2.SetTransformation(transform.None, transform.ModeClient)

	got0 := make([]byte, 14)
	b = batch.New(batch.SafetyNone)
	chunk0.Read(b, got0, 50)
	require.NoError(t, b.Execute(ctx))
	require.Equal(t, payload[0:14], got0)

	got1 := make([]byte, 64)
	b = batch.New(batch.SafetyNone)
	chunk1.Read(b, got1, 0)
	require.NoError(t, b.Execute(ctx))
	require.Equal(t, payload[14:78], got1)

	got2 := make([]byte, 22)
	b = batch.New(batch.SafetyNone)
	chunk2.Read(b, got2, 0)
	require.NoError(t, b.Execute(ctx))
	require.Equal(t, payload[78:100], got2)
}

// TestChunkingEquivalence: a chunked object and a flat object of the same
// type/mode must return byte-identical reads for every window.
func TestChunkingEquivalence(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()

	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	flat := object.New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "flat")
	b := batch.New(batch.SafetyStorage)
	flat.Create(b, transform.XOR, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))
	b = batch.New(batch.SafetyStorage)
	flat.Write(b, payload, 0)
	require.NoError(t, b.Execute(ctx))

	ch := New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "chunked", 37)
	b = batch.New(batch.SafetyStorage)
	require.NoError(t, ch.Create(ctx, b, transform.XOR, transform.ModeClient))
	b = batch.New(batch.SafetyStorage)
	_, err := ch.Write(ctx, b, payload, 0)
	require.NoError(t, err)
	require.NoError(t, b.Execute(ctx))

	windows := [][2]int{{0, 500}, {10, 50}, {100, 137}, {490, 10}}
	for _, w := range windows {
		off, length := w[0], w[1]
		flatBuf := make([]byte, length)
		b = batch.New(batch.SafetyNone)
		flat.Read(b, flatBuf, int64(off))
		require.NoError(t, b.Execute(ctx))

		chunkBuf := make([]byte, length)
		b = batch.New(batch.SafetyNone)
		ch.Read(b, chunkBuf, int64(off))
		require.NoError(t, b.Execute(ctx))

		require.Equal(t, flatBuf, chunkBuf, "window off=%d len=%d", off, length)
	}
}

func TestChunkedStatusSumsChunkSizes(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "sized", 16)

	b := batch.New(batch.SafetyStorage)
	require.NoError(t, obj.Create(ctx, b, transform.None, transform.ModeClient))

	payload := make([]byte, 50)
	b = batch.New(batch.SafetyStorage)
	_, err := obj.Write(ctx, b, payload, 0)
	require.NoError(t, err)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyNone)
	st, err := obj.Status(ctx, b)
	require.NoError(t, err)
	require.EqualValues(t, 4, st.ChunkCount)
	require.EqualValues(t, 50, st.TotalSize)
	require.Equal(t, transform.None, st.Type)
}

func TestChunkedDeleteRemovesAllChunksAndMetadata(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "gone", 16)

	b := batch.New(batch.SafetyStorage)
	require.NoError(t, obj.Create(ctx, b, transform.None, transform.ModeClient))
	b = batch.New(batch.SafetyStorage)
	_, err := obj.Write(ctx, b, make([]byte, 40), 0)
	require.NoError(t, err)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyStorage)
	require.NoError(t, obj.Delete(ctx, b))

	reopened := New(sess, object.LocalTarget(), object.LocalTarget(), "ns", "gone", 0)
	b = batch.New(batch.SafetyNone)
	_, err = reopened.Status(ctx, b)
	require.Error(t, err)
}
