// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julea-io/julea-go/pkg/backend/disk"
	"github.com/julea-io/julea-go/pkg/backend/memkv"
	"github.com/julea-io/julea-go/pkg/batch"
	"github.com/julea-io/julea-go/pkg/transform"
)

func newLocalSession(t *testing.T) *Session {
	t.Helper()
	ob, err := disk.New(t.TempDir())
	require.NoError(t, err)
	return &Session{ObjectBackend: ob, KVBackend: memkv.New(), MaxOperationSize: 64 * 1024}
}

func TestCreateWriteReadDelete_None(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, LocalTarget(), LocalTarget(), "ns", "o1")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.None, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyStorage)
	wr := obj.Write(b, []byte("hello world"), 0)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, 11, wr.N())

	buf := make([]byte, 11)
	b = batch.New(batch.SafetyNone)
	rr := obj.Read(b, buf, 0)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, 11, rr.N())
	require.Equal(t, "hello world", string(buf))

	b = batch.New(batch.SafetyStorage)
	obj.Delete(b)
	require.NoError(t, b.Execute(ctx))
}

func TestStatusReportsMetadata(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, LocalTarget(), LocalTarget(), "ns", "o2")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.XOR, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyStorage)
	obj.Write(b, []byte("abcdef"), 0)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyNone)
	st1 := obj.Status(b)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyNone)
	st2 := obj.Status(b)
	require.NoError(t, b.Execute(ctx))

	require.Equal(t, transform.XOR, st1.Type)
	require.Equal(t, st1.ModTime, st2.ModTime)
	require.Equal(t, st1.OriginalSize, st2.OriginalSize)
}

func TestXORWriteReadRoundTripOnDisk(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, LocalTarget(), LocalTarget(), "ns", "o3")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.XOR, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	payload := []byte("the quick brown fox jumps over the lazy dog")
	b = batch.New(batch.SafetyStorage)
	obj.Write(b, payload, 0)
	require.NoError(t, b.Execute(ctx))

	buf := make([]byte, len(payload))
	b = batch.New(batch.SafetyNone)
	rr := obj.Read(b, buf, 0)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, len(payload), rr.N())
	require.Equal(t, payload, buf)
}

func TestRLEWholeObjectWriteReadRoundTrip(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, LocalTarget(), LocalTarget(), "ns", "o4")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.RLE, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 3)
	}
	b = batch.New(batch.SafetyStorage)
	obj.Write(b, payload, 0)
	require.NoError(t, b.Execute(ctx))

	buf := make([]byte, len(payload))
	b = batch.New(batch.SafetyNone)
	rr := obj.Read(b, buf, 0)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, len(payload), rr.N())
	require.Equal(t, payload, buf)
}

func TestRLEPartialOverwriteThroughObject(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, LocalTarget(), LocalTarget(), "ns", "o5")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.RLE, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = 0x05
	}
	b = batch.New(batch.SafetyStorage)
	obj.Write(b, payload, 0)
	require.NoError(t, b.Execute(ctx))

	overwrite := make([]byte, 50)
	for i := range overwrite {
		overwrite[i] = 0x07
	}
	b = batch.New(batch.SafetyStorage)
	obj.Write(b, overwrite, 100)
	require.NoError(t, b.Execute(ctx))

	buf := make([]byte, len(payload))
	b = batch.New(batch.SafetyNone)
	obj.Read(b, buf, 0)
	require.NoError(t, b.Execute(ctx))

	want := append([]byte{}, payload...)
	copy(want[100:150], overwrite)
	require.Equal(t, want, buf)
}

func TestWriteFakesBytesWrittenUnderSafetyNone(t *testing.T) {
	sess := newLocalSession(t)
	ctx := context.Background()
	obj := New(sess, LocalTarget(), LocalTarget(), "ns", "o6")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.None, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyNone)
	wr1 := obj.Write(b, []byte("a"), 0)
	wr2 := obj.Write(b, []byte("b"), 1)
	wr3 := obj.Write(b, []byte("c"), 2)
	// Faked immediately at enqueue time, before Execute runs.
	require.EqualValues(t, 1, wr1.N())
	require.EqualValues(t, 1, wr2.N())
	require.EqualValues(t, 1, wr3.N())
	require.NoError(t, b.Execute(ctx))
}

func TestLargeReadSplitsAtMaxOperationSize(t *testing.T) {
	sess := newLocalSession(t)
	sess.MaxOperationSize = 16
	ctx := context.Background()
	obj := New(sess, LocalTarget(), LocalTarget(), "ns", "o7")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.None, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	b = batch.New(batch.SafetyStorage)
	obj.Write(b, payload, 0)
	require.Greater(t, b.Len(), 1)
	require.NoError(t, b.Execute(ctx))

	buf := make([]byte, len(payload))
	b = batch.New(batch.SafetyNone)
	rr := obj.Read(b, buf, 0)
	require.Greater(t, b.Len(), 1)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, len(payload), rr.N())
	require.Equal(t, payload, buf)
}
