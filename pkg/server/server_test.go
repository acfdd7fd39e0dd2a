// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julea-io/julea-go/pkg/backend/disk"
	"github.com/julea-io/julea-go/pkg/backend/memkv"
	"github.com/julea-io/julea-go/pkg/batch"
	"github.com/julea-io/julea-go/pkg/object"
	"github.com/julea-io/julea-go/pkg/pool"
	"github.com/julea-io/julea-go/pkg/transform"
	"github.com/julea-io/julea-go/pkg/wire"
)

// startServer brings up a Server on a loopback listener and returns its
// address; t.Cleanup shuts the server down.
func startServer(t *testing.T) string {
	t.Helper()
	ob, err := disk.New(t.TempDir())
	require.NoError(t, err)
	kv := memkv.New()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Config{ObjectBackend: ob, KVBackend: kv})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, ln)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func newRemoteSession(t *testing.T, addr string) (*object.Session, object.Target) {
	t.Helper()
	p := pool.New(pool.DefaultOptions())
	t.Cleanup(func() { _ = p.Close() })
	sess := &object.Session{Pool: p, MaxOperationSize: 512 * 1024}
	key := pool.Key{Kind: "object", Index: 0}
	return sess, object.RemoteTarget(key, addr)
}

func TestCreateWriteReadDeleteOverNetwork(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()
	sess, target := newRemoteSession(t, addr)
	obj := object.New(sess, target, target, "ns", "remote1")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.None, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyStorage)
	wr := obj.Write(b, []byte("over the wire"), 0)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, 13, wr.N())

	buf := make([]byte, 13)
	b = batch.New(batch.SafetyNone)
	rr := obj.Read(b, buf, 0)
	require.NoError(t, b.Execute(ctx))
	require.EqualValues(t, 13, rr.N())
	require.Equal(t, "over the wire", string(buf))

	b = batch.New(batch.SafetyStorage)
	obj.Delete(b)
	require.NoError(t, b.Execute(ctx))
}

func TestXORRoundTripOverNetworkServerMode(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()
	sess, target := newRemoteSession(t, addr)
	obj := object.New(sess, target, target, "ns", "remote2")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.XOR, transform.ModeServer)
	require.NoError(t, b.Execute(ctx))

	payload := []byte("server-side transform round trip")
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

// TestRLEWholeObjectRoundTripOverNetwork pins the whole-object remote read
// path against a transformation that expands low-redundancy input: the
// stored blob is larger than the object's logical size, so the read-back
// request must ask for TransformedSize bytes, not OriginalSize, or the
// inverse transform decodes a truncated stream.
func TestRLEWholeObjectRoundTripOverNetwork(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()
	sess, target := newRemoteSession(t, addr)
	obj := object.New(sess, target, target, "ns", "remote4")

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

	overwrite := make([]byte, 50)
	for i := range overwrite {
		overwrite[i] = 0x07
	}
	b = batch.New(batch.SafetyStorage)
	obj.Write(b, overwrite, 100)
	require.NoError(t, b.Execute(ctx))

	want := append([]byte{}, payload...)
	copy(want[100:150], overwrite)

	buf2 := make([]byte, len(want))
	b = batch.New(batch.SafetyNone)
	obj.Read(b, buf2, 0)
	require.NoError(t, b.Execute(ctx))
	require.Equal(t, want, buf2)
}

// TestSafetyNoneSendsNoReplyForWrites is spec scenario S5: under safety
// NONE, bytes_written is faked locally before batch_execute returns, and
// no write reply round trip is awaited.
func TestSafetyNoneSendsNoReplyForWrites(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()
	sess, target := newRemoteSession(t, addr)
	obj := object.New(sess, target, target, "ns", "remote3")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.None, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	b = batch.New(batch.SafetyNone)
	w1 := obj.Write(b, []byte("a"), 0)
	w2 := obj.Write(b, []byte("b"), 1)
	w3 := obj.Write(b, []byte("c"), 2)
	require.EqualValues(t, 1, w1.N())
	require.EqualValues(t, 1, w2.N())
	require.EqualValues(t, 1, w3.N())
	require.NoError(t, b.Execute(ctx))
}

// TestScratchOverflowSplitsReply is spec scenario S6: two large reads in
// one batch whose combined size exceeds the server's 1 MiB scratch region
// force the server to flush mid-reply and the client to loop for a second
// reply message.
func TestScratchOverflowSplitsReply(t *testing.T) {
	ob, err := disk.New(t.TempDir())
	require.NoError(t, err)
	kv := memkv.New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := New(Config{ObjectBackend: ob, KVBackend: kv, StripeSize: 1 << 20})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = srv.Serve(ctx, ln); close(done) }()
	t.Cleanup(func() { cancel(); <-done })

	p := pool.New(pool.DefaultOptions())
	t.Cleanup(func() { _ = p.Close() })
	sess := &object.Session{Pool: p, MaxOperationSize: 0}
	key := pool.Key{Kind: "object", Index: 0}
	target := object.RemoteTarget(key, ln.Addr().String())
	obj := object.New(sess, target, target, "ns", "big")

	b := batch.New(batch.SafetyStorage)
	obj.Create(b, transform.None, transform.ModeClient)
	require.NoError(t, b.Execute(ctx))

	const chunk = 768 * 1024
	payload := make([]byte, 2*chunk)
	for i := range payload {
		payload[i] = byte(i)
	}
	b = batch.New(batch.SafetyStorage)
	obj.Write(b, payload, 0)
	require.NoError(t, b.Execute(ctx))

	buf1 := make([]byte, chunk)
	buf2 := make([]byte, chunk)
	b = batch.New(batch.SafetyNone)
	obj.Read(b, buf1, 0)
	obj.Read(b, buf2, chunk)
	require.Equal(t, 2, b.Len())
	require.NoError(t, b.Execute(ctx))
	require.Equal(t, payload[:chunk], buf1)
	require.Equal(t, payload[chunk:], buf2)
}

func TestKVPutGetDeleteOverNetwork(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()
	sess, target := newRemoteSession(t, addr)

	require.NoError(t, sess.PutValue(ctx, target, "ns", "k1", []byte("v1"), wire.SafetyStorage))
	v, err := sess.GetValue(ctx, target, "ns", "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, sess.DeleteValue(ctx, target, "ns", "k1", wire.SafetyStorage))
	v, err = sess.GetValue(ctx, target, "ns", "k1")
	require.NoError(t, err)
	require.Nil(t, v)
}
