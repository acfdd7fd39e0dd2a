// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the storage-core dispatcher: a TCP listener
// that spawns one worker goroutine per accepted connection, each driving
// the configured object and KV backends. Config.StripeSize bounds the
// payload bytes one read reply message carries and the length of one
// coalesced backend write; message and payload buffers are allocated per
// request rather than kept and reused by the worker.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/julea-io/julea-go/pkg/backend"
	"github.com/julea-io/julea-go/pkg/logger"
	"github.com/julea-io/julea-go/pkg/transform"
	"github.com/julea-io/julea-go/pkg/wire"
)

// DefaultStripeSize is the scratch region size used when Config.StripeSize
// is unset, matching the spec's 1 MiB STRIPE_SIZE constant.
const DefaultStripeSize = 1 << 20

// Config configures a Server's backends and per-connection scratch size.
type Config struct {
	ObjectBackend backend.ObjectBackend
	KVBackend     backend.KVBackend
	StripeSize    int64

	// ReadTimeout/WriteTimeout, if non-zero, bound how long a worker will
	// wait on one read or write call to a connection, scaled by how much
	// that connection has already transferred. Zero disables deadlines.
	ReadTimeout, WriteTimeout time.Duration
}

// Server dispatches framed requests from accepted connections against the
// configured backends.
type Server struct {
	cfg Config
	wg  sync.WaitGroup
}

func New(cfg Config) *Server {
	if cfg.StripeSize <= 0 {
		cfg.StripeSize = DefaultStripeSize
	}
	return &Server{cfg: cfg}
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails,
// spawning one worker goroutine per connection. It blocks until every
// spawned worker has returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.ReadTimeout != 0 || s.cfg.WriteTimeout != 0 {
		ln = &timeoutListener{Listener: ln, ReadTimeout: s.cfg.ReadTimeout, WriteTimeout: s.cfg.WriteTimeout}
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	w := &worker{srv: s, conn: conn}
	for {
		hdr, reader, err := wire.ReadMessage(conn)
		if err != nil {
			if err != io.EOF {
				logger.Debug().Err(err).Msg("server: connection closed")
			}
			return
		}
		if err := w.dispatch(ctx, hdr, reader); err != nil {
			logger.Error().Err(err).Str("type", hdr.Type.String()).Msg("server: request failed")
			return
		}
	}
}

// worker owns one connection's dispatch state; it is never touched by more
// than one goroutine at a time.
type worker struct {
	srv  *Server
	conn net.Conn
}

func (w *worker) stripeSize() int64 { return w.srv.cfg.StripeSize }

func (w *worker) dispatch(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	switch hdr.Type {
	case wire.TypeObjectCreate, wire.TypeTransformationObjectCreate:
		return w.handleCreate(ctx, hdr, r)
	case wire.TypeObjectDelete, wire.TypeTransformationObjectDelete:
		return w.handleDelete(ctx, hdr, r)
	case wire.TypeObjectRead, wire.TypeTransformationObjectRead:
		return w.handleRead(ctx, hdr, r)
	case wire.TypeObjectWrite, wire.TypeTransformationObjectWrite:
		return w.handleWrite(ctx, hdr, r)
	case wire.TypeObjectStatus, wire.TypeTransformationObjectStatus:
		return w.handleStatus(ctx, hdr, r)
	case wire.TypeKVPut:
		return w.handleKVPut(ctx, hdr, r)
	case wire.TypeKVDelete:
		return w.handleKVDelete(ctx, hdr, r)
	case wire.TypeKVGet:
		return w.handleKVGet(ctx, hdr, r)
	case wire.TypeKVGetAll:
		return w.handleKVIterate(ctx, hdr, r, false)
	case wire.TypeKVGetByPrefix:
		return w.handleKVIterate(ctx, hdr, r, true)
	case wire.TypeStatistics:
		return w.handleStatistics(hdr)
	case wire.TypePing:
		return w.handlePing(hdr)
	default:
		return &unknownTypeError{hdr.Type}
	}
}

type unknownTypeError struct{ t wire.Type }

func (e *unknownTypeError) Error() string { return "server: unhandled message type " + e.t.String() }

// sendReply writes one reply message of the given type carrying count
// operations, built by build, back over the connection.
func (w *worker) sendReply(typ wire.Type, requestID uint32, count uint16, build func(*wire.Writer)) error {
	wr := wire.NewWriter()
	build(wr)
	hdr := wire.Header{ID: requestID, Flags: wire.FlagReply, Type: typ, Count: count}
	return wire.WriteMessage(w.conn, hdr, wr)
}

// --- create / delete -------------------------------------------------------

func (w *worker) handleCreate(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	safety := hdr.Safety()
	names := make([]string, hdr.Count)
	for i := range names {
		if names[i], err = r.GetName(); err != nil {
			return err
		}
	}
	for _, name := range names {
		h, err := w.srv.cfg.ObjectBackend.Create(ctx, ns, name)
		if err != nil {
			return err
		}
		if safety == wire.SafetyStorage {
			if err := h.Sync(); err != nil {
				_ = h.Close()
				return err
			}
		}
		if err := h.Close(); err != nil {
			return err
		}
	}
	if !safety.RequiresReply() {
		return nil
	}
	return w.sendReply(hdr.Type, hdr.ID, uint16(len(names)), func(wr *wire.Writer) {
		for range names {
			wr.PutU8(1)
		}
	})
}

func (w *worker) handleDelete(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	safety := hdr.Safety()
	names := make([]string, hdr.Count)
	for i := range names {
		if names[i], err = r.GetName(); err != nil {
			return err
		}
	}
	for _, name := range names {
		if err := w.srv.cfg.ObjectBackend.Delete(ctx, ns, name); err != nil {
			return err
		}
	}
	if !safety.RequiresReply() {
		return nil
	}
	return w.sendReply(hdr.Type, hdr.ID, uint16(len(names)), func(wr *wire.Writer) {
		for range names {
			wr.PutU8(1)
		}
	})
}

// --- status ------------------------------------------------------------

func (w *worker) handleStatus(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	names := make([]string, hdr.Count)
	for i := range names {
		if names[i], err = r.GetName(); err != nil {
			return err
		}
	}
	type result struct {
		mtime time.Time
		size  int64
	}
	results := make([]result, len(names))
	for i, name := range names {
		h, err := w.srv.cfg.ObjectBackend.Open(ctx, ns, name)
		if err != nil {
			return err
		}
		mtime, size, err := h.Status()
		_ = h.Close()
		if err != nil {
			return err
		}
		results[i] = result{mtime: mtime, size: size}
	}
	return w.sendReply(hdr.Type, hdr.ID, uint16(len(results)), func(wr *wire.Writer) {
		for _, res := range results {
			wr.PutStatusReply(res.mtime.UnixNano(), uint64(res.size))
		}
	})
}

// --- read ----------------------------------------------------------------

type readOp struct{ length, offset uint64 }

// readReplyBuilder accumulates reply operations, flushing to the
// connection and resetting once the accumulated bulk bytes would exceed
// the worker's scratch capacity. This implements the server side of the
// scratch-overflow scenario: the client loops reading reply messages until
// the cumulative operation count matches its request.
type readReplyBuilder struct {
	conn    net.Conn
	replyTo wire.Header
	wr      *wire.Writer
	count   uint16
	used    int64
	cap     int64
}

func newReadReplyBuilder(conn net.Conn, requestID uint32, replyType wire.Type, cap int64) *readReplyBuilder {
	return &readReplyBuilder{
		conn:    conn,
		replyTo: wire.Header{ID: requestID, Flags: wire.FlagReply, Type: replyType},
		wr:      wire.NewWriter(),
		cap:     cap,
	}
}

func (b *readReplyBuilder) add(payload []byte) error {
	if b.count > 0 && b.used+int64(len(payload)) > b.cap {
		if err := b.flush(); err != nil {
			return err
		}
	}
	b.wr.PutReadReply(payload)
	b.used += int64(len(payload))
	b.count++
	return nil
}

func (b *readReplyBuilder) flush() error {
	if b.count == 0 {
		return nil
	}
	hdr := b.replyTo
	hdr.Count = b.count
	if err := wire.WriteMessage(b.conn, hdr, b.wr); err != nil {
		return err
	}
	b.wr = wire.NewWriter()
	b.count = 0
	b.used = 0
	return nil
}

func (w *worker) handleRead(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	name, err := r.GetName()
	if err != nil {
		return err
	}
	var mode, typ uint8
	if hdr.Type == wire.TypeTransformationObjectRead {
		if mode, typ, err = r.GetTransformPrefix(); err != nil {
			return err
		}
	}
	ops := make([]readOp, hdr.Count)
	for i := range ops {
		length, offset, err := r.GetReadOp()
		if err != nil {
			return err
		}
		ops[i] = readOp{length: length, offset: offset}
	}

	h, err := w.srv.cfg.ObjectBackend.Open(ctx, ns, name)
	if err != nil {
		return err
	}
	defer h.Close()

	inverse := transform.Mode(mode) == transform.ModeServer && transform.Type(typ) != transform.None
	reply := newReadReplyBuilder(w.conn, hdr.ID, hdr.Type, w.stripeSize())
	for _, op := range ops {
		buf := make([]byte, op.length)
		n, err := h.ReadAt(buf, int64(op.offset))
		if err != nil && err != io.EOF {
			return err
		}
		buf = buf[:n]
		if inverse {
			out, _, err := transform.Apply(transform.Type(typ), true, buf, int64(op.offset), 0)
			if err != nil {
				return err
			}
			buf = out
		}
		if err := reply.add(buf); err != nil {
			return err
		}
	}
	return reply.flush()
}

// --- write -----------------------------------------------------------------

type writeOp struct{ length, offset uint64 }

func (w *worker) handleWrite(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	name, err := r.GetName()
	if err != nil {
		return err
	}
	var mode, typ uint8
	if hdr.Type == wire.TypeTransformationObjectWrite {
		if mode, typ, err = r.GetTransformPrefix(); err != nil {
			return err
		}
	}
	ops := make([]writeOp, hdr.Count)
	for i := range ops {
		length, offset, err := r.GetWriteOp()
		if err != nil {
			return err
		}
		ops[i] = writeOp{length: length, offset: offset}
	}

	h, err := w.srv.cfg.ObjectBackend.Open(ctx, ns, name)
	if err != nil {
		return err
	}
	defer h.Close()

	forward := transform.Mode(mode) == transform.ModeServer && transform.Type(typ) != transform.None
	safety := hdr.Safety()

	results := make([]uint64, len(ops))
	var (
		mergeOff, mergeLen int64
		mergeBuf           []byte
		pending            []int
	)
	flush := func() error {
		if mergeLen == 0 {
			return nil
		}
		payload := mergeBuf
		if forward {
			out, _, err := transform.Apply(transform.Type(typ), false, payload, mergeOff, 0)
			if err != nil {
				return err
			}
			payload = out
		}
		n, err := h.WriteAt(payload, mergeOff)
		if err != nil {
			return err
		}
		if int64(n) != int64(len(payload)) {
			return io.ErrShortWrite
		}
		for _, idx := range pending {
			results[idx] = ops[idx].length
		}
		mergeLen, mergeBuf, pending = 0, mergeBuf[:0], pending[:0]
		return nil
	}

	for i, op := range ops {
		payload, err := r.GetBulk(int(op.length))
		if err != nil {
			return err
		}
		abuts := mergeLen > 0 && int64(op.offset) == mergeOff+mergeLen
		fits := mergeLen+int64(op.length) <= w.stripeSize()
		if abuts && fits {
			mergeBuf = append(mergeBuf, payload...)
			mergeLen += int64(op.length)
			pending = append(pending, i)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		mergeOff = int64(op.offset)
		mergeBuf = append(mergeBuf[:0], payload...)
		mergeLen = int64(op.length)
		pending = append(pending[:0], i)
	}
	if err := flush(); err != nil {
		return err
	}

	if safety == wire.SafetyStorage {
		if err := h.Sync(); err != nil {
			return err
		}
	}
	if !safety.RequiresReply() {
		return nil
	}
	return w.sendReply(hdr.Type, hdr.ID, uint16(len(results)), func(wr *wire.Writer) {
		for _, n := range results {
			wr.PutWriteReply(n)
		}
	})
}

// --- KV --------------------------------------------------------------------

func (w *worker) handleKVPut(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	type putHeader struct {
		key    string
		length uint32
	}
	headers := make([]putHeader, hdr.Count)
	for i := range headers {
		key, length, err := r.GetKVPutHeader()
		if err != nil {
			return err
		}
		headers[i] = putHeader{key: key, length: length}
	}
	kb := w.srv.cfg.KVBackend.NewBatch(ns)
	for _, h := range headers {
		value, err := r.GetBulk(int(h.length))
		if err != nil {
			return err
		}
		kb.Put(h.key, value)
	}
	if err := w.srv.cfg.KVBackend.Execute(ctx, ns, kb); err != nil {
		return err
	}
	safety := hdr.Safety()
	if !safety.RequiresReply() {
		return nil
	}
	return w.sendReply(hdr.Type, hdr.ID, hdr.Count, func(wr *wire.Writer) {
		for i := uint16(0); i < hdr.Count; i++ {
			wr.PutU8(1)
		}
	})
}

func (w *worker) handleKVDelete(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	kb := w.srv.cfg.KVBackend.NewBatch(ns)
	keys := make([]string, hdr.Count)
	for i := range keys {
		if keys[i], err = r.GetName(); err != nil {
			return err
		}
		kb.Delete(keys[i])
	}
	if err := w.srv.cfg.KVBackend.Execute(ctx, ns, kb); err != nil {
		return err
	}
	safety := hdr.Safety()
	if !safety.RequiresReply() {
		return nil
	}
	return w.sendReply(hdr.Type, hdr.ID, uint16(len(keys)), func(wr *wire.Writer) {
		for range keys {
			wr.PutU8(1)
		}
	})
}

func (w *worker) handleKVGet(ctx context.Context, hdr wire.Header, r *wire.Reader) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	keys := make([]string, hdr.Count)
	for i := range keys {
		if keys[i], err = r.GetName(); err != nil {
			return err
		}
	}
	values := make([][]byte, len(keys))
	for i, key := range keys {
		v, err := w.srv.cfg.KVBackend.Get(ctx, ns, key)
		if err != nil {
			return err
		}
		values[i] = v
	}
	return w.sendReply(hdr.Type, hdr.ID, uint16(len(values)), func(wr *wire.Writer) {
		for _, v := range values {
			wr.PutKVValue(v)
		}
	})
}

// handleKVIterate drives KV_GET_ALL (byPrefix=false) or KV_GET_BY_PREFIX
// (byPrefix=true), replying with a stream of key/value entries terminated
// by an empty-key sentinel.
func (w *worker) handleKVIterate(ctx context.Context, hdr wire.Header, r *wire.Reader, byPrefix bool) error {
	ns, err := r.GetCString()
	if err != nil {
		return err
	}
	var prefix string
	if byPrefix {
		if prefix, err = r.GetCString(); err != nil {
			return err
		}
	}

	var it backend.KVIterator
	if byPrefix {
		it, err = w.srv.cfg.KVBackend.GetByPrefix(ctx, ns, prefix)
	} else {
		it, err = w.srv.cfg.KVBackend.GetAll(ctx, ns)
	}
	if err != nil {
		return err
	}
	defer it.Close()

	var entries []backend.KVEntry
	for {
		e, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	return w.sendReply(hdr.Type, hdr.ID, uint16(len(entries)+1), func(wr *wire.Writer) {
		for _, e := range entries {
			wr.PutKVEntry(e.Key, e.Value)
		}
		wr.PutKVEntry("", nil)
	})
}

// --- ping / statistics -----------------------------------------------------

func (w *worker) handlePing(hdr wire.Header) error {
	return w.sendReply(wire.TypePing, hdr.ID, 0, func(*wire.Writer) {})
}

// handleStatistics replies with a fixed, always-zero record: spec.md §1
// scopes the tracing/statistics subsystem out, but §6 still requires the
// STATISTICS message type to be dispatchable so the wire contract is fixed
// across client and server.
func (w *worker) handleStatistics(hdr wire.Header) error {
	return w.sendReply(wire.TypeStatistics, hdr.ID, 1, func(wr *wire.Writer) {
		wr.PutU64(0)
		wr.PutU64(0)
	})
}
