// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package object implements the flat transformation object: create,
// delete, status, read and write, each enqueuing one or more pipeline
// operations into a caller-supplied batch rather than doing I/O
// immediately. A transformation object pairs an object-backend byte range
// with a small metadata record in the KV service recording which
// transformation owns it; read and write interleave the transformation
// codec with backend I/O according to the (mode, caller) direction table in
// pkg/transform.
package object

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/julea-io/julea-go/pkg/batch"
	"github.com/julea-io/julea-go/pkg/juleaerr"
	"github.com/julea-io/julea-go/pkg/transform"
	"github.com/julea-io/julea-go/pkg/wire"
)

// ReadResult is filled in as a batch executes; read it only after
// batch.Execute has returned.
type ReadResult struct{ n atomic.Int64 }

func (r *ReadResult) N() int64    { return r.n.Load() }
func (r *ReadResult) add(v int64) { r.n.Add(v) }

// WriteResult is filled in as a batch executes; read it only after
// batch.Execute has returned.
type WriteResult struct{ n atomic.Int64 }

func (r *WriteResult) N() int64    { return r.n.Load() }
func (r *WriteResult) add(v int64) { r.n.Add(v) }

// StatusResult is filled in as a batch executes; read it only after
// batch.Execute has returned.
type StatusResult struct {
	ModTime         time.Time
	OriginalSize    uint64
	TransformedSize uint64
	Type            transform.Type
	Mode            transform.Mode
}

// Object is a handle to one named transformation object. It is cheap to
// construct and carries no I/O state of its own; all state lives in the
// Session's backends or across the wire.
type Object struct {
	sess                 *Session
	objTarget, kvTarget  Target
	namespace, name      string
	typ                  transform.Type
	mode                 transform.Mode
}

// New returns a handle to namespace/name. objTarget and kvTarget route its
// object-store and metadata operations respectively; they are usually the
// same server but need not be, mirroring the separate object-server and
// KV-server lists in the configuration.
func New(sess *Session, objTarget, kvTarget Target, namespace, name string) *Object {
	return &Object{sess: sess, objTarget: objTarget, kvTarget: kvTarget, namespace: namespace, name: name}
}

func (o *Object) Namespace() string       { return o.namespace }
func (o *Object) Name() string            { return o.name }
func (o *Object) Type() transform.Type    { return o.typ }
func (o *Object) Mode() transform.Mode    { return o.mode }

// SetTransformation records the transformation this object was (or will
// be) created with, without touching storage. Create calls this itself;
// callers that open a pre-existing object call it after Status populates a
// StatusResult, so that subsequent Read/Write calls know the right codec.
func (o *Object) SetTransformation(typ transform.Type, mode transform.Mode) {
	o.typ, o.mode = typ, mode
}

func (t Target) nsRunKey(kind, ns string) string {
	return t.ID() + ":" + kind + ":" + ns
}

func (t Target) objRunKey(kind, ns, name string) string {
	return t.ID() + ":" + kind + ":" + ns + "/" + name
}

// --- create / delete -------------------------------------------------

type nameData struct{ name string }
type kvPutData struct {
	key   string
	value []byte
}

// Create establishes the transformation and enqueues both a metadata KV
// put and an object-store create. Both run as their own pipeline
// operation, since a client may have one backend, the other, both or
// neither present locally.
func (o *Object) Create(b *batch.Batch, typ transform.Type, mode transform.Mode) {
	o.SetTransformation(typ, mode)
	meta := EncodeMetadata(Metadata{Type: typ, Mode: mode, ModTime: time.Now()})

	sess := o.sess
	b.Enqueue(&batch.Operation{
		RunKey: o.objTarget.nsRunKey("create-obj", o.namespace),
		Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
			return sess.execCreateObjects(ctx, o.objTarget, o.namespace, ops, safety)
		},
		Data: &nameData{name: o.name},
	})
	b.Enqueue(&batch.Operation{
		RunKey: o.kvTarget.nsRunKey("create-kv", o.namespace),
		Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
			return sess.execPutKV(ctx, o.kvTarget, o.namespace, ops, safety)
		},
		Data: &kvPutData{key: metadataKey(o.name), value: meta},
	})
}

// Delete enqueues a KV delete of the metadata record and an object delete.
func (o *Object) Delete(b *batch.Batch) {
	sess := o.sess
	b.Enqueue(&batch.Operation{
		RunKey: o.kvTarget.nsRunKey("delete-kv", o.namespace),
		Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
			return sess.execDeleteKV(ctx, o.kvTarget, o.namespace, ops, safety)
		},
		Data: &nameData{name: metadataKey(o.name)},
	})
	b.Enqueue(&batch.Operation{
		RunKey: o.objTarget.nsRunKey("delete-obj", o.namespace),
		Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
			return sess.execDeleteObjects(ctx, o.objTarget, o.namespace, ops, safety)
		},
		Data: &nameData{name: o.name},
	})
}

// --- status ------------------------------------------------------------

type statusKVData struct {
	key    string
	result *StatusResult
}
type statusObjData struct {
	name   string
	result *StatusResult
}

// Status enqueues a metadata KV get (for type/mode/original/transformed
// size) and an object status call (for a live mtime), returning the result
// they will populate. Calling Status twice in the same batch against an
// unmodified object yields identical results, since both sub-calls are
// pure reads.
func (o *Object) Status(b *batch.Batch) *StatusResult {
	res := &StatusResult{}
	sess := o.sess
	b.Enqueue(&batch.Operation{
		RunKey: o.kvTarget.nsRunKey("status-kv", o.namespace),
		Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
			return sess.execStatusKV(ctx, o.kvTarget, o.namespace, ops, safety)
		},
		Data: &statusKVData{key: metadataKey(o.name), result: res},
	})
	b.Enqueue(&batch.Operation{
		RunKey: o.objTarget.nsRunKey("status-obj", o.namespace),
		Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
			return sess.execStatusObj(ctx, o.objTarget, o.namespace, ops, safety)
		},
		Data: &statusObjData{name: o.name, result: res},
	})
	return res
}

// --- read ---------------------------------------------------------------

type readData struct {
	offset, length int64
	dst            []byte
	result         *ReadResult
	obj            *Object
}

// Read enqueues one or more pipeline reads covering buf starting at
// offset, splitting at MaxOperationSize when the transformation permits
// partial access. Non-partial-access transformations (RLE, LZ4) always
// round-trip the whole stored object, regardless of how small the request.
func (o *Object) Read(b *batch.Batch, buf []byte, offset int64) *ReadResult {
	res := &ReadResult{}
	o.ReadInto(b, res, buf, offset)
	return res
}

// ReadInto behaves like Read but accumulates into a caller-supplied
// ReadResult instead of allocating a new one, so pkg/chunked can sum
// per-chunk reads into one bytes_read counter shared across many
// sub-objects.
func (o *Object) ReadInto(b *batch.Batch, res *ReadResult, buf []byte, offset int64) {
	if len(buf) == 0 {
		return
	}
	sess := o.sess
	runKey := o.objTarget.objRunKey("read", o.namespace, o.name)

	if transform.NeedWholeObject(o.typ, transform.ClientRead) {
		b.Enqueue(&batch.Operation{
			RunKey: runKey,
			Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
				return sess.execReadWhole(ctx, ops, safety)
			},
			Data: &readData{offset: offset, length: int64(len(buf)), dst: buf, result: res, obj: o},
		})
		return
	}

	for _, c := range splitRange(offset, int64(len(buf)), sess.chunkSize()) {
		dst := buf[c.bufOff : c.bufOff+c.length]
		b.Enqueue(&batch.Operation{
			RunKey: runKey,
			Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
				return sess.execReadChunk(ctx, ops, safety)
			},
			Data: &readData{offset: c.offset, length: c.length, dst: dst, result: res, obj: o},
		})
	}
}

// --- write --------------------------------------------------------------

type writeData struct {
	offset, length int64
	src            []byte
	result         *WriteResult
	obj            *Object
}

// Write enqueues one or more pipeline writes covering data at offset. Under
// Safety NONE, bytes_written is faked to len(data) immediately, before the
// batch has executed, matching the no-reply-awaited write path.
func (o *Object) Write(b *batch.Batch, data []byte, offset int64) *WriteResult {
	res := &WriteResult{}
	o.WriteInto(b, res, data, offset)
	return res
}

// WriteInto behaves like Write but accumulates into a caller-supplied
// WriteResult, so pkg/chunked can sum per-chunk writes into one
// bytes_written counter shared across many sub-objects.
func (o *Object) WriteInto(b *batch.Batch, res *WriteResult, data []byte, offset int64) {
	if len(data) == 0 {
		return
	}
	sess := o.sess
	runKey := o.objTarget.objRunKey("write", o.namespace, o.name)
	fake := b.Safety() == wire.SafetyNone

	if transform.NeedWholeObject(o.typ, transform.ClientWrite) {
		if fake {
			res.add(int64(len(data)))
		}
		b.Enqueue(&batch.Operation{
			RunKey: runKey,
			Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
				return sess.execWriteWhole(ctx, ops, safety)
			},
			Data: &writeData{offset: offset, length: int64(len(data)), src: data, result: res, obj: o},
		})
		return
	}

	action := transform.Direction(o.mode, transform.ClientWrite)
	for _, c := range splitRange(offset, int64(len(data)), sess.chunkSize()) {
		src := data[c.bufOff : c.bufOff+c.length]
		if action == transform.Forward {
			encoded, _, err := transform.Apply(o.typ, false, src, c.offset, 0)
			if err == nil {
				src = encoded
			}
		}
		if fake {
			res.add(c.length)
		}
		b.Enqueue(&batch.Operation{
			RunKey: runKey,
			Exec: func(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
				return sess.execWriteChunk(ctx, ops, safety)
			},
			Data: &writeData{offset: c.offset, length: c.length, src: src, result: res, obj: o},
		})
	}
}

// chunkSize returns the configured per-operation payload cap, defaulting
// to "no split" if unset.
func (s *Session) chunkSize() int64 {
	if s.MaxOperationSize <= 0 {
		return 0
	}
	return s.MaxOperationSize
}

// --- exec: create/delete/status (local + network) ----------------------

func (s *Session) execCreateObjects(ctx context.Context, target Target, ns string, ops []*batch.Operation, safety batch.Safety) error {
	if target.Local {
		for _, op := range ops {
			name := op.Data.(*nameData).name
			h, err := s.ObjectBackend.Create(ctx, ns, name)
			if err != nil {
				return juleaerr.NewBackendOpFailed("create", err)
			}
			if safety == wire.SafetyStorage {
				if err := h.Sync(); err != nil {
					_ = h.Close()
					return juleaerr.NewBackendOpFailed("sync", err)
				}
			}
			if err := h.Close(); err != nil {
				return juleaerr.NewBackendOpFailed("close", err)
			}
		}
		return nil
	}
	hdr, _, err := s.roundTrip(ctx, target, wire.TypeObjectCreate, safety, uint16(len(ops)), func(w *wire.Writer) {
		w.PutCString(ns)
		for _, op := range ops {
			w.PutName(op.Data.(*nameData).name)
		}
	}, safety.RequiresReply())
	if err != nil {
		return err
	}
	if safety.RequiresReply() && hdr.Count != uint16(len(ops)) {
		return juleaerr.NewProtocolMismatch("create reply count %d, want %d", hdr.Count, len(ops))
	}
	return nil
}

func (s *Session) execDeleteObjects(ctx context.Context, target Target, ns string, ops []*batch.Operation, safety batch.Safety) error {
	if target.Local {
		for _, op := range ops {
			if err := s.ObjectBackend.Delete(ctx, ns, op.Data.(*nameData).name); err != nil {
				return juleaerr.NewBackendOpFailed("delete", err)
			}
		}
		return nil
	}
	hdr, _, err := s.roundTrip(ctx, target, wire.TypeObjectDelete, safety, uint16(len(ops)), func(w *wire.Writer) {
		w.PutCString(ns)
		for _, op := range ops {
			w.PutName(op.Data.(*nameData).name)
		}
	}, safety.RequiresReply())
	if err != nil {
		return err
	}
	if safety.RequiresReply() && hdr.Count != uint16(len(ops)) {
		return juleaerr.NewProtocolMismatch("delete reply count %d, want %d", hdr.Count, len(ops))
	}
	return nil
}

func (s *Session) execPutKV(ctx context.Context, target Target, ns string, ops []*batch.Operation, safety batch.Safety) error {
	if target.Local {
		kb := s.KVBackend.NewBatch(ns)
		for _, op := range ops {
			d := op.Data.(*kvPutData)
			kb.Put(d.key, d.value)
		}
		if err := s.KVBackend.Execute(ctx, ns, kb); err != nil {
			return juleaerr.NewBackendOpFailed("kv put", err)
		}
		return nil
	}
	hdr, _, err := s.roundTrip(ctx, target, wire.TypeKVPut, safety, uint16(len(ops)), func(w *wire.Writer) {
		w.PutCString(ns)
		for _, op := range ops {
			d := op.Data.(*kvPutData)
			w.PutKVPut(d.key, d.value)
		}
	}, safety.RequiresReply())
	if err != nil {
		return err
	}
	if safety.RequiresReply() && hdr.Count != uint16(len(ops)) {
		return juleaerr.NewProtocolMismatch("kv put reply count %d, want %d", hdr.Count, len(ops))
	}
	return nil
}

func (s *Session) execDeleteKV(ctx context.Context, target Target, ns string, ops []*batch.Operation, safety batch.Safety) error {
	if target.Local {
		kb := s.KVBackend.NewBatch(ns)
		for _, op := range ops {
			kb.Delete(op.Data.(*nameData).name)
		}
		if err := s.KVBackend.Execute(ctx, ns, kb); err != nil {
			return juleaerr.NewBackendOpFailed("kv delete", err)
		}
		return nil
	}
	hdr, _, err := s.roundTrip(ctx, target, wire.TypeKVDelete, safety, uint16(len(ops)), func(w *wire.Writer) {
		w.PutCString(ns)
		for _, op := range ops {
			w.PutName(op.Data.(*nameData).name)
		}
	}, safety.RequiresReply())
	if err != nil {
		return err
	}
	if safety.RequiresReply() && hdr.Count != uint16(len(ops)) {
		return juleaerr.NewProtocolMismatch("kv delete reply count %d, want %d", hdr.Count, len(ops))
	}
	return nil
}

func (s *Session) execStatusKV(ctx context.Context, target Target, ns string, ops []*batch.Operation, safety batch.Safety) error {
	if target.Local {
		for _, op := range ops {
			d := op.Data.(*statusKVData)
			v, err := s.KVBackend.Get(ctx, ns, d.key)
			if err != nil {
				return juleaerr.NewBackendOpFailed("kv get", err)
			}
			if v == nil {
				continue
			}
			m, err := DecodeMetadata(v)
			if err != nil {
				return err
			}
			applyMetadataToStatus(d.result, m)
		}
		return nil
	}
	hdr, reader, err := s.roundTrip(ctx, target, wire.TypeKVGet, safety, uint16(len(ops)), func(w *wire.Writer) {
		w.PutCString(ns)
		for _, op := range ops {
			w.PutName(op.Data.(*statusKVData).key)
		}
	}, true)
	if err != nil {
		return err
	}
	if hdr.Count != uint16(len(ops)) {
		return juleaerr.NewProtocolMismatch("status kv reply count %d, want %d", hdr.Count, len(ops))
	}
	lens := make([]uint32, len(ops))
	for i := range lens {
		if lens[i], err = reader.GetKVValueLen(); err != nil {
			return juleaerr.NewProtocolMismatch("status kv reply: %v", err)
		}
	}
	for i, op := range ops {
		d := op.Data.(*statusKVData)
		if lens[i] == 0 {
			continue
		}
		v, err := reader.GetBulk(int(lens[i]))
		if err != nil {
			return juleaerr.NewProtocolMismatch("status kv reply: %v", err)
		}
		m, err := DecodeMetadata(v)
		if err != nil {
			return err
		}
		applyMetadataToStatus(d.result, m)
	}
	return nil
}

func applyMetadataToStatus(res *StatusResult, m Metadata) {
	res.OriginalSize = m.OriginalSize
	res.TransformedSize = m.TransformedSize
	res.Type = m.Type
	res.Mode = m.Mode
}

func (s *Session) execStatusObj(ctx context.Context, target Target, ns string, ops []*batch.Operation, safety batch.Safety) error {
	if target.Local {
		for _, op := range ops {
			d := op.Data.(*statusObjData)
			h, err := s.ObjectBackend.Open(ctx, ns, d.name)
			if err != nil {
				return juleaerr.NewBackendOpFailed("open", err)
			}
			mtime, _, err := h.Status()
			_ = h.Close()
			if err != nil {
				return juleaerr.NewBackendOpFailed("status", err)
			}
			d.result.ModTime = mtime
		}
		return nil
	}
	hdr, reader, err := s.roundTrip(ctx, target, wire.TypeObjectStatus, safety, uint16(len(ops)), func(w *wire.Writer) {
		w.PutCString(ns)
		for _, op := range ops {
			w.PutName(op.Data.(*statusObjData).name)
		}
	}, true)
	if err != nil {
		return err
	}
	if hdr.Count != uint16(len(ops)) {
		return juleaerr.NewProtocolMismatch("status obj reply count %d, want %d", hdr.Count, len(ops))
	}
	for _, op := range ops {
		d := op.Data.(*statusObjData)
		mtime, _, err := reader.GetStatusReply()
		if err != nil {
			return juleaerr.NewProtocolMismatch("status obj reply: %v", err)
		}
		d.result.ModTime = time.Unix(0, mtime)
	}
	return nil
}

// --- exec: read/write (local + network) ---------------------------------

func (s *Session) execReadChunk(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
	obj := ops[0].Data.(*readData).obj
	if obj.objTarget.Local {
		h, err := s.ObjectBackend.Open(ctx, obj.namespace, obj.name)
		if err != nil {
			return juleaerr.NewBackendOpFailed("open", err)
		}
		defer h.Close()
		action := transform.Direction(obj.mode, transform.ClientRead)
		for _, op := range ops {
			d := op.Data.(*readData)
			stored := make([]byte, d.length)
			n, err := h.ReadAt(stored, d.offset)
			if err != nil && err != io.EOF {
				return juleaerr.NewBackendOpFailed("read", err)
			}
			stored = stored[:n]
			if action == transform.Inverse {
				decoded, _, err := transform.Apply(obj.typ, true, stored, d.offset, 0)
				if err != nil {
					return err
				}
				stored = decoded
			}
			copy(d.dst, stored)
			d.result.add(int64(len(stored)))
		}
		return nil
	}

	typ := readTypeAndPrefixHolder(obj.typ, obj.mode)
	var cursor int
	order := ops
	action := transform.Direction(obj.mode, transform.ClientRead)
	err := s.roundTripMulti(ctx, obj.objTarget, typ, safety, uint16(len(ops)), func(w *wire.Writer) {
		w.PutCString(obj.namespace)
		w.PutName(obj.name)
		if obj.typ != transform.None {
			w.PutTransformPrefix(uint8(obj.mode), uint8(obj.typ))
		}
		for _, op := range order {
			d := op.Data.(*readData)
			w.PutReadOp(uint64(d.length), uint64(d.offset))
		}
	}, func(payload []byte) error {
		if cursor >= len(order) {
			return juleaerr.NewProtocolMismatch("unexpected extra read reply")
		}
		d := order[cursor].Data.(*readData)
		cursor++
		if action == transform.Inverse {
			decoded, _, err := transform.Apply(obj.typ, true, payload, d.offset, 0)
			if err != nil {
				return err
			}
			payload = decoded
		}
		copy(d.dst, payload)
		d.result.add(int64(len(payload)))
		return nil
	})
	return err
}

func readTypeAndPrefixHolder(typ transform.Type, mode transform.Mode) wire.Type {
	if typ == transform.None {
		return wire.TypeObjectRead
	}
	return wire.TypeTransformationObjectRead
}

func (s *Session) execReadWhole(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
	obj := ops[0].Data.(*readData).obj
	meta, err := s.getMetadata(ctx, obj.kvTarget, obj.namespace, metadataKey(obj.name))
	if err != nil {
		return err
	}
	sizeHint := int(meta.OriginalSize)
	storedLen := int(meta.TransformedSize)

	var stored []byte
	if obj.objTarget.Local {
		h, err := s.ObjectBackend.Open(ctx, obj.namespace, obj.name)
		if err != nil {
			return juleaerr.NewBackendOpFailed("open", err)
		}
		defer h.Close()
		_, physSize, err := h.Status()
		if err != nil {
			return juleaerr.NewBackendOpFailed("status", err)
		}
		// A rewrite that shrank the encoding leaves stale bytes past
		// TransformedSize in the file.
		if storedLen > 0 && int64(storedLen) < physSize {
			physSize = int64(storedLen)
		}
		stored = make([]byte, physSize)
		if _, err := h.ReadAt(stored, 0); err != nil && err != io.EOF {
			return juleaerr.NewBackendOpFailed("read", err)
		}
	} else {
		typ := readTypeAndPrefixHolder(obj.typ, obj.mode)
		// The stored blob may be larger than the object's logical size
		// (RLE on low-redundancy input expands), so the read length must
		// come from TransformedSize, not OriginalSize: OriginalSize is
		// only the inverse transform's sizeHint below.
		err := s.roundTripMulti(ctx, obj.objTarget, typ, safety, 1, func(w *wire.Writer) {
			w.PutCString(obj.namespace)
			w.PutName(obj.name)
			w.PutTransformPrefix(uint8(obj.mode), uint8(obj.typ))
			w.PutReadOp(uint64(storedLen), 0)
		}, func(payload []byte) error {
			stored = payload
			return nil
		})
		if err != nil {
			return err
		}
	}

	action := transform.Direction(obj.mode, transform.ClientRead)
	decoded := stored
	if action == transform.Inverse {
		out, _, err := transform.Apply(obj.typ, true, stored, 0, sizeHint)
		if err != nil {
			return err
		}
		decoded = out
	}

	for _, op := range ops {
		d := op.Data.(*readData)
		lo, hi := d.offset, d.offset+d.length
		if lo > int64(len(decoded)) {
			lo = int64(len(decoded))
		}
		if hi > int64(len(decoded)) {
			hi = int64(len(decoded))
		}
		if lo < hi {
			n := copy(d.dst, decoded[lo:hi])
			d.result.add(int64(n))
		}
	}
	return nil
}

func (s *Session) execWriteChunk(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
	obj := ops[0].Data.(*writeData).obj
	if obj.objTarget.Local {
		h, err := s.ObjectBackend.Open(ctx, obj.namespace, obj.name)
		if err != nil {
			return juleaerr.NewBackendOpFailed("open", err)
		}
		defer h.Close()
		for _, op := range ops {
			d := op.Data.(*writeData)
			n, err := h.WriteAt(d.src, d.offset)
			if err != nil {
				return juleaerr.NewBackendOpFailed("write", err)
			}
			if safety != wire.SafetyNone {
				d.result.add(int64(n))
			}
		}
		if safety == wire.SafetyStorage {
			if err := h.Sync(); err != nil {
				return juleaerr.NewBackendOpFailed("sync", err)
			}
		}
		mtime, size, err := h.Status()
		if err == nil {
			_ = s.putMetadata(ctx, obj.kvTarget, obj.namespace, metadataKey(obj.name), Metadata{
				Type: obj.typ, Mode: obj.mode, OriginalSize: uint64(size), TransformedSize: uint64(size), ModTime: mtime,
			})
		}
		return nil
	}

	typ := writeTypeAndPrefixHolder(obj.typ)
	hdr, reader, err := s.roundTrip(ctx, obj.objTarget, typ, safety, uint16(len(ops)), func(w *wire.Writer) {
		w.PutCString(obj.namespace)
		w.PutName(obj.name)
		if obj.typ != transform.None {
			w.PutTransformPrefix(uint8(obj.mode), uint8(obj.typ))
		}
		for _, op := range ops {
			d := op.Data.(*writeData)
			w.PutWriteOp(uint64(d.length), uint64(d.offset))
		}
		for _, op := range ops {
			d := op.Data.(*writeData)
			w.PutBulk(d.src)
		}
	}, safety.RequiresReply())
	if err != nil {
		return err
	}

	// The remote backend has no local handle to re-Status after the
	// write, so original/transformed size are bumped from the request's
	// own offsets rather than read back from the server.
	var end int64
	for _, op := range ops {
		d := op.Data.(*writeData)
		if e := d.offset + d.length; e > end {
			end = e
		}
	}
	if meta, metaErr := s.getMetadata(ctx, obj.kvTarget, obj.namespace, metadataKey(obj.name)); metaErr == nil && end > int64(meta.OriginalSize) {
		meta.Type, meta.Mode = obj.typ, obj.mode
		meta.OriginalSize = uint64(end)
		meta.TransformedSize = uint64(end)
		meta.ModTime = time.Now()
		_ = s.putMetadata(ctx, obj.kvTarget, obj.namespace, metadataKey(obj.name), meta)
	}

	if !safety.RequiresReply() {
		return nil
	}
	if hdr.Count != uint16(len(ops)) {
		return juleaerr.NewProtocolMismatch("write reply count %d, want %d", hdr.Count, len(ops))
	}
	for _, op := range ops {
		d := op.Data.(*writeData)
		n, err := reader.GetWriteReply()
		if err != nil {
			return juleaerr.NewProtocolMismatch("write reply: %v", err)
		}
		d.result.add(int64(n))
	}
	return nil
}

func writeTypeAndPrefixHolder(typ transform.Type) wire.Type {
	if typ == transform.None {
		return wire.TypeObjectWrite
	}
	return wire.TypeTransformationObjectWrite
}

func (s *Session) execWriteWhole(ctx context.Context, ops []*batch.Operation, safety batch.Safety) error {
	obj := ops[0].Data.(*writeData).obj
	meta, err := s.getMetadata(ctx, obj.kvTarget, obj.namespace, metadataKey(obj.name))
	if err != nil {
		return err
	}
	sizeHint := int(meta.OriginalSize)
	storedLen := int(meta.TransformedSize)

	var stored []byte
	if obj.objTarget.Local {
		h, err := s.ObjectBackend.Open(ctx, obj.namespace, obj.name)
		if err != nil {
			return juleaerr.NewBackendOpFailed("open", err)
		}
		_, physSize, err := h.Status()
		if err != nil {
			_ = h.Close()
			return juleaerr.NewBackendOpFailed("status", err)
		}
		if storedLen > 0 && int64(storedLen) < physSize {
			physSize = int64(storedLen)
		}
		stored = make([]byte, physSize)
		if _, err := h.ReadAt(stored, 0); err != nil && err != io.EOF {
			_ = h.Close()
			return juleaerr.NewBackendOpFailed("read", err)
		}
		_ = h.Close()
	} else {
		typ := readTypeAndPrefixHolder(obj.typ, obj.mode)
		// Same as execReadWhole: the existing stored blob's length is
		// TransformedSize, which can exceed OriginalSize for RLE on
		// low-redundancy data. OriginalSize is only the inverse
		// transform's sizeHint below.
		if err := s.roundTripMulti(ctx, obj.objTarget, typ, safety, 1, func(w *wire.Writer) {
			w.PutCString(obj.namespace)
			w.PutName(obj.name)
			w.PutTransformPrefix(uint8(obj.mode), uint8(obj.typ))
			w.PutReadOp(uint64(storedLen), 0)
		}, func(payload []byte) error {
			stored = payload
			return nil
		}); err != nil {
			return err
		}
	}

	original := stored
	if obj.typ != transform.None && len(stored) > 0 {
		out, _, err := transform.Apply(obj.typ, true, stored, 0, sizeHint)
		if err != nil {
			return err
		}
		original = out
	}

	for _, op := range ops {
		d := op.Data.(*writeData)
		end := d.offset + d.length
		if end > int64(len(original)) {
			grown := make([]byte, end)
			copy(grown, original)
			original = grown
		}
		copy(original[d.offset:end], d.src)
	}

	encoded := original
	if obj.typ != transform.None {
		out, _, err := transform.Apply(obj.typ, false, original, 0, 0)
		if err != nil {
			return err
		}
		encoded = out
	}

	if obj.objTarget.Local {
		h, err := s.ObjectBackend.Open(ctx, obj.namespace, obj.name)
		if err != nil {
			return juleaerr.NewBackendOpFailed("open", err)
		}
		defer h.Close()
		if _, err := h.WriteAt(encoded, 0); err != nil {
			return juleaerr.NewBackendOpFailed("write", err)
		}
		if safety == wire.SafetyStorage {
			if err := h.Sync(); err != nil {
				return juleaerr.NewBackendOpFailed("sync", err)
			}
		}
	} else {
		typ := writeTypeAndPrefixHolder(obj.typ)
		_, _, err := s.roundTrip(ctx, obj.objTarget, typ, safety, 1, func(w *wire.Writer) {
			w.PutCString(obj.namespace)
			w.PutName(obj.name)
			if obj.typ != transform.None {
				w.PutTransformPrefix(uint8(obj.mode), uint8(obj.typ))
			}
			w.PutWriteOp(uint64(len(encoded)), 0)
			w.PutBulk(encoded)
		}, safety.RequiresReply())
		if err != nil {
			return err
		}
	}

	if safety != wire.SafetyNone {
		for _, op := range ops {
			d := op.Data.(*writeData)
			d.result.add(d.length)
		}
	}
	meta.OriginalSize = uint64(len(original))
	meta.TransformedSize = uint64(len(encoded))
	meta.Type, meta.Mode = obj.typ, obj.mode
	meta.ModTime = time.Now()
	return s.putMetadata(ctx, obj.kvTarget, obj.namespace, metadataKey(obj.name), meta)
}

// getMetadata fetches and decodes an object's metadata record, local or
// remote, returning the zero Metadata if no record exists yet.
func (s *Session) getMetadata(ctx context.Context, target Target, ns, key string) (Metadata, error) {
	v, err := s.GetValue(ctx, target, ns, key)
	if err != nil || v == nil {
		return Metadata{}, err
	}
	return DecodeMetadata(v)
}

// putMetadata writes back an updated metadata record after a whole-object
// write changes the object's logical or stored size.
func (s *Session) putMetadata(ctx context.Context, target Target, ns, key string, m Metadata) error {
	return s.PutValue(ctx, target, ns, key, EncodeMetadata(m), wire.SafetyNetwork)
}
