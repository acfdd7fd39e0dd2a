// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// This file holds the per-operation-kind field helpers named in the
// external interface: object create/delete/status carry just a name,
// object read/write carry (length, offset) plus bulk payload,
// transformation-object read/write are prefixed with (mode, type), and KV
// put carries a key, a value length, and the value bytes.

// PutName appends a create/delete/status operation record (just a name).
func (w *Writer) PutName(name string) {
	w.PutCString(name)
}

// GetName reads a create/delete/status operation record.
func (r *Reader) GetName() (string, error) {
	return r.GetCString()
}

// PutReadOp appends an OBJECT_READ-style request record.
func (w *Writer) PutReadOp(length, offset uint64) {
	w.PutU64(length)
	w.PutU64(offset)
}

// GetReadOp reads an OBJECT_READ-style request record.
func (r *Reader) GetReadOp() (length, offset uint64, err error) {
	if length, err = r.GetU64(); err != nil {
		return
	}
	offset, err = r.GetU64()
	return
}

// PutWriteOp appends an OBJECT_WRITE-style request record (length, offset);
// the caller still must PutBulk the payload bytes separately, after all
// operation records in the message have been written.
func (w *Writer) PutWriteOp(length, offset uint64) {
	w.PutU64(length)
	w.PutU64(offset)
}

// GetWriteOp reads an OBJECT_WRITE-style request record.
func (r *Reader) GetWriteOp() (length, offset uint64, err error) {
	if length, err = r.GetU64(); err != nil {
		return
	}
	offset, err = r.GetU64()
	return
}

// PutTransformPrefix appends the (mode, type) prefix carried by
// TRANSFORMATION_OBJECT_{READ,WRITE} messages in the header area, ahead of
// the per-op records.
func (w *Writer) PutTransformPrefix(mode, typ uint8) {
	w.PutU8(mode)
	w.PutU8(typ)
}

// GetTransformPrefix reads the (mode, type) prefix.
func (r *Reader) GetTransformPrefix() (mode, typ uint8, err error) {
	if mode, err = r.GetU8(); err != nil {
		return
	}
	typ, err = r.GetU8()
	return
}

// PutReadReply appends a read reply operation record: the byte count goes
// to the ops region, the payload to the data region, same as every other
// Put call. Writer.Bytes concatenates ops then data, so a message with N
// read replies lays out as nbytes0 nbytes1 ... payload0 payload1 ..., not
// interleaved per record.
func (w *Writer) PutReadReply(data []byte) {
	w.PutU64(uint64(len(data)))
	w.PutBulk(data)
}

// GetReadReplyLen reads one read reply's length field from the ops
// region. For a message with N read replies, call this once per reply in
// order to drain all N lengths before reading any payload with GetBulk:
// the payloads only start after every length has been read, mirroring the
// ops-then-data layout PutReadReply produces.
func (r *Reader) GetReadReplyLen() (uint64, error) {
	return r.GetU64()
}

// PutWriteReply appends a write reply operation record: just the observed
// byte count.
func (w *Writer) PutWriteReply(n uint64) {
	w.PutU64(n)
}

// GetWriteReply reads a write reply operation record.
func (r *Reader) GetWriteReply() (uint64, error) {
	return r.GetU64()
}

// PutStatusReply appends a status reply operation record (mtime, size).
func (w *Writer) PutStatusReply(mtime int64, size uint64) {
	w.PutI64(mtime)
	w.PutU64(size)
}

// GetStatusReply reads a status reply operation record.
func (r *Reader) GetStatusReply() (mtime int64, size uint64, err error) {
	if mtime, err = r.GetI64(); err != nil {
		return
	}
	size, err = r.GetU64()
	return
}

// PutKVPut appends a KV_PUT operation record.
func (w *Writer) PutKVPut(key string, value []byte) {
	w.PutCString(key)
	w.PutU32(uint32(len(value)))
	w.PutBulk(value)
}

// GetKVPutHeader reads a KV_PUT record's key and value length from the
// ops region. A batch of N puts places all N (key, length) pairs before
// any value; read every header first, then fetch values with GetBulk in
// a second pass.
func (r *Reader) GetKVPutHeader() (key string, length uint32, err error) {
	if key, err = r.GetCString(); err != nil {
		return
	}
	length, err = r.GetU32()
	return
}

// PutKVValue appends a length-prefixed KV value, used for KV_GET and
// iteration replies. A zero length in a KV_GET reply means the key has no
// value; an iteration reply ends with an empty-key entry (see PutKVEntry).
func (w *Writer) PutKVValue(value []byte) {
	w.PutU32(uint32(len(value)))
	w.PutBulk(value)
}

// GetKVValue reads a length-prefixed KV value. Valid only when the
// message carries a single KV_GET record; a reply batching several keys
// must read every value's length first with GetKVValueLen, then every
// payload with GetBulk, since lengths and payloads sit in separate
// regions of the wire message.
func (r *Reader) GetKVValue() ([]byte, error) {
	n, err := r.GetU32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return r.GetBulk(int(n))
}

// GetKVValueLen reads one KV value's length field from the ops region,
// for use in the first pass of a multi-record KV_GET reply.
func (r *Reader) GetKVValueLen() (uint32, error) {
	return r.GetU32()
}

// PutKVEntry appends a key plus length-prefixed value, used by
// KV_GET_ALL/KV_GET_BY_PREFIX replies. An empty key signals
// end-of-iteration.
func (w *Writer) PutKVEntry(key string, value []byte) {
	w.PutCString(key)
	w.PutKVValue(value)
}

// GetKVEntryHeader reads one iteration entry's key and value length from
// the ops region. An iteration reply batches its entries (plus the
// terminating empty-key sentinel) the same way KV_PUT batches its
// records: every header before any value. Read all headers first, then
// fetch each non-sentinel entry's value with GetBulk in a second pass.
func (r *Reader) GetKVEntryHeader() (key string, length uint32, err error) {
	if key, err = r.GetCString(); err != nil {
		return
	}
	length, err = r.GetU32()
	return
}
