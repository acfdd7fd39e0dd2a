// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
)

// Writer accumulates a message body: an "ops" region of fixed per-operation
// fields and names/keys, and a "data" region of append-only bulk payload
// bytes (write data on the way in, read data on the way out). Fields are
// appended in call order; a Reader built from the resulting bytes must
// consume them in the same order.
type Writer struct {
	ops  []byte
	data []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Reset clears the writer for reuse.
func (w *Writer) Reset() {
	w.ops = w.ops[:0]
	w.data = w.data[:0]
}

// Count-agnostic field appenders. All write into the ops region; the final
// message header's Count carries how many logical operations these
// describe, tracked by the caller.

func (w *Writer) PutU8(v uint8) {
	w.ops = append(w.ops, v)
}

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.ops = append(w.ops, b[:]...)
}

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.ops = append(w.ops, b[:]...)
}

func (w *Writer) PutI64(v int64) {
	w.PutU64(uint64(v))
}

// PutCString appends s followed by a NUL terminator, as the spec's
// NUL-terminated string primitive (length includes the terminator).
func (w *Writer) PutCString(s string) {
	w.ops = append(w.ops, s...)
	w.ops = append(w.ops, 0)
}

// PutBulk appends raw bytes to the data (append-only bulk) region, used for
// write payloads on requests and read payloads on replies.
func (w *Writer) PutBulk(b []byte) {
	w.data = append(w.data, b...)
}

// Bytes returns the accumulated ops and data regions. The slices are owned
// by the Writer and must not be retained past the next Reset.
func (w *Writer) Bytes() (ops, data []byte) {
	return w.ops, w.data
}
