// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
)

// Reader consumes a message body sequentially: operation fields first (in
// the order the Writer appended them), then bulk payload bytes. There is a
// single cursor because ops and data were concatenated on the wire; callers
// must read exactly as many bytes of each kind as were written, in order.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf (the message body, trailer already stripped) for
// sequential consumption.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("wire: short read: need %d, have %d", n, r.Remaining())
	}
	return nil
}

func (r *Reader) GetU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) GetU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *Reader) GetU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *Reader) GetI64() (int64, error) {
	v, err := r.GetU64()
	return int64(v), err
}

// GetCString reads a NUL-terminated string, not including the terminator.
func (r *Reader) GetCString() (string, error) {
	idx := -1
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("wire: unterminated string")
	}
	s := string(r.buf[r.pos:idx])
	r.pos = idx + 1
	return s, nil
}

// GetBulk reads n raw bytes from the data region. The returned slice
// aliases the Reader's backing buffer; copy it if it must outlive the
// Reader.
func (r *Reader) GetBulk(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("wire: negative bulk length")
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}
