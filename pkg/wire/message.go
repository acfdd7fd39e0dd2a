// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the binary request/reply protocol spoken between
// clients and storage servers: a fixed header, a region of per-operation
// fields, and an append-only region for bulk data and strings. Writers
// append fields in order; readers consume them in the same order, matching
// the wire format described for the storage core's network layer.
package wire

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/minio/crc64nvme"
)

var crc64Pool = sync.Pool{
	New: func() any { return crc64nvme.New() },
}

// Type identifies the kind of a message.
type Type uint8

const (
	TypeNone Type = iota
	TypeObjectCreate
	TypeObjectDelete
	TypeObjectRead
	TypeObjectWrite
	TypeObjectStatus
	TypeTransformationObjectCreate
	TypeTransformationObjectDelete
	TypeTransformationObjectRead
	TypeTransformationObjectWrite
	TypeTransformationObjectStatus
	TypeKVPut
	TypeKVDelete
	TypeKVGet
	TypeKVGetAll
	TypeKVGetByPrefix
	TypeStatistics
	TypePing
)

func (t Type) String() string {
	switch t {
	case TypeObjectCreate:
		return "OBJECT_CREATE"
	case TypeObjectDelete:
		return "OBJECT_DELETE"
	case TypeObjectRead:
		return "OBJECT_READ"
	case TypeObjectWrite:
		return "OBJECT_WRITE"
	case TypeObjectStatus:
		return "OBJECT_STATUS"
	case TypeTransformationObjectCreate:
		return "TRANSFORMATION_OBJECT_CREATE"
	case TypeTransformationObjectDelete:
		return "TRANSFORMATION_OBJECT_DELETE"
	case TypeTransformationObjectRead:
		return "TRANSFORMATION_OBJECT_READ"
	case TypeTransformationObjectWrite:
		return "TRANSFORMATION_OBJECT_WRITE"
	case TypeTransformationObjectStatus:
		return "TRANSFORMATION_OBJECT_STATUS"
	case TypeKVPut:
		return "KV_PUT"
	case TypeKVDelete:
		return "KV_DELETE"
	case TypeKVGet:
		return "KV_GET"
	case TypeKVGetAll:
		return "KV_GET_ALL"
	case TypeKVGetByPrefix:
		return "KV_GET_BY_PREFIX"
	case TypeStatistics:
		return "STATISTICS"
	case TypePing:
		return "PING"
	default:
		return "NONE"
	}
}

// Flags bits carried in the header.
const (
	FlagReply          uint8 = 0x01
	FlagSafetyStorage  uint8 = 0x02
	FlagSafetyNetwork  uint8 = 0x04
)

// Safety is the per-batch reply-synchrony and durability knob.
type Safety uint8

const (
	SafetyNone Safety = iota
	SafetyNetwork
	SafetyStorage
)

func (s Safety) String() string {
	switch s {
	case SafetyNetwork:
		return "NETWORK"
	case SafetyStorage:
		return "STORAGE"
	default:
		return "NONE"
	}
}

// RequiresReply reports whether a create/delete/write group must wait for a
// server reply under this safety level. Read and status always reply
// regardless.
func (s Safety) RequiresReply() bool { return s != SafetyNone }

// Flags returns the header bits for this safety level.
func (s Safety) Flags() uint8 {
	switch s {
	case SafetyStorage:
		return FlagSafetyStorage
	case SafetyNetwork:
		return FlagSafetyNetwork
	default:
		return 0
	}
}

// SafetyFromFlags recovers the safety level from header flags. STORAGE takes
// precedence if both bits are somehow set.
func SafetyFromFlags(flags uint8) Safety {
	switch {
	case flags&FlagSafetyStorage != 0:
		return SafetyStorage
	case flags&FlagSafetyNetwork != 0:
		return SafetyNetwork
	default:
		return SafetyNone
	}
}

// HeaderSize is the wire size of Header in bytes.
const HeaderSize = 4 + 4 + 1 + 1 + 2

// Header is the fixed, little-endian message header.
type Header struct {
	Length uint32 // total payload bytes following the header (ops + data + trailer)
	ID     uint32 // monotonic per-connection message id
	Flags  uint8
	Type   Type
	Count  uint16 // number of logical operations in this message
}

func (h Header) IsReply() bool { return h.Flags&FlagReply != 0 }
func (h Header) Safety() Safety { return SafetyFromFlags(h.Flags) }
func (h Header) RequiresReply() bool {
	return h.Safety() != SafetyNone
}

// Encode writes the header in wire order into buf, which must be at least
// HeaderSize bytes.
func (h Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Length)
	binary.LittleEndian.PutUint32(buf[4:8], h.ID)
	buf[8] = h.Flags
	buf[9] = byte(h.Type)
	binary.LittleEndian.PutUint16(buf[10:12], h.Count)
}

// DecodeHeader parses HeaderSize bytes of buf into a Header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header: %d bytes", len(buf))
	}
	return Header{
		Length: binary.LittleEndian.Uint32(buf[0:4]),
		ID:     binary.LittleEndian.Uint32(buf[4:8]),
		Flags:  buf[8],
		Type:   Type(buf[9]),
		Count:  binary.LittleEndian.Uint16(buf[10:12]),
	}, nil
}

// trailerSize is the width of the CRC64 integrity trailer appended after
// the ops and data regions of every message body.
const trailerSize = 8

func checksum(parts ...[]byte) uint64 {
	h := crc64Pool.Get().(hash.Hash64)
	h.Reset()
	defer crc64Pool.Put(h)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum64()
}

// ReadMessage reads one full message (header, ops+data body, trailer) from
// r and returns the header plus a Reader positioned at the start of the ops
// region. It verifies the CRC64 trailer and returns a ProtocolMismatch-class
// error (via *wire.ErrChecksum) if it does not match.
func ReadMessage(r io.Reader) (Header, *Reader, error) {
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return Header{}, nil, err
	}
	hdr, err := DecodeHeader(hb[:])
	if err != nil {
		return Header{}, nil, err
	}
	if hdr.Length < trailerSize {
		return Header{}, nil, fmt.Errorf("wire: message length %d shorter than trailer", hdr.Length)
	}
	body := make([]byte, hdr.Length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, err
	}
	payload, trailer := body[:len(body)-trailerSize], body[len(body)-trailerSize:]
	want := binary.LittleEndian.Uint64(trailer)
	got := checksum(hb[:], payload)
	if got != want {
		return Header{}, nil, &ErrChecksum{Want: want, Got: got}
	}
	return hdr, NewReader(payload), nil
}

// ErrChecksum indicates the trailing CRC64 did not match; the connection
// that produced it must be dropped rather than returned to the pool.
type ErrChecksum struct {
	Want, Got uint64
}

func (e *ErrChecksum) Error() string {
	return fmt.Sprintf("wire: checksum mismatch: want %x got %x", e.Want, e.Got)
}

// WriteMessage serialises hdr plus the contents of w (ops region then data
// region) plus the CRC64 trailer, and writes the whole thing to dst in one
// call.
func WriteMessage(dst io.Writer, hdr Header, w *Writer) error {
	ops, data := w.Bytes()
	hdr.Length = uint32(len(ops)+len(data)) + trailerSize

	var hb [HeaderSize]byte
	hdr.Encode(hb[:])

	sum := checksum(hb[:], ops, data)
	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint64(trailer[:], sum)

	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(hb[:])
	buf.Write(ops)
	buf.Write(data)
	buf.Write(trailer[:])

	_, err := dst.Write(buf.Bytes())
	return err
}
