// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/julea-io/julea-go/pkg/transform"
)

// Metadata is the small per-object record stored in the KV service's
// metadata side-channel: which transformation owns the object and, once
// known, its logical and stored sizes. Object create writes this record;
// status reads memoise its transformation fields rather than asking the
// object backend, which only knows the physical stored size.
type Metadata struct {
	Type            transform.Type
	Mode            transform.Mode
	OriginalSize    uint64
	TransformedSize uint64
	ModTime         time.Time
}

// metadataSize is the encoded width of Metadata: type(1) + mode(1) +
// original_size(8) + transformed_size(8) + mtime unix nanos(8).
const metadataSize = 1 + 1 + 8 + 8 + 8

// EncodeMetadata serialises m as a fixed-width little-endian record. A
// plain struct codec was chosen over a self-describing format (the record
// is never versioned independently of the binary that wrote it, and is
// never read by anything but this package).
func EncodeMetadata(m Metadata) []byte {
	buf := make([]byte, metadataSize)
	buf[0] = byte(m.Type)
	buf[1] = byte(m.Mode)
	binary.LittleEndian.PutUint64(buf[2:10], m.OriginalSize)
	binary.LittleEndian.PutUint64(buf[10:18], m.TransformedSize)
	binary.LittleEndian.PutUint64(buf[18:26], uint64(m.ModTime.UnixNano()))
	return buf
}

// DecodeMetadata parses a record written by EncodeMetadata.
func DecodeMetadata(buf []byte) (Metadata, error) {
	if len(buf) != metadataSize {
		return Metadata{}, fmt.Errorf("object: malformed metadata record: %d bytes", len(buf))
	}
	return Metadata{
		Type:            transform.Type(buf[0]),
		Mode:            transform.Mode(buf[1]),
		OriginalSize:    binary.LittleEndian.Uint64(buf[2:10]),
		TransformedSize: binary.LittleEndian.Uint64(buf[10:18]),
		ModTime:         time.Unix(0, int64(binary.LittleEndian.Uint64(buf[18:26]))),
	}, nil
}

// metadataKey is the KV key under which an object's metadata record lives,
// in the same namespace as the object itself, set apart from ordinary user
// keys by a control-character prefix. The prefix holds no NUL byte: keys
// travel over the wire as NUL-terminated strings, so a NUL would cut the
// key short on the server.
func metadataKey(name string) string {
	return "\x01meta\x01" + name
}
