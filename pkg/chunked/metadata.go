// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"encoding/binary"
	"fmt"

	"github.com/julea-io/julea-go/pkg/transform"
)

// Metadata is the tiny KV record identifying a chunked object's tiling: the
// transformation every chunk shares, how many chunks currently exist, and
// the immutable chunk size chosen at create. Each chunk additionally
// carries its own object.Metadata record, managed by pkg/object.
type Metadata struct {
	Type       transform.Type
	Mode       transform.Mode
	ChunkCount uint32
	ChunkSize  uint64
}

const metadataSize = 1 + 1 + 4 + 8

func EncodeMetadata(m Metadata) []byte {
	buf := make([]byte, metadataSize)
	buf[0] = byte(m.Type)
	buf[1] = byte(m.Mode)
	binary.LittleEndian.PutUint32(buf[2:6], m.ChunkCount)
	binary.LittleEndian.PutUint64(buf[6:14], m.ChunkSize)
	return buf
}

func DecodeMetadata(buf []byte) (Metadata, error) {
	if len(buf) != metadataSize {
		return Metadata{}, fmt.Errorf("chunked: malformed metadata record: %d bytes", len(buf))
	}
	return Metadata{
		Type:       transform.Type(buf[0]),
		Mode:       transform.Mode(buf[1]),
		ChunkCount: binary.LittleEndian.Uint32(buf[2:6]),
		ChunkSize:  binary.LittleEndian.Uint64(buf[6:14]),
	}, nil
}

func metadataKey(name string) string {
	return "\x01chunkmeta\x01" + name
}
