// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"sync"
)

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// GetBuffer returns a pooled, empty *bytes.Buffer.
func GetBuffer() *bytes.Buffer {
	return bufPool.Get().(*bytes.Buffer)
}

// PutBuffer resets and returns buf to the pool.
func PutBuffer(buf *bytes.Buffer) {
	buf.Reset()
	bufPool.Put(buf)
}
