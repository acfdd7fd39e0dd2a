// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package object

// rangeChunk is one (offset, length) slice of a larger user request, plus
// where in the caller's original buffer its bytes belong.
type rangeChunk struct {
	offset, length int64
	bufOff         int64
}

// splitRange divides [offset, offset+length) into chunks no larger than
// maxSize, each carrying its position within the original buffer so the
// caller can slice into it directly. Large per-operation payloads must be
// split at the API boundary into multiple same-kind operations before
// being enqueued; this is that split.
func splitRange(offset, length, maxSize int64) []rangeChunk {
	if maxSize <= 0 {
		return []rangeChunk{{offset: offset, length: length}}
	}
	var chunks []rangeChunk
	for remaining, off, bufOff := length, offset, int64(0); remaining > 0; {
		n := remaining
		if n > maxSize {
			n = maxSize
		}
		chunks = append(chunks, rangeChunk{offset: off, length: n, bufOff: bufOff})
		remaining -= n
		off += n
		bufOff += n
	}
	return chunks
}
