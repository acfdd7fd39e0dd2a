// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/julea-io/julea-go/pkg/transform"
)

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{Type: transform.XOR, Mode: transform.ModeServer, ChunkCount: 7, ChunkSize: 1 << 16}
	got, err := DecodeMetadata(EncodeMetadata(m))
	require.NoError(t, err)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("metadata round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMetadataRejectsWrongSize(t *testing.T) {
	_, err := DecodeMetadata([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestMetadataKeyNamespacesAwayFromObjectNames(t *testing.T) {
	require.Equal(t, "\x01chunkmeta\x01big", metadataKey("big"))
}
