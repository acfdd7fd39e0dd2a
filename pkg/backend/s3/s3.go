// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package s3 implements backend.ObjectBackend over AWS S3, standing in for
// JULEA's RADOS backend without reimplementing Ceph: both are remote,
// replicated object stores reached over HTTP(S)/RPC rather than a local
// filesystem. S3 objects have no native partial-write support, so a handle
// buffers the whole object in memory between Open/Create and Close, the
// same whole-object-round-trip shape the transformation object already
// needs for non-partial-access codecs (see pkg/transform).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/julea-io/julea-go/pkg/backend"
)

// Backend stores every object as one S3 key "namespace/name" in Bucket.
type Backend struct {
	client *s3.Client
	bucket string
}

// New builds an S3-backed object backend using the default AWS credential
// chain. endpoint may be empty to use AWS itself, or point at an
// S3-compatible endpoint for on-prem deployments.
func New(ctx context.Context, bucket, region, endpoint string) (*Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Backend{client: client, bucket: bucket}, nil
}

// NewWithClient wraps an already-constructed client, for tests against a
// fake S3-compatible server.
func NewWithClient(client *s3.Client, bucket string) *Backend {
	return &Backend{client: client, bucket: bucket}
}

func objectKey(namespace, name string) string {
	return namespace + "/" + name
}

func (b *Backend) Create(ctx context.Context, namespace, name string) (backend.ObjectHandle, error) {
	key := objectKey(namespace, name)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create %q: %w", key, err)
	}
	return &handle{backend: b, key: key, mtime: time.Now()}, nil
}

func (b *Backend) Open(ctx context.Context, namespace, name string) (backend.ObjectHandle, error) {
	key := objectKey(namespace, name)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: open %q: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %q: %w", key, err)
	}
	mtime := time.Now()
	if out.LastModified != nil {
		mtime = *out.LastModified
	}
	return &handle{backend: b, key: key, data: data, mtime: mtime}, nil
}

func (b *Backend) Delete(ctx context.Context, namespace, name string) error {
	key := objectKey(namespace, name)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	var nsk *types.NoSuchKey
	if err != nil && !errors.As(err, &nsk) {
		return fmt.Errorf("s3: delete %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Close() error { return nil }

// handle buffers an S3 object's full contents in memory; Sync/Close flush
// the buffer back with PutObject if it was written to.
type handle struct {
	backend *Backend
	key     string
	data    []byte
	mtime   time.Time
	dirty   bool
}

func (h *handle) ReadAt(buf []byte, off int64) (int, error) {
	if off >= int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(buf, h.data[off:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (h *handle) WriteAt(buf []byte, off int64) (int, error) {
	end := off + int64(len(buf))
	if end > int64(len(h.data)) {
		grown := make([]byte, end)
		copy(grown, h.data)
		h.data = grown
	}
	copy(h.data[off:end], buf)
	h.dirty = true
	return len(buf), nil
}

func (h *handle) Sync() error {
	if !h.dirty {
		return nil
	}
	_, err := h.backend.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(h.backend.bucket),
		Key:    aws.String(h.key),
		Body:   bytes.NewReader(h.data),
	})
	if err != nil {
		return fmt.Errorf("s3: sync %q: %w", h.key, err)
	}
	h.dirty = false
	h.mtime = time.Now()
	return nil
}

func (h *handle) Status() (time.Time, int64, error) {
	return h.mtime, int64(len(h.data)), nil
}

func (h *handle) Close() error {
	return h.Sync()
}
