// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package disk implements backend.ObjectBackend over plain files on a
// local filesystem: one file per object at path/namespace/name. It is the
// minimal reference implementation needed to run the storage core end to
// end without a remote dependency; it deliberately does not reimplement
// POSIX/GIO/RADOS-specific semantics (xattrs, striping, O_DIRECT) that are
// out of scope for this core.
package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/julea-io/julea-go/pkg/backend"
)

// Backend stores every object under a single root directory.
type Backend struct {
	root string
}

// New creates a disk-backed object backend rooted at path, creating the
// directory if needed.
func New(path string) (*Backend, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("disk: init %q: %w", path, err)
	}
	return &Backend{root: path}, nil
}

func (b *Backend) objectPath(namespace, name string) string {
	return filepath.Join(b.root, namespace, name)
}

func (b *Backend) Create(ctx context.Context, namespace, name string) (backend.ObjectHandle, error) {
	dir := filepath.Join(b.root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: mkdir %q: %w", dir, err)
	}
	f, err := os.OpenFile(b.objectPath(namespace, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		f, err = os.OpenFile(b.objectPath(namespace, name), os.O_RDWR, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("disk: create %q/%q: %w", namespace, name, err)
	}
	return &handle{f: f}, nil
}

func (b *Backend) Open(ctx context.Context, namespace, name string) (backend.ObjectHandle, error) {
	f, err := os.OpenFile(b.objectPath(namespace, name), os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %q/%q: %w", namespace, name, err)
	}
	return &handle{f: f}, nil
}

func (b *Backend) Delete(ctx context.Context, namespace, name string) error {
	if err := os.Remove(b.objectPath(namespace, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("disk: delete %q/%q: %w", namespace, name, err)
	}
	return nil
}

func (b *Backend) Close() error { return nil }

type handle struct {
	f *os.File
}

func (h *handle) ReadAt(buf []byte, off int64) (int, error)  { return h.f.ReadAt(buf, off) }
func (h *handle) WriteAt(buf []byte, off int64) (int, error) { return h.f.WriteAt(buf, off) }
func (h *handle) Sync() error                                { return h.f.Sync() }
func (h *handle) Close() error                                { return h.f.Close() }

func (h *handle) Status() (time.Time, int64, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return time.Time{}, 0, err
	}
	return fi.ModTime(), fi.Size(), nil
}
