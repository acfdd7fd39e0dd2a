// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startEchoListener(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 1024)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(c)
		}
	}()
	return ln.Addr().String()
}

func TestPoolPopPushReuse(t *testing.T) {
	addr := startEchoListener(t)
	p := New(Options{PerHost: 2})
	defer p.Close()

	key := Key{Kind: "object", Index: 0}
	ctx := context.Background()

	c1, err := p.Pop(ctx, key, addr)
	require.NoError(t, err)
	p.Push(key, c1)

	c2, err := p.Pop(ctx, key, addr)
	require.NoError(t, err)
	require.Same(t, c1, c2)
	p.Push(key, c2)
}

func TestPoolBlocksAtCapacity(t *testing.T) {
	addr := startEchoListener(t)
	p := New(Options{PerHost: 1})
	defer p.Close()

	key := Key{Kind: "object", Index: 0}
	ctx := context.Background()

	c1, err := p.Pop(ctx, key, addr)
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = p.Pop(ctx2, key, addr)
	require.Error(t, err, "pop should block and time out while the only connection is leased")

	p.Push(key, c1)
	c2, err := p.Pop(ctx, key, addr)
	require.NoError(t, err)
	p.Push(key, c2)
}

func TestPoolDropDoesNotReuse(t *testing.T) {
	addr := startEchoListener(t)
	p := New(Options{PerHost: 1})
	defer p.Close()

	key := Key{Kind: "object", Index: 0}
	ctx := context.Background()

	c1, err := p.Pop(ctx, key, addr)
	require.NoError(t, err)
	p.Drop(key, c1)

	c2, err := p.Pop(ctx, key, addr)
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	p.Push(key, c2)
}
