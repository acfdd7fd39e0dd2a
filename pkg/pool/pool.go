// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool implements a process-wide pool of leased TCP connections to
// storage servers, keyed by (backend kind, server index). It is adapted
// from the generic per-host gRPC connection pool pattern, but unlike that
// pool — whose gRPC connections are cheap and multiplexed, so it hands them
// out lazily without bound — this one leases raw, exclusively-owned
// connections and must actually block callers once a host's connection
// count reaches its configured cap.
package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/julea-io/julea-go/pkg/logger"
)

// Key identifies a per-(backend kind, server index) sub-pool.
type Key struct {
	Kind  string
	Index uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.Index)
}

// Dialer opens a new connection to address.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// DefaultDialer dials TCP and disables Nagle's algorithm on the new
// connection, as required of every pooled connection regardless of which
// side originated it.
func DefaultDialer(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return c, nil
}

// Options configure a Pool.
type Options struct {
	// PerHost is the maximum number of connections leased concurrently per
	// Key. pop blocks once this many are outstanding, unless AllowOverflow
	// is set.
	PerHost int
	// AllowOverflow permits pop to dial beyond PerHost rather than block,
	// at the cost of those extra connections always being closed (never
	// returned to idle) on push.
	AllowOverflow bool
	Dial          Dialer
}

func DefaultOptions() Options {
	return Options{PerHost: 4, Dial: DefaultDialer}
}

// Pool leases connections to multiple (kind, index) targets, at most
// Options.PerHost concurrently leased per target.
type Pool struct {
	mu     sync.Mutex
	hosts  map[Key]*hostPool
	opts   Options
	closed atomic.Bool
}

func New(opts Options) *Pool {
	if opts.PerHost <= 0 {
		opts.PerHost = 4
	}
	if opts.Dial == nil {
		opts.Dial = DefaultDialer
	}
	return &Pool{hosts: make(map[Key]*hostPool), opts: opts}
}

type hostPool struct {
	key     Key
	address string
	sem     *semaphore.Weighted
	opts    Options

	mu   sync.Mutex
	idle []net.Conn
}

func (p *Pool) getOrCreate(key Key, address string) *hostPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	hp, ok := p.hosts[key]
	if ok {
		return hp
	}
	weight := int64(p.opts.PerHost)
	if p.opts.AllowOverflow {
		weight = int64(1 << 30)
	}
	hp = &hostPool{
		key:     key,
		address: address,
		sem:     semaphore.NewWeighted(weight),
		opts:    p.opts,
	}
	p.hosts[key] = hp
	return hp
}

// Pop leases a connection for key/address, blocking if PerHost connections
// are already leased and overflow is not allowed.
func (p *Pool) Pop(ctx context.Context, key Key, address string) (net.Conn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("pool: closed")
	}
	hp := p.getOrCreate(key, address)
	if err := hp.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	hp.mu.Lock()
	if n := len(hp.idle); n > 0 {
		c := hp.idle[n-1]
		hp.idle = hp.idle[:n-1]
		hp.mu.Unlock()
		return c, nil
	}
	hp.mu.Unlock()

	c, err := p.opts.Dial(ctx, address)
	if err != nil {
		hp.sem.Release(1)
		return nil, err
	}
	logger.Debug().Str("key", key.String()).Str("address", address).Msg("dialed new pooled connection")
	return c, nil
}

// Push returns a leased connection to the idle set for reuse.
func (p *Pool) Push(key Key, c net.Conn) {
	hp := p.lookup(key)
	if hp == nil {
		_ = c.Close()
		return
	}
	hp.mu.Lock()
	if p.opts.AllowOverflow && len(hp.idle) >= p.opts.PerHost {
		hp.mu.Unlock()
		_ = c.Close()
		hp.sem.Release(1)
		return
	}
	hp.idle = append(hp.idle, c)
	hp.mu.Unlock()
	hp.sem.Release(1)
}

// Drop closes a leased connection instead of returning it — the caller's
// contract when a NetworkTransient or ProtocolMismatch error touched this
// connection.
func (p *Pool) Drop(key Key, c net.Conn) {
	_ = c.Close()
	if hp := p.lookup(key); hp != nil {
		hp.sem.Release(1)
	}
}

func (p *Pool) lookup(key Key) *hostPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hosts[key]
}

// Close closes every idle connection in the pool. Leased connections are
// closed by their holders via Push/Drop.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.mu.Lock()
	hosts := p.hosts
	p.hosts = make(map[Key]*hostPool)
	p.mu.Unlock()

	for _, hp := range hosts {
		hp.mu.Lock()
		for _, c := range hp.idle {
			_ = c.Close()
		}
		hp.idle = nil
		hp.mu.Unlock()
	}
	return nil
}
