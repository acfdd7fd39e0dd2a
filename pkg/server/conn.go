// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net"
	"time"
)

// minThroughputBytesPerSecond is the floor used to scale a connection's
// read/write deadline by how much it has already transferred, so a client
// streaming a large write isn't cut off mid-stream by a deadline sized for
// a single small request.
const minThroughputBytesPerSecond = 4000

// graceTimeCapMultiplier caps how much extra grace an idle gap between
// writes can add, so a genuinely dead client still gets dropped eventually.
const graceTimeCapMultiplier = 3

// timeoutListener wraps accepted connections with deadline-scaling
// behavior, so one slow client can't hold a worker goroutine forever
// without timing out, while a client legitimately pushing a multi-megabyte
// write isn't penalized for the time that takes.
type timeoutListener struct {
	net.Listener
	ReadTimeout, WriteTimeout time.Duration
}

func (l *timeoutListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if l.ReadTimeout == 0 && l.WriteTimeout == 0 {
		return c, nil
	}
	return &timeoutConn{Conn: c, ReadTimeout: l.ReadTimeout, WriteTimeout: l.WriteTimeout}, nil
}

type timeoutConn struct {
	net.Conn
	ReadTimeout, WriteTimeout time.Duration
	bytesRead, bytesWritten   int64
	lastWrite                 time.Time
}

func bytesPerTimeout(timeout time.Duration) int64 {
	n := int64(float64(minThroughputBytesPerSecond) * timeout.Seconds())
	if n <= 0 {
		return 1
	}
	return n
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if c.ReadTimeout != 0 {
		multiplier := time.Duration(c.bytesRead/bytesPerTimeout(c.ReadTimeout) + 1)
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.ReadTimeout * multiplier)); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Read(b)
	if err == nil {
		c.bytesRead += int64(n)
	}
	return n, err
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if c.WriteTimeout != 0 {
		now := time.Now()
		multiplier := time.Duration(c.bytesWritten/bytesPerTimeout(c.WriteTimeout) + 1)
		deadline := c.WriteTimeout * multiplier
		if !c.lastWrite.IsZero() {
			gap := now.Sub(c.lastWrite)
			if gap > c.WriteTimeout {
				if gap > deadline*graceTimeCapMultiplier {
					gap = deadline * graceTimeCapMultiplier
				}
				deadline += gap
			}
		}
		if err := c.Conn.SetWriteDeadline(now.Add(deadline)); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Write(b)
	if err == nil {
		c.bytesWritten += int64(n)
		c.lastWrite = time.Now()
	}
	return n, err
}
