// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/julea-io/julea-go/pkg/backend"
	"github.com/julea-io/julea-go/pkg/juleaerr"
	"github.com/julea-io/julea-go/pkg/pool"
	"github.com/julea-io/julea-go/pkg/wire"
)

// Target names where an operation against one object namespace/name
// ultimately executes: either the process's own backend, or a specific
// pooled connection to a remote server.
type Target struct {
	Local   bool
	Key     pool.Key
	Address string
}

// ID returns a stable string identifying where this target routes, used as
// part of a batch.Operation RunKey: operations sharing an id and kind are
// safe to merge into one network message or one local-backend call.
func (t Target) ID() string {
	if t.Local {
		return "local"
	}
	return "remote:" + t.Key.String()
}

// LocalTarget routes an operation at the process's own backend.
func LocalTarget() Target { return Target{Local: true} }

// RemoteTarget routes an operation over the pool at the connection keyed by
// key, dialing address on demand.
func RemoteTarget(key pool.Key, address string) Target {
	return Target{Key: key, Address: address}
}

// Session holds everything the object/chunked packages need to execute a
// pipeline run against either backend: the optional local backends (one or
// both may be nil, per the capability-set rule that a client may have an
// object backend, a KV backend, both, or neither), and the connection pool
// used whenever a target is remote.
type Session struct {
	ObjectBackend backend.ObjectBackend
	KVBackend     backend.KVBackend
	Pool          *pool.Pool

	// MaxOperationSize bounds a single read/write pipeline operation; the
	// object/chunked layer splits larger user calls before enqueuing.
	MaxOperationSize int64

	nextID atomic.Uint32
}

func (s *Session) nextMessageID() uint32 {
	return s.nextID.Add(1)
}

// objectTargetFor returns LocalTarget if a local object backend is
// configured, else resolves to a remote target via resolve.
func (s *Session) objectTargetFor(resolve func() (pool.Key, string)) Target {
	if s.ObjectBackend != nil {
		return LocalTarget()
	}
	key, addr := resolve()
	return RemoteTarget(key, addr)
}

func (s *Session) kvTargetFor(resolve func() (pool.Key, string)) Target {
	if s.KVBackend != nil {
		return LocalTarget()
	}
	key, addr := resolve()
	return RemoteTarget(key, addr)
}

// roundTrip sends one message built by build to target and, if
// expectReply, reads and returns the matching reply. On any network or
// protocol error the connection is dropped from the pool rather than
// returned; on success it is pushed back for reuse.
func (s *Session) roundTrip(ctx context.Context, target Target, typ wire.Type, safety wire.Safety, count uint16, build func(*wire.Writer), expectReply bool) (wire.Header, *wire.Reader, error) {
	conn, err := s.Pool.Pop(ctx, target.Key, target.Address)
	if err != nil {
		return wire.Header{}, nil, juleaerr.NewNetworkTransient(err)
	}

	w := wire.NewWriter()
	build(w)

	hdr := wire.Header{
		ID:    s.nextMessageID(),
		Flags: safety.Flags(),
		Type:  typ,
		Count: count,
	}
	if err := wire.WriteMessage(conn, hdr, w); err != nil {
		s.Pool.Drop(target.Key, conn)
		return wire.Header{}, nil, juleaerr.NewNetworkTransient(err)
	}

	if !expectReply {
		s.Pool.Push(target.Key, conn)
		return wire.Header{}, nil, nil
	}

	replyHdr, reader, err := wire.ReadMessage(conn)
	if err != nil {
		s.Pool.Drop(target.Key, conn)
		var cerr *wire.ErrChecksum
		if errors.As(err, &cerr) {
			return wire.Header{}, nil, juleaerr.NewProtocolMismatch("%v", err)
		}
		return wire.Header{}, nil, juleaerr.NewNetworkTransient(err)
	}
	if replyHdr.ID != hdr.ID {
		s.Pool.Drop(target.Key, conn)
		return wire.Header{}, nil, juleaerr.NewProtocolMismatch("reply id %d does not match request id %d", replyHdr.ID, hdr.ID)
	}
	s.Pool.Push(target.Key, conn)
	return replyHdr, reader, nil
}

// roundTripMulti sends one message and then loops reading read-reply
// messages until want reply operation records have been observed in
// total, calling onReplyOp once per record's payload in order. The server
// MAY split a large read reply across multiple messages, each with its
// own operation count; this is the client-side loop that reassembles
// them.
//
// Each reply message is drained in two passes, matching the wire
// message's own layout: every record's length field (ops region) before
// any record's payload (data region). Reading length-then-payload per
// record, as a single pass would, misparses as soon as a message carries
// more than one record.
func (s *Session) roundTripMulti(ctx context.Context, target Target, typ wire.Type, safety wire.Safety, want uint16, build func(*wire.Writer), onReplyOp func([]byte) error) error {
	conn, err := s.Pool.Pop(ctx, target.Key, target.Address)
	if err != nil {
		return juleaerr.NewNetworkTransient(err)
	}

	w := wire.NewWriter()
	build(w)
	hdr := wire.Header{ID: s.nextMessageID(), Flags: safety.Flags(), Type: typ, Count: want}
	if err := wire.WriteMessage(conn, hdr, w); err != nil {
		s.Pool.Drop(target.Key, conn)
		return juleaerr.NewNetworkTransient(err)
	}

	var got uint16
	for got < want {
		replyHdr, reader, err := wire.ReadMessage(conn)
		if err != nil {
			s.Pool.Drop(target.Key, conn)
			var cerr *wire.ErrChecksum
			if errors.As(err, &cerr) {
				return juleaerr.NewProtocolMismatch("%v", err)
			}
			return juleaerr.NewNetworkTransient(err)
		}
		if replyHdr.ID != hdr.ID {
			s.Pool.Drop(target.Key, conn)
			return juleaerr.NewProtocolMismatch("reply id %d does not match request id %d", replyHdr.ID, hdr.ID)
		}
		lens := make([]uint64, replyHdr.Count)
		for i := range lens {
			if lens[i], err = reader.GetReadReplyLen(); err != nil {
				s.Pool.Drop(target.Key, conn)
				return juleaerr.NewProtocolMismatch("read reply: %v", err)
			}
		}
		for i := uint16(0); i < replyHdr.Count; i++ {
			payload, err := reader.GetBulk(int(lens[i]))
			if err != nil {
				s.Pool.Drop(target.Key, conn)
				return juleaerr.NewProtocolMismatch("read reply: %v", err)
			}
			if got < want {
				if err := onReplyOp(payload); err != nil {
					s.Pool.Drop(target.Key, conn)
					return err
				}
				got++
			}
		}
	}
	s.Pool.Push(target.Key, conn)
	return nil
}

// GetValue fetches a single KV record, local or remote, returning nil with
// no error if the key does not exist. Exported so pkg/chunked can manage
// its own small metadata record shape without duplicating the
// local-vs-network KV_GET plumbing.
func (s *Session) GetValue(ctx context.Context, target Target, ns, key string) ([]byte, error) {
	if target.Local {
		v, err := s.KVBackend.Get(ctx, ns, key)
		if err != nil {
			return nil, juleaerr.NewBackendOpFailed("kv get", err)
		}
		return v, nil
	}
	hdr, reader, err := s.roundTrip(ctx, target, wire.TypeKVGet, wire.SafetyNone, 1, func(w *wire.Writer) {
		w.PutCString(ns)
		w.PutName(key)
	}, true)
	if err != nil {
		return nil, err
	}
	if hdr.Count != 1 {
		return nil, juleaerr.NewProtocolMismatch("kv get reply count %d, want 1", hdr.Count)
	}
	v, err := reader.GetKVValue()
	if err != nil {
		return nil, juleaerr.NewProtocolMismatch("kv get reply: %v", err)
	}
	return v, nil
}

// PutValue writes a single KV record, local or remote.
func (s *Session) PutValue(ctx context.Context, target Target, ns, key string, value []byte, safety wire.Safety) error {
	if target.Local {
		kb := s.KVBackend.NewBatch(ns)
		kb.Put(key, value)
		if err := s.KVBackend.Execute(ctx, ns, kb); err != nil {
			return juleaerr.NewBackendOpFailed("kv put", err)
		}
		return nil
	}
	_, _, err := s.roundTrip(ctx, target, wire.TypeKVPut, safety, 1, func(w *wire.Writer) {
		w.PutCString(ns)
		w.PutKVPut(key, value)
	}, true)
	return err
}

// Ping round-trips a PING message against target, used by client.Ping
// (the CLI's ping subcommand) to confirm a server is reachable without
// touching any object or KV state.
func (s *Session) Ping(ctx context.Context, target Target) error {
	if target.Local {
		return nil
	}
	_, _, err := s.roundTrip(ctx, target, wire.TypePing, wire.SafetyNone, 0, func(*wire.Writer) {}, true)
	return err
}

// DeleteValue deletes a single KV record, local or remote.
func (s *Session) DeleteValue(ctx context.Context, target Target, ns, key string, safety wire.Safety) error {
	if target.Local {
		kb := s.KVBackend.NewBatch(ns)
		kb.Delete(key)
		if err := s.KVBackend.Execute(ctx, ns, kb); err != nil {
			return juleaerr.NewBackendOpFailed("kv delete", err)
		}
		return nil
	}
	_, _, err := s.roundTrip(ctx, target, wire.TypeKVDelete, safety, 1, func(w *wire.Writer) {
		w.PutCString(ns)
		w.PutName(key)
	}, safety.RequiresReply())
	return err
}
