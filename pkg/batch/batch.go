// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package batch implements the operation pipeline: an ordered list of
// enqueued operations, partitioned into stable runs of consecutive
// same-target same-kind operations, and executed one run at a time. This is
// what turns N user-level calls against the same object into a single
// network message carrying N operation records.
//
// The original design groups a run by (target_key, exec-function-pointer)
// identity. Go function values are not comparable, so a run here is
// identified by an explicit RunKey string that the caller derives from the
// target and operation kind (see pkg/object and pkg/chunked); the
// convention is that two operations sharing a RunKey always share the same
// Exec behavior, so the first operation in a run stands in for the whole
// run when it is time to call Exec.
package batch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/julea-io/julea-go/pkg/wire"
)

// Safety selects how many replies the server must emit for a batch's
// create/delete/write operations, and whether it must flush to stable
// storage before acknowledging. Read and status operations always elicit a
// reply regardless of Safety. It is the same enum the wire protocol encodes
// into a message's header flags, since a batch's safety level is exactly
// what tells the executor which flag bits to set on outgoing messages.
type Safety = wire.Safety

const (
	SafetyNone    = wire.SafetyNone
	SafetyNetwork = wire.SafetyNetwork
	SafetyStorage = wire.SafetyStorage
)

// RunFunc executes every operation in one run. ops share the run's RunKey
// and, by caller convention, the same Exec. It is called exactly once per
// run, in Batch.Execute's stable partition order.
type RunFunc func(ctx context.Context, ops []*Operation, safety Safety) error

// Operation is one pipeline entry: an opaque run identity, the function
// that knows how to execute a run of them, arbitrary per-operation data the
// Exec closure interprets, and an optional cleanup hook run after the batch
// has executed (used to release transformation-allocated buffers on
// whole-object writes).
type Operation struct {
	RunKey string
	Exec   RunFunc
	Data   any
	Free   func(*Operation)

	err error
}

// Err is the result of this operation's run after Execute has returned.
// Every operation in a failed run carries the run's error, even the ones
// that individually succeeded, since the pipeline does not track
// per-operation granularity inside a run — only per-run.
func (op *Operation) Err() error { return op.err }

// Batch is an ordered collection of operations executed atomically relative
// to the calling code but not to other batches: concurrent batches against
// the same object have no ordering guarantee between them.
type Batch struct {
	safety Safety
	ops    []*Operation

	bytesRead    int64
	bytesWritten int64
}

// New starts an empty batch under the given safety semantics.
func New(safety Safety) *Batch {
	return &Batch{safety: safety}
}

// Safety returns the batch's safety level.
func (b *Batch) Safety() Safety { return b.safety }

// Enqueue appends an operation to the batch. The caller's enqueue order is
// preserved within any run the operation ends up in.
func (b *Batch) Enqueue(op *Operation) {
	b.ops = append(b.ops, op)
}

// Len reports the number of enqueued operations, prior to partitioning.
func (b *Batch) Len() int { return len(b.ops) }

// AddBytesRead accumulates n into the batch's running bytes_read counter.
// Safe to call concurrently from multiple run executions (chunked objects
// fan a single user call out into many sub-batch runs).
func (b *Batch) AddBytesRead(n int64) { atomic.AddInt64(&b.bytesRead, n) }

// AddBytesWritten accumulates n into the batch's running bytes_written
// counter.
func (b *Batch) AddBytesWritten(n int64) { atomic.AddInt64(&b.bytesWritten, n) }

// BytesRead returns the cumulative bytes_read counter.
func (b *Batch) BytesRead() int64 { return atomic.LoadInt64(&b.bytesRead) }

// BytesWritten returns the cumulative bytes_written counter.
func (b *Batch) BytesWritten() int64 { return atomic.LoadInt64(&b.bytesWritten) }

// partition groups the batch's operations into stable runs of consecutive
// operations sharing a RunKey, preserving enqueue order both across runs
// and within each run.
func partition(ops []*Operation) [][]*Operation {
	var runs [][]*Operation
	i := 0
	for i < len(ops) {
		j := i + 1
		for j < len(ops) && ops[j].RunKey == ops[i].RunKey {
			j++
		}
		runs = append(runs, ops[i:j])
		i = j
	}
	return runs
}

// Execute runs every partitioned run in order and returns the logical AND
// of per-run successes: nil only if every run's Exec succeeded. A run's
// failure does not prevent sibling runs (different RunKeys) from executing;
// within a run, a NetworkTransient-class failure is expected to have
// already abandoned that run's remaining operations inside Exec itself.
// Free, where set, always runs for every operation regardless of its run's
// outcome.
func (b *Batch) Execute(ctx context.Context) error {
	runs := partition(b.ops)

	var firstErr error
	for _, run := range runs {
		err := run[0].Exec(ctx, run, b.safety)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("batch: run %q: %w", run[0].RunKey, err)
			}
			for _, op := range run {
				op.err = err
			}
		}
		for _, op := range run {
			if op.Free != nil {
				op.Free(op)
			}
		}
	}
	return firstErr
}
