// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func countingExec(calls *int) RunFunc {
	return func(ctx context.Context, ops []*Operation, safety Safety) error {
		*calls++
		return nil
	}
}

func TestPartitionGroupsConsecutiveSameKey(t *testing.T) {
	var aCalls, bCalls int
	b := New(SafetyNone)
	b.Enqueue(&Operation{RunKey: "obj-a:read", Exec: countingExec(&aCalls)})
	b.Enqueue(&Operation{RunKey: "obj-a:read", Exec: countingExec(&aCalls)})
	b.Enqueue(&Operation{RunKey: "obj-b:write", Exec: countingExec(&bCalls)})
	b.Enqueue(&Operation{RunKey: "obj-a:read", Exec: countingExec(&aCalls)})

	require.NoError(t, b.Execute(context.Background()))
	// Two runs of "obj-a:read" (non-consecutive) plus one "obj-b:write".
	require.Equal(t, 2, aCalls)
	require.Equal(t, 1, bCalls)
}

func TestExecuteCallsExecOncePerRunWithAllOps(t *testing.T) {
	var sizes []int
	b := New(SafetyNone)
	exec := func(ctx context.Context, ops []*Operation, safety Safety) error {
		sizes = append(sizes, len(ops))
		return nil
	}
	b.Enqueue(&Operation{RunKey: "o", Exec: exec})
	b.Enqueue(&Operation{RunKey: "o", Exec: exec})
	b.Enqueue(&Operation{RunKey: "o", Exec: exec})

	require.NoError(t, b.Execute(context.Background()))
	require.Equal(t, []int{3}, sizes)
}

func TestExecuteAggregatesFailureButRunsSiblings(t *testing.T) {
	var ran []string
	b := New(SafetyNone)
	b.Enqueue(&Operation{RunKey: "fail", Exec: func(ctx context.Context, ops []*Operation, safety Safety) error {
		ran = append(ran, "fail")
		return errors.New("boom")
	}})
	b.Enqueue(&Operation{RunKey: "ok", Exec: func(ctx context.Context, ops []*Operation, safety Safety) error {
		ran = append(ran, "ok")
		return nil
	}})

	err := b.Execute(context.Background())
	require.Error(t, err)
	require.ElementsMatch(t, []string{"fail", "ok"}, ran)
}

func TestOperationErrPropagatedToSiblings(t *testing.T) {
	failErr := errors.New("boom")
	op1 := &Operation{RunKey: "r"}
	op2 := &Operation{RunKey: "r"}
	exec := func(ctx context.Context, ops []*Operation, safety Safety) error {
		return failErr
	}
	op1.Exec, op2.Exec = exec, exec

	b := New(SafetyNone)
	b.Enqueue(op1)
	b.Enqueue(op2)
	require.Error(t, b.Execute(context.Background()))
	require.ErrorIs(t, op1.Err(), failErr)
	require.ErrorIs(t, op2.Err(), failErr)
}

func TestFreeAlwaysRunsRegardlessOfOutcome(t *testing.T) {
	var freed []string
	mkFree := func(name string) func(*Operation) {
		return func(*Operation) { freed = append(freed, name) }
	}

	b := New(SafetyNone)
	b.Enqueue(&Operation{
		RunKey: "fail",
		Exec:   func(ctx context.Context, ops []*Operation, safety Safety) error { return errors.New("x") },
		Free:   mkFree("fail"),
	})
	b.Enqueue(&Operation{
		RunKey: "ok",
		Exec:   func(ctx context.Context, ops []*Operation, safety Safety) error { return nil },
		Free:   mkFree("ok"),
	})

	_ = b.Execute(context.Background())
	require.ElementsMatch(t, []string{"fail", "ok"}, freed)
}

func TestByteCounters(t *testing.T) {
	b := New(SafetyNone)
	b.AddBytesRead(100)
	b.AddBytesRead(50)
	b.AddBytesWritten(7)
	require.Equal(t, int64(150), b.BytesRead())
	require.Equal(t, int64(7), b.BytesWritten())
}

func TestSafetyRequiresReply(t *testing.T) {
	require.False(t, SafetyNone.RequiresReply())
	require.True(t, SafetyNetwork.RequiresReply())
	require.True(t, SafetyStorage.RequiresReply())
}
