// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks for leaked goroutines across this package's tests — a
// pool that blocks pop() on a stuck semaphore acquire, or a test that forgets
// to Close() its Pool, shows up here rather than as a flaky later failure.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
