// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks for leaked goroutines across this package's tests — the
// actual risk here is a worker goroutine outliving the test's cancel() call
// because serveConn is blocked on a read with no deadline.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
