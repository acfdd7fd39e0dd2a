// Copyright 2025 julea-go Authors
// SPDX-License-Identifier: Apache-2.0

// Package juleaerr implements the error taxonomy of the storage core:
// input validation, backend unavailability, transient network failures,
// backend operation failures, and wire-protocol mismatches. None of these
// are exceptions — every fallible call returns one of these as a normal
// Go error, wrapped with context via Unwrap.
package juleaerr

import "fmt"

// Code classifies an error into one of the taxonomy's five buckets.
type Code int

const (
	// CodeNone is the zero value; never attached to a real error.
	CodeNone Code = iota
	// CodeInputInvalid marks a synchronous validation failure: null or
	// zero arguments, offsets outside the addressable range. No I/O is
	// attempted before this is returned.
	CodeInputInvalid
	// CodeBackendUnavailable marks a failed backend module load or init.
	// Fatal for the affected backend kind at process start.
	CodeBackendUnavailable
	// CodeNetworkTransient marks a send/receive failure mid-batch. The
	// connection that produced it must be dropped, not returned to the pool.
	CodeNetworkTransient
	// CodeBackendOpFailed marks a backend create/open/read/write/delete/
	// status call that returned false/an error.
	CodeBackendOpFailed
	// CodeProtocolMismatch marks a reply whose id or operation count did
	// not match the request. Fatal for that connection.
	CodeProtocolMismatch
)

func (c Code) String() string {
	switch c {
	case CodeInputInvalid:
		return "input_invalid"
	case CodeBackendUnavailable:
		return "backend_unavailable"
	case CodeNetworkTransient:
		return "network_transient"
	case CodeBackendOpFailed:
		return "backend_op_failed"
	case CodeProtocolMismatch:
		return "protocol_mismatch"
	default:
		return "none"
	}
}

// Error is a taxonomy-tagged error. It wraps an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, juleaerr.InputInvalid) etc. work against the
// package-level sentinels below, by comparing codes rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels usable with errors.Is. They carry no message or cause; use the
// New* constructors to build a reportable error of the matching code.
var (
	InputInvalid       = &Error{Code: CodeInputInvalid}
	BackendUnavailable = &Error{Code: CodeBackendUnavailable}
	NetworkTransient   = &Error{Code: CodeNetworkTransient}
	BackendOpFailed    = &Error{Code: CodeBackendOpFailed}
	ProtocolMismatch   = &Error{Code: CodeProtocolMismatch}
)

func NewInputInvalid(format string, args ...any) *Error {
	return &Error{Code: CodeInputInvalid, Message: fmt.Sprintf(format, args...)}
}

func NewBackendUnavailable(kind string, err error) *Error {
	return &Error{Code: CodeBackendUnavailable, Message: fmt.Sprintf("backend %q unavailable", kind), Err: err}
}

func NewNetworkTransient(err error) *Error {
	return &Error{Code: CodeNetworkTransient, Message: "network operation failed", Err: err}
}

func NewBackendOpFailed(op string, err error) *Error {
	return &Error{Code: CodeBackendOpFailed, Message: fmt.Sprintf("backend op %q failed", op), Err: err}
}

func NewProtocolMismatch(format string, args ...any) *Error {
	return &Error{Code: CodeProtocolMismatch, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the taxonomy code of err, or CodeNone if err is not (or does
// not wrap) a *Error.
func CodeOf(err error) Code {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return CodeNone
	}
	return e.Code
}
