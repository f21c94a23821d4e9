// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package linuxerr

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/minivm/pkg/errors"
)

// Internal errors of the memory subsystem. Each carries the errno a system
// call reports for it, but they are distinct values so callers can tell the
// failure kinds apart. TranslateError maps them to the exported errno
// values.
var (
	// ErrOutOfMemory is returned when a frame or a page table node cannot
	// be allocated. Partial work has been unwound when it is returned.
	ErrOutOfMemory = errors.New(unix.ENOMEM, "out of physical memory")

	// ErrInvalidAddress is returned when a copy or translation touches an
	// unmapped or wrongly permissioned virtual address.
	ErrInvalidAddress = errors.New(unix.EFAULT, "invalid user address")

	// ErrNotFound is returned when an unmap request matches no committed
	// mapping exactly.
	ErrNotFound = errors.New(unix.EINVAL, "no mapping matches the range")

	// ErrNoCapacity is returned when every mapping descriptor of an
	// address space is committed.
	ErrNoCapacity = errors.New(unix.ENOMEM, "mapping table is full")

	// ErrTooLong is returned when a user string has no terminator within
	// the allowed length.
	ErrTooLong = errors.New(unix.ENAMETOOLONG, "string exceeds maximum length")

	// ErrWouldBlock is returned by file implementations when an operation
	// cannot be satisfied immediately and should be retried.
	ErrWouldBlock = errors.New(unix.EWOULDBLOCK, "request would block")
)

var errorMap = map[error]*errors.Error{
	ErrOutOfMemory:    ENOMEM,
	ErrInvalidAddress: EFAULT,
	ErrNotFound:       EINVAL,
	ErrNoCapacity:     ENOMEM,
	ErrTooLong:        ENAMETOOLONG,
	ErrWouldBlock:     EAGAIN,
}

// errorUnwrappers is an array of unwrap functions to extract typed errors.
var errorUnwrappers = []func(error) (*errors.Error, bool){}

// AddErrorUnwrapper registers an unwrap method that can extract a concrete error
// from a typed, but not initialized, error.
func AddErrorUnwrapper(unwrap func(e error) (*errors.Error, bool)) {
	errorUnwrappers = append(errorUnwrappers, unwrap)
}

// TranslateError translates errors to errnos, it will return false if
// the error was not registered.
func TranslateError(from error) (*errors.Error, bool) {
	if err, ok := errorMap[from]; ok {
		return err, true
	}
	if err, ok := from.(*errors.Error); ok {
		return err, true
	}
	// Try to unwrap the error if we couldn't match an error
	// exactly. This might mean that a package has its own
	// error type.
	for _, unwrap := range errorUnwrappers {
		if err, ok := unwrap(from); ok {
			return err, true
		}
	}
	return nil, false
}
