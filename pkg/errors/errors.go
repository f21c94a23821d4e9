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

// Package errors defines the error type returned by kernel operations that
// fail with a Linux errno.
package errors

import (
	"golang.org/x/sys/unix"
)

// Error is a kernel error. It carries the errno a system call reports for
// it and a message describing the failure inside the kernel. Several
// Errors may share one errno; they are distinct values and compare
// unequal.
type Error struct {
	errno   unix.Errno
	message string
}

// New returns an Error reported to user code as errno.
func New(errno unix.Errno, message string) *Error {
	return &Error{
		errno:   errno,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Errno returns the errno reported for e.
func (e *Error) Errno() unix.Errno { return e.errno }

// Is lets errors.Is match e against the bare errno it is reported as.
func (e *Error) Is(target error) bool {
	errno, ok := target.(unix.Errno)
	return ok && errno == e.errno
}

// SyscallReturn returns the value a failing system call leaves in the
// return register: the negated errno.
func (e *Error) SyscallReturn() uintptr {
	return uintptr(-int64(e.errno))
}
