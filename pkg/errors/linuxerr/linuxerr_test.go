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
	"testing"

	"golang.org/x/sys/unix"
	"gvisor.dev/minivm/pkg/errors"
)

func TestErrorFromUnix(t *testing.T) {
	if err := ErrorFromUnix(0); err != nil {
		t.Errorf("ErrorFromUnix(0) = %v, want nil", err)
	}
	if err := ErrorFromUnix(unix.EFAULT); err != EFAULT {
		t.Errorf("ErrorFromUnix(EFAULT) = %v, want %v", err, EFAULT)
	}
	err := ErrorFromUnix(unix.EXDEV)
	e, ok := err.(*errors.Error)
	if !ok || e.Errno() != unix.EXDEV {
		t.Errorf("ErrorFromUnix(EXDEV) = %#v, want a fresh error with errno EXDEV", err)
	}
}

func TestEquals(t *testing.T) {
	for _, tc := range []struct {
		e    *errors.Error
		err  error
		want bool
	}{
		{EINVAL, EINVAL, true},
		{EINVAL, unix.EINVAL, true},
		{EINVAL, ENOMEM, false},
		{nil, nil, true},
		{EINVAL, nil, false},
	} {
		if got := Equals(tc.e, tc.err); got != tc.want {
			t.Errorf("Equals(%v, %v) = %v, want %v", tc.e, tc.err, got, tc.want)
		}
	}
}

func TestTranslateError(t *testing.T) {
	for _, tc := range []struct {
		from error
		want *errors.Error
	}{
		{ErrOutOfMemory, ENOMEM},
		{ErrNoCapacity, ENOMEM},
		{ErrInvalidAddress, EFAULT},
		{ErrNotFound, EINVAL},
		{ErrTooLong, ENAMETOOLONG},
		{ErrWouldBlock, EAGAIN},
		{EBADF, EBADF},
	} {
		got, ok := TranslateError(tc.from)
		if !ok || got != tc.want {
			t.Errorf("TranslateError(%v) = (%v, %v), want (%v, true)", tc.from, got, ok, tc.want)
		}
	}
	if _, ok := TranslateError(unix.EINVAL); ok {
		t.Errorf("TranslateError(unix.EINVAL) succeeded without an unwrapper")
	}
}

func TestInternalErrorsAreDistinct(t *testing.T) {
	if ErrOutOfMemory == ErrNoCapacity {
		t.Errorf("ErrOutOfMemory and ErrNoCapacity are the same value")
	}
	if ToUnix(ErrOutOfMemory) != ToUnix(ErrNoCapacity) {
		t.Errorf("ErrOutOfMemory and ErrNoCapacity report different errnos")
	}
	if ToUnix(nil) != 0 {
		t.Errorf("ToUnix(nil) = %v, want 0", ToUnix(nil))
	}
}
