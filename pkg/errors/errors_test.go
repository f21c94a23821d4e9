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

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestIsMatchesErrno(t *testing.T) {
	full := New(unix.ENOMEM, "mapping table is full")
	oom := New(unix.ENOMEM, "out of physical memory")
	wrapped := fmt.Errorf("mmap: %w", full)

	if !stderrors.Is(wrapped, unix.ENOMEM) {
		t.Errorf("errors.Is(%v, ENOMEM) = false, want true", wrapped)
	}
	if stderrors.Is(wrapped, unix.EINVAL) {
		t.Errorf("errors.Is(%v, EINVAL) = true, want false", wrapped)
	}
	if stderrors.Is(wrapped, oom) {
		t.Errorf("errors sharing an errno must stay distinct")
	}
	if !stderrors.Is(wrapped, full) {
		t.Errorf("errors.Is(%v, itself) = false, want true", wrapped)
	}
}

func TestSyscallReturn(t *testing.T) {
	for _, errno := range []unix.Errno{unix.EPERM, unix.EFAULT, unix.ENOSYS} {
		e := New(errno, errno.Error())
		if got, want := int64(e.SyscallReturn()), -int64(errno); got != want {
			t.Errorf("%v.SyscallReturn() = %d, want %d", errno, got, want)
		}
	}
}
