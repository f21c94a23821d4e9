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

package kernel

import (
	stderrors "errors"
	"sort"

	"gvisor.dev/minivm/pkg/errors"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/metric"
	"gvisor.dev/minivm/pkg/sentry/arch"
)

var (
	syscallsInvoked = metric.MustCreateNewUint64Metric("/kernel/syscalls", "Number of syscalls dispatched through a SyscallTable.")
	syscallsFailed  = metric.MustCreateNewUint64Metric("/kernel/syscall_errors", "Number of syscalls that returned an error.")
)

func init() {
	// Syscalls may wrap a kernel error with context.
	linuxerr.AddErrorUnwrapper(func(err error) (*errors.Error, bool) {
		var e *errors.Error
		if !stderrors.As(err, &e) {
			return nil, false
		}
		return linuxerr.TranslateError(e)
	})
}

// SyscallFn is a syscall implementation. It returns the syscall result, or
// an error that Invoke translates to an errno.
type SyscallFn func(t *Task, args arch.SyscallArguments) (uintptr, error)

// Syscall includes the syscall implementation and compatibility information.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation of the syscall.
	Fn SyscallFn
}

// SyscallTable is a lookup table of system calls.
type SyscallTable struct {
	// Name identifies the ABI in logs.
	Name string

	// Table is the collection of functions, indexed by syscall number.
	Table map[uintptr]Syscall
}

// Lookup returns the syscall implementation for sysno, or nil.
func (s *SyscallTable) Lookup(sysno uintptr) SyscallFn {
	return s.Table[sysno].Fn
}

// LookupName returns the name of sysno, or "" if it is not in the table.
func (s *SyscallTable) LookupName(sysno uintptr) string {
	return s.Table[sysno].Name
}

// Numbers returns the syscall numbers in the table in ascending order.
func (s *SyscallTable) Numbers() []uintptr {
	nums := make([]uintptr, 0, len(s.Table))
	for sysno := range s.Table {
		nums = append(nums, sysno)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

// Invoke runs syscall sysno for t and returns the value the task sees in
// a0: the result on success, or the negated errno.
func (s *SyscallTable) Invoke(t *Task, sysno uintptr, args arch.SyscallArguments) uintptr {
	syscallsInvoked.Increment()
	fn := s.Lookup(sysno)
	if fn == nil {
		log.Debugf("%v: unknown %s syscall %d", t, s.Name, sysno)
		syscallsFailed.Increment()
		return errnoReturn(linuxerr.ENOSYS)
	}
	rval, err := fn(t, args)
	if err == nil {
		return rval
	}
	syscallsFailed.Increment()
	e, ok := linuxerr.TranslateError(err)
	if !ok {
		log.Warningf("%v: %s syscall %s returned untranslatable error %v", t, s.Name, s.LookupName(sysno), err)
		return errnoReturn(linuxerr.EINVAL)
	}
	log.Debugf("%v: %s syscall %s(%v, %v, %v) failed: %v", t, s.Name, s.LookupName(sysno), args[0], args[1], args[2], err)
	return errnoReturn(e)
}

func errnoReturn(e *errors.Error) uintptr {
	return e.SyscallReturn()
}
