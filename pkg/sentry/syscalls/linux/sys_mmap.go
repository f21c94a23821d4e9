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

package linux

import (
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/sentry/arch"
	"gvisor.dev/minivm/pkg/sentry/kernel"
	"gvisor.dev/minivm/pkg/sentry/mm"
)

// Sbrk implements xv6 syscall sbrk(2). It returns the previous break.
func Sbrk(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	old, err := t.MemoryManager().Grow(int64(args[0].Int()))
	if err != nil {
		return 0, err
	}
	return uintptr(old), nil
}

// Brk implements linux syscall brk(2). brk(0) returns the current break;
// any other address moves the break there and returns 0.
func Brk(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	m := t.MemoryManager()
	sz := m.Size()
	if addr == 0 {
		return uintptr(sz), nil
	}
	if _, err := m.Grow(int64(addr) - int64(sz)); err != nil {
		return 0, err
	}
	return 0, nil
}

// Mmap implements linux syscall mmap(2).
func Mmap(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	length := args[1].Uint64()
	prot := args[2].Int()
	flags := args[3].Int()
	fd := args[4].Int()
	offset := args[5].Int64()

	shared := flags&linux.MAP_SHARED != 0
	private := flags&linux.MAP_PRIVATE != 0
	anon := flags&linux.MAP_ANONYMOUS != 0
	fixed := flags&linux.MAP_FIXED != 0

	// Require exactly one of MAP_SHARED and MAP_PRIVATE.
	if shared == private {
		return 0, linuxerr.EINVAL
	}
	if length == 0 || offset < 0 || offset&hostarch.PageMask != 0 {
		return 0, linuxerr.EINVAL
	}
	if prot&^(linux.PROT_READ|linux.PROT_WRITE|linux.PROT_EXEC) != 0 {
		return 0, linuxerr.EINVAL
	}
	// There is no shared anonymous memory to back such a mapping.
	if shared && anon {
		return 0, linuxerr.EINVAL
	}

	opts := mm.MMapOpts{
		Length: length,
		Addr:   addr,
		Fixed:  fixed,
		Perms: hostarch.AccessType{
			Read:    prot&linux.PROT_READ != 0,
			Write:   prot&linux.PROT_WRITE != 0,
			Execute: prot&linux.PROT_EXEC != 0,
		},
		Shared:  shared,
		Private: private,
		Offset:  offset,
	}
	if !anon {
		file, err := t.FDTable().Get(fd)
		if err != nil {
			return 0, err
		}
		defer file.DecRef()
		if !file.Readable() {
			return 0, linuxerr.EACCES
		}
		if shared && opts.Perms.Write && !file.Writable() {
			return 0, linuxerr.EACCES
		}
		opts.File = file
	}

	start, err := t.MemoryManager().MMap(opts)
	if err != nil {
		log.Debugf("%v: mmap(%v, %#x, %#x, %#x, %d, %#x) failed: %v", t, addr, length, prot, flags, fd, offset, err)
		return 0, err
	}
	return uintptr(start), nil
}

// Munmap implements linux syscall munmap(2).
func Munmap(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	if !addr.IsPageAligned() {
		return 0, linuxerr.EINVAL
	}
	return 0, t.MemoryManager().MUnmap(addr, args[1].Uint64())
}
