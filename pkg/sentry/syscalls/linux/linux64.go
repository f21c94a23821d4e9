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

// Package linux provides the syscall table of the memory subsystem.
package linux

import (
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/sentry/kernel"
)

// RISCV64 is the table of memory syscalls with their RISC-V Linux numbers.
// sbrk keeps its xv6 number.
var RISCV64 = &kernel.SyscallTable{
	Name: "riscv64",
	Table: map[uintptr]kernel.Syscall{
		linux.SYS_SBRK:   {Name: "sbrk", Fn: Sbrk},
		linux.SYS_BRK:    {Name: "brk", Fn: Brk},
		linux.SYS_MUNMAP: {Name: "munmap", Fn: Munmap},
		linux.SYS_MMAP:   {Name: "mmap", Fn: Mmap},
	},
}
