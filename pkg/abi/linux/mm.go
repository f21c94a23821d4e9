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

// Package linux contains the constants and types of this kernel's system
// call ABI.
package linux

// Protections for mmap(2).
const (
	PROT_NONE  = 0
	PROT_READ  = 1 << 0
	PROT_WRITE = 1 << 1
	PROT_EXEC  = 1 << 2
)

// Flags for mmap(2).
const (
	MAP_SHARED    = 0x01
	MAP_PRIVATE   = 0x02
	MAP_FIXED     = 0x04
	MAP_ANONYMOUS = 0x08
)

// NVMA is the number of mapping descriptors per address space.
const NVMA = 16

// Syscall numbers handled by the memory subsystem. brk, munmap and mmap use
// the RISC-V generic numbering; sbrk keeps the xv6 number.
const (
	SYS_SBRK   = 12
	SYS_BRK    = 214
	SYS_MUNMAP = 215
	SYS_MMAP   = 222
)
