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

// Package mm provides the per-task address space.
//
// Each MemoryManager has two page tables. The user table is what the task
// runs with. The kernel-shadow table is what the kernel runs with on the
// task's behalf: it borrows the global kernel mappings from a
// KernelTemplate, holds the task's private kernel stack, and mirrors every
// user mapping with the user bit cleared, so kernel code can dereference
// user pointers without switching tables. Both tables change only through
// mapUserLocked and unmapUserLocked, which keep the mirror exact.
//
// Lock order:
//
//	mm.MemoryManager.mappingMu
//	  fsutil.FrameCache.mu
//	    pgalloc.MemoryFile.mu
package mm

import (
	"sync"

	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/ring0/pagetables"
	"gvisor.dev/minivm/pkg/sentry/fsutil"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

// MemoryManager implements a virtual address space.
//
// A MemoryManager is mutated only by its owning task, or by the kernel
// while the owner cannot run (fork, exit). mappingMu serializes those
// callers.
type MemoryManager struct {
	// mf provides every frame, including table nodes. mf is immutable.
	mf *pgalloc.MemoryFile

	// tmpl provides the global kernel mappings. tmpl is immutable.
	tmpl *KernelTemplate

	// cache holds the frames of shared file mappings. cache is immutable.
	cache *fsutil.FrameCache

	// alloc allocates the nodes of both tables. It is used only with
	// mappingMu locked.
	alloc *pagetables.FrameAllocator

	mappingMu sync.Mutex

	// userTables is the user page table. Protected by mappingMu.
	userTables *pagetables.PageTables

	// kernelTables is the kernel-shadow page table. Protected by
	// mappingMu.
	kernelTables *pagetables.PageTables

	// kstack is the frame of the kernel stack. It outlives Destroy when
	// the stack is not freed there. Protected by mappingMu.
	kstack uintptr

	// sz is the size of the program image and heap in bytes. Pages cover
	// [0, PageRoundUp(sz)). Protected by mappingMu.
	sz uint64

	// vmas is the mapping table. Protected by mappingMu.
	vmas [linux.NVMA]vma

	// destroyed is set by Destroy. Protected by mappingMu.
	destroyed bool
}

// MemoryFile returns the physical memory backing mm.
func (mm *MemoryManager) MemoryFile() *pgalloc.MemoryFile {
	return mm.mf
}

// Size returns the current heap top.
func (mm *MemoryManager) Size() uint64 {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	return mm.sz
}

// KernelStack returns the physical address of the kernel stack frame.
func (mm *MemoryManager) KernelStack() uintptr {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	return mm.kstack
}

// UserTables returns the user page table. Callers must not modify it.
func (mm *MemoryManager) UserTables() *pagetables.PageTables {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	return mm.userTables
}

// KernelTables returns the kernel-shadow page table. Callers must not
// modify it.
func (mm *MemoryManager) KernelTables() *pagetables.PageTables {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	return mm.kernelTables
}

// checkLiveLocked panics if mm has been destroyed.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) checkLiveLocked() {
	if mm.destroyed {
		panic("use of destroyed address space")
	}
}

// heapTopLocked returns the end of the last heap page.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) heapTopLocked() hostarch.Addr {
	top, _ := hostarch.PageRoundUp(mm.sz)
	return hostarch.Addr(top)
}
