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

package pagetables

import (
	"fmt"
	"unsafe"

	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

// FrameAllocator allocates tables from frames of a pgalloc.MemoryFile, so
// that table nodes live in the same physical memory they describe.
//
// A FrameAllocator is not safe for concurrent use. LookupPTEs works for any
// table frame in the MemoryFile, including frames allocated by another
// FrameAllocator, which lets a table walk entries borrowed from a template.
type FrameAllocator struct {
	mf     *pgalloc.MemoryFile
	byPTEs map[*PTEs]uintptr
}

// NewFrameAllocator returns an allocator drawing from mf.
func NewFrameAllocator(mf *pgalloc.MemoryFile) *FrameAllocator {
	return &FrameAllocator{
		mf:     mf,
		byPTEs: make(map[*PTEs]uintptr),
	}
}

// NewPTEs implements Allocator.NewPTEs.
func (a *FrameAllocator) NewPTEs() (*PTEs, error) {
	physical, err := a.mf.Allocate(pgalloc.AllocOpts{Zero: true})
	if err != nil {
		return nil, err
	}
	ptes := a.ptesAt(physical)
	a.byPTEs[ptes] = physical
	return ptes, nil
}

// PhysicalFor implements Allocator.PhysicalFor.
func (a *FrameAllocator) PhysicalFor(ptes *PTEs) uintptr {
	physical, ok := a.byPTEs[ptes]
	if !ok {
		panic(fmt.Sprintf("PTEs %p not allocated here", ptes))
	}
	return physical
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *FrameAllocator) LookupPTEs(physical uintptr) *PTEs {
	return a.ptesAt(physical)
}

// FreePTEs implements Allocator.FreePTEs.
func (a *FrameAllocator) FreePTEs(ptes *PTEs) {
	physical := a.PhysicalFor(ptes)
	delete(a.byPTEs, ptes)
	a.mf.DecRef(physical)
}

// ReleaseFrame implements FrameReleaser.ReleaseFrame.
func (a *FrameAllocator) ReleaseFrame(physical uintptr) {
	a.mf.DecRef(physical)
}

// Live returns the number of tables currently allocated.
func (a *FrameAllocator) Live() int {
	return len(a.byPTEs)
}

// ptesAt views the frame at physical as a table. The frame lives in the
// host mapping of the MemoryFile, outside the Go heap.
func (a *FrameAllocator) ptesAt(physical uintptr) *PTEs {
	if physical&hostarch.PageMask != 0 {
		panic(fmt.Sprintf("table address %#x is not page-aligned", physical))
	}
	b := a.mf.Slice(physical)
	return (*PTEs)(unsafe.Pointer(&b[0]))
}
