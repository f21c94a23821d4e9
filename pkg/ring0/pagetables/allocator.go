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

	"gvisor.dev/minivm/pkg/errors/linuxerr"
)

// Allocator is used to allocate and map PTEs.
//
// Note that allocators may be called concurrently by different tables only
// if the implementation says so.
type Allocator interface {
	// NewPTEs returns a new set of zeroed PTEs and its physical address.
	// It returns linuxerr.ErrOutOfMemory when no memory is left.
	NewPTEs() (*PTEs, error)

	// PhysicalFor gives the physical address for a set of PTEs returned
	// by NewPTEs.
	PhysicalFor(ptes *PTEs) uintptr

	// LookupPTEs looks up PTEs by physical address.
	LookupPTEs(physical uintptr) *PTEs

	// FreePTEs marks a set of PTEs as freed.
	FreePTEs(ptes *PTEs)
}

// FrameReleaser releases data frames when a mapping is removed with
// freeFrames set.
type FrameReleaser interface {
	// ReleaseFrame drops the table's ownership of the frame at physical.
	ReleaseFrame(physical uintptr)
}

// runtimeBase is the first fake physical address handed out by a
// RuntimeAllocator.
const runtimeBase = 1 << 32

// RuntimeAllocator is a trivial allocator backed by the Go heap, with fake
// physical addresses. It is used in tests only.
type RuntimeAllocator struct {
	next   uintptr
	byAddr map[uintptr]*PTEs
	byPTEs map[*PTEs]uintptr

	// limit is the maximum number of live tables, or zero for no limit.
	limit int

	// Released records frames passed to ReleaseFrame.
	Released []uintptr
}

// NewRuntimeAllocator returns an allocator that uses the Go heap.
func NewRuntimeAllocator() *RuntimeAllocator {
	return &RuntimeAllocator{
		next:   runtimeBase,
		byAddr: make(map[uintptr]*PTEs),
		byPTEs: make(map[*PTEs]uintptr),
	}
}

// SetLimit bounds the number of live tables. Zero removes the bound.
func (r *RuntimeAllocator) SetLimit(n int) {
	r.limit = n
}

// Used returns the number of live tables.
func (r *RuntimeAllocator) Used() int {
	return len(r.byAddr)
}

// NewPTEs implements Allocator.NewPTEs.
func (r *RuntimeAllocator) NewPTEs() (*PTEs, error) {
	if r.limit != 0 && len(r.byAddr) >= r.limit {
		return nil, linuxerr.ErrOutOfMemory
	}
	ptes := new(PTEs)
	r.byAddr[r.next] = ptes
	r.byPTEs[ptes] = r.next
	r.next += pteSize
	return ptes, nil
}

// PhysicalFor implements Allocator.PhysicalFor.
func (r *RuntimeAllocator) PhysicalFor(ptes *PTEs) uintptr {
	physical, ok := r.byPTEs[ptes]
	if !ok {
		panic(fmt.Sprintf("PTEs %p not allocated here", ptes))
	}
	return physical
}

// LookupPTEs implements Allocator.LookupPTEs.
func (r *RuntimeAllocator) LookupPTEs(physical uintptr) *PTEs {
	ptes, ok := r.byAddr[physical]
	if !ok {
		panic(fmt.Sprintf("no PTEs at physical %#x", physical))
	}
	return ptes
}

// FreePTEs implements Allocator.FreePTEs.
func (r *RuntimeAllocator) FreePTEs(ptes *PTEs) {
	physical := r.PhysicalFor(ptes)
	delete(r.byAddr, physical)
	delete(r.byPTEs, ptes)
}

// ReleaseFrame implements FrameReleaser.ReleaseFrame.
func (r *RuntimeAllocator) ReleaseFrame(physical uintptr) {
	r.Released = append(r.Released, physical)
}
