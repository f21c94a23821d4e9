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

// Package pagetables provides a generic implementation of Sv39 pages
// tables.
//
// A PageTables value is not synchronized: its owner serializes every call.
// Tables may borrow root entries from a template, which is read-only once
// built and may be shared freely.
package pagetables

import (
	"fmt"
	"sync/atomic"

	"gvisor.dev/minivm/pkg/hostarch"
)

// PageTables is a set of page tables.
type PageTables struct {
	// Allocator is used to allocate nodes.
	Allocator Allocator

	// Releaser receives data frames unmapped with freeFrames set. New sets
	// it to Allocator if the allocator implements FrameReleaser.
	Releaser FrameReleaser

	// Invalidator, if set, is told about every range whose translations
	// changed.
	Invalidator Invalidator

	// root is the root table, nil once released.
	root *PTEs

	// rootPhysical is the physical address of root.
	rootPhysical uintptr

	// shared marks root entries borrowed from a template. They are never
	// written or freed through this table.
	shared [entriesPerPage]bool

	// generation is bumped by every invalidation.
	generation atomic.Uint64
}

// New returns new PageTables.
func New(a Allocator) (*PageTables, error) {
	root, err := a.NewPTEs()
	if err != nil {
		return nil, err
	}
	p := &PageTables{
		Allocator:    a,
		root:         root,
		rootPhysical: a.PhysicalFor(root),
	}
	if r, ok := a.(FrameReleaser); ok {
		p.Releaser = r
	}
	return p, nil
}

// NewWithTemplate returns new PageTables whose valid root entries are
// borrowed from tmpl. The subtrees below borrowed entries are shared with
// tmpl, not copied, so tmpl must outlive the result and must not change
// once cloned.
//
// a must be able to look up tmpl's nodes.
func NewWithTemplate(a Allocator, tmpl *PageTables) (*PageTables, error) {
	p, err := New(a)
	if err != nil {
		return nil, err
	}
	for i := range tmpl.root {
		if tmpl.shared[i] {
			panic("template page tables borrow from another template")
		}
		if tmpl.root[i].Valid() {
			p.root[i] = tmpl.root[i]
			p.shared[i] = true
		}
	}
	return p, nil
}

// RootPhysical returns the physical address of the root table, the value a
// hardware table pointer would hold.
func (p *PageTables) RootPhysical() uintptr {
	return p.rootPhysical
}

// Generation returns the number of invalidations so far.
func (p *PageTables) Generation() uint64 {
	return p.generation.Load()
}

// IsShared returns true iff the root entry covering addr is borrowed from a
// template.
func (p *PageTables) IsShared(addr hostarch.Addr) bool {
	return uintptr(addr) < MaxVA && p.shared[(uintptr(addr)>>pudShift)&indexMask]
}

func checkRange(addr hostarch.Addr, length uintptr) uintptr {
	start := uintptr(addr)
	end := start + length
	if start&(pteSize-1) != 0 || length&(pteSize-1) != 0 {
		panic(fmt.Sprintf("unaligned range [%#x, +%#x)", start, length))
	}
	if end < start || end > MaxVA {
		panic(fmt.Sprintf("range [%#x, +%#x) beyond MaxVA", start, length))
	}
	return end
}

// Map installs a mapping with the given physical address.
//
// Missing tables are allocated. If a table cannot be allocated Map returns
// linuxerr.ErrOutOfMemory and the pages installed so far stay mapped; the
// caller unwinds them.
//
// Precondition: addr, length and physical are page-aligned and no page of
// the range is already mapped.
func (p *PageTables) Map(addr hostarch.Addr, length uintptr, opts MapOpts, physical uintptr) error {
	end := checkRange(addr, length)
	if physical&(pteSize-1) != 0 {
		panic(fmt.Sprintf("unaligned physical address %#x", physical))
	}
	if length == 0 {
		return nil
	}
	w := Walker{
		pageTables: p,
		visitor: &mapVisitor{
			target:   uintptr(addr),
			physical: physical,
			opts:     opts,
		},
	}
	w.iterateRange(uintptr(addr), end)
	p.invalidate(addr, hostarch.Addr(end))
	return w.err
}

// Unmap removes the mapping of every page in the range. If freeFrames is
// set, each frame is passed to the Releaser.
//
// Every page in the range must be mapped; a hole is a caller bug and
// panics before anything is changed. Tables left empty are freed.
func (p *PageTables) Unmap(addr hostarch.Addr, length uintptr, freeFrames bool) {
	end := checkRange(addr, length)
	if length == 0 {
		return
	}
	if freeFrames && p.Releaser == nil {
		panic("Unmap with freeFrames on tables without a Releaser")
	}
	count := &countVisitor{}
	w := Walker{pageTables: p, visitor: count}
	w.iterateRange(uintptr(addr), end)
	if want := length >> pteShift; count.count != want {
		panic(fmt.Sprintf("unmap of [%#x, %#x): %d of %d pages mapped", uintptr(addr), end, count.count, want))
	}
	w = Walker{
		pageTables: p,
		visitor: &unmapVisitor{
			pageTables: p,
			freeFrames: freeFrames,
		},
	}
	w.iterateRange(uintptr(addr), end)
	p.invalidate(addr, hostarch.Addr(end))
}

// Lookup returns the physical address for addr and the options of the page
// containing it. ok is false if no valid leaf maps addr, or if requireUser
// is set and the leaf is not user-accessible.
func (p *PageTables) Lookup(addr hostarch.Addr, requireUser bool) (physical uintptr, opts MapOpts, ok bool) {
	pte := p.LookupPTE(addr)
	if pte == nil {
		return 0, MapOpts{}, false
	}
	opts = pte.Opts()
	if requireUser && !opts.User {
		return 0, MapOpts{}, false
	}
	return pte.Address() + uintptr(addr)&hostarch.PageMask, opts, true
}

// LookupPTE returns the leaf entry mapping addr, or nil.
func (p *PageTables) LookupPTE(addr hostarch.Addr) *PTE {
	va := uintptr(addr)
	if va >= MaxVA {
		return nil
	}
	entries := p.root
	for level := levels - 1; ; level-- {
		entry := &entries[(va>>(pteShift+9*level))&indexMask]
		if !entry.Valid() {
			return nil
		}
		if entry.IsLeaf() {
			if level != 0 {
				return nil
			}
			return entry
		}
		if level == 0 {
			return nil
		}
		entries = p.Allocator.LookupPTEs(entry.Address())
	}
}

// ForEach calls fn for every valid leaf in [start, end) in ascending order
// until fn returns false. fn must not change the validity of entries.
func (p *PageTables) ForEach(start, end hostarch.Addr, fn func(addr hostarch.Addr, pte *PTE) bool) {
	if end > MaxVA {
		end = MaxVA
	}
	if start >= end {
		return
	}
	w := Walker{
		pageTables: p,
		visitor:    &forEachVisitor{fn: fn},
	}
	w.iterateRange(uintptr(start.RoundDown()), uintptr(end))
}

// Release frees every table node owned by p. Borrowed entries are left to
// the template.
//
// Precondition: every private leaf has been unmapped.
func (p *PageTables) Release() {
	if p.root == nil {
		panic("page tables released twice")
	}
	for i := range p.root {
		if p.shared[i] || !p.root[i].Valid() {
			continue
		}
		p.releaseLevel(p.Allocator.LookupPTEs(p.root[i].Address()), levels-2, uintptr(i)<<pudShift)
		p.root[i].Clear()
	}
	p.Allocator.FreePTEs(p.root)
	p.root = nil
	p.rootPhysical = 0
}

func (p *PageTables) releaseLevel(entries *PTEs, level int, base uintptr) {
	for i := range entries {
		entry := &entries[i]
		if !entry.Valid() {
			continue
		}
		va := base + uintptr(i)<<(pteShift+9*level)
		if level == 0 || entry.IsLeaf() {
			panic(fmt.Sprintf("release of page tables with %#x still mapped", va))
		}
		p.releaseLevel(p.Allocator.LookupPTEs(entry.Address()), level-1, va)
	}
	p.Allocator.FreePTEs(entries)
}
