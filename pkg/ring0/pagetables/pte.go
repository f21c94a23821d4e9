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

	"gvisor.dev/minivm/pkg/hostarch"
)

// Sv39 page table entry bits.
const (
	valid      = 1 << 0
	readable   = 1 << 1
	writable   = 1 << 2
	executable = 1 << 3
	user       = 1 << 4
	global     = 1 << 5
	accessed   = 1 << 6
	dirty      = 1 << 7

	// ppnShift is the position of the physical page number in an entry.
	ppnShift = 10

	// ppnMask covers the 44 bit physical page number.
	ppnMask = (1 << 44) - 1

	leafMask   = readable | writable | executable
	optionMask = leafMask | user | global
)

// Page table geometry.
const (
	pteShift = hostarch.PageShift
	pmdShift = pteShift + 9
	pudShift = pmdShift + 9

	pteSize = 1 << pteShift
	pmdSize = 1 << pmdShift
	pudSize = 1 << pudShift

	levels         = 3
	entriesPerPage = 512
	indexMask      = entriesPerPage - 1

	// MaxVA is one beyond the highest virtual address. Sv39 allows 39
	// bits; the top bit is left unused so that addresses never need sign
	// extension.
	MaxVA = 1 << (pudShift + 8)
)

// MapOpts are the mapping options carried by a leaf entry.
type MapOpts struct {
	// AccessType defines permissions.
	AccessType hostarch.AccessType

	// User indicates the page is user-accessible.
	User bool

	// Global indicates the page is present in every address space.
	Global bool
}

// String implements fmt.Stringer.String.
func (o MapOpts) String() string {
	s := o.AccessType.String()
	if o.User {
		s += "u"
	} else {
		s += "-"
	}
	if o.Global {
		s += "g"
	} else {
		s += "-"
	}
	return s
}

// PTE is a page table entry.
type PTE uintptr

// PTEs is a collection of entries. It is exactly one frame.
type PTEs [entriesPerPage]PTE

// Valid returns true iff this entry is valid.
func (p *PTE) Valid() bool {
	return *p&valid != 0
}

// IsLeaf returns true iff this entry maps a frame rather than pointing to
// the next level.
func (p *PTE) IsLeaf() bool {
	return p.Valid() && *p&leafMask != 0
}

// Opts returns the mapping options of a leaf.
func (p *PTE) Opts() MapOpts {
	return MapOpts{
		AccessType: hostarch.AccessType{
			Read:    *p&readable != 0,
			Write:   *p&writable != 0,
			Execute: *p&executable != 0,
		},
		User:   *p&user != 0,
		Global: *p&global != 0,
	}
}

// Address extracts the physical address of the frame or table this entry
// points to.
func (p *PTE) Address() uintptr {
	return (uintptr(*p) >> ppnShift & ppnMask) << pteShift
}

// Accessed returns true iff the hardware has recorded an access through
// this entry.
func (p *PTE) Accessed() bool {
	return *p&accessed != 0
}

// Dirty returns true iff the hardware has recorded a write through this
// entry.
func (p *PTE) Dirty() bool {
	return *p&dirty != 0
}

// SetAccessed records an access. If write is set, the entry is also marked
// dirty.
func (p *PTE) SetAccessed(write bool) {
	*p |= accessed
	if write {
		*p |= dirty
	}
}

// ClearDirty clears the dirty bit.
func (p *PTE) ClearDirty() {
	*p &^= dirty
}

// Clear clears this entry.
func (p *PTE) Clear() {
	*p = 0
}

// Set sets this entry to map addr with the given options.
//
// Sv39 reserves writable entries that are not readable, and an entry with
// no permission at all would point to another table, so both are rejected.
func (p *PTE) Set(addr uintptr, opts MapOpts) {
	if !opts.AccessType.Any() {
		panic(fmt.Sprintf("leaf for %#x has no permissions", addr))
	}
	if opts.AccessType.Write && !opts.AccessType.Read {
		panic(fmt.Sprintf("leaf for %#x is writable but not readable", addr))
	}
	v := PTE(valid)
	if opts.AccessType.Read {
		v |= readable
	}
	if opts.AccessType.Write {
		v |= writable
	}
	if opts.AccessType.Execute {
		v |= executable
	}
	if opts.User {
		v |= user
	}
	if opts.Global {
		v |= global
	}
	*p = v | pteFor(addr)
}

// setPageTable sets this entry as a pointer to the given table.
func (p *PTE) setPageTable(pt *PageTables, ptes *PTEs) {
	*p = valid | pteFor(pt.Allocator.PhysicalFor(ptes))
}

func pteFor(addr uintptr) PTE {
	if addr&(pteSize-1) != 0 {
		panic(fmt.Sprintf("physical address %#x is not page-aligned", addr))
	}
	return PTE((addr >> pteShift) << ppnShift)
}

// String implements fmt.Stringer.String.
func (p *PTE) String() string {
	if !p.Valid() {
		return "none"
	}
	if !p.IsLeaf() {
		return fmt.Sprintf("table %#x", p.Address())
	}
	return fmt.Sprintf("page %#x %s", p.Address(), p.Opts())
}

// isEmpty returns true iff no entry is valid.
func (ptes *PTEs) isEmpty() bool {
	for i := range ptes {
		if ptes[i].Valid() {
			return false
		}
	}
	return true
}
