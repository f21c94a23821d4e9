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

// visitor is called by the Walker for leaf slots.
type visitor interface {
	// visit is called on each leaf slot in the range. Slots that are not
	// valid are visited only when requiresAlloc is true. Returning false
	// stops the walk.
	visit(start uintptr, pte *PTE) bool

	// requiresAlloc indicates that missing tables are allocated.
	requiresAlloc() bool

	// frees indicates that tables emptied by the walk are freed.
	frees() bool
}

// Walker walks page tables.
type Walker struct {
	// pageTables are the tables to walk.
	pageTables *PageTables

	// visitor is the set of operations.
	visitor visitor

	// err is set if a table allocation failed.
	err error
}

// addrEnd returns the next boundary of the given size after addr, or end if
// that comes earlier.
func addrEnd(addr, end, size uintptr) uintptr {
	next := (addr + size) &^ (size - 1)
	if next < addr || next > end {
		return end
	}
	return next
}

// iterateRange walks [start, end). It returns false if the visitor stopped
// the walk or an allocation failed.
func (w *Walker) iterateRange(start, end uintptr) bool {
	return w.walkLevel(w.pageTables.root, levels-1, start, end)
}

// walkLevel iterates over the entries of one table covering [start, end).
func (w *Walker) walkLevel(entries *PTEs, level int, start, end uintptr) bool {
	shift := uint(pteShift + 9*level)
	for start < end {
		next := addrEnd(start, end, uintptr(1)<<shift)
		index := (start >> shift) & indexMask
		entry := &entries[index]

		if level == 0 {
			if entry.Valid() || w.visitor.requiresAlloc() {
				if !w.visitor.visit(start, entry) {
					return false
				}
			}
			start = next
			continue
		}

		if level == levels-1 && w.pageTables.shared[index] && (w.visitor.requiresAlloc() || w.visitor.frees()) {
			panic(fmt.Sprintf("modification of borrowed root entry %d at %#x", index, start))
		}

		allocated := false
		if !entry.Valid() {
			if !w.visitor.requiresAlloc() {
				// Skip over this entry.
				start = next
				continue
			}
			ptes, err := w.pageTables.Allocator.NewPTEs()
			if err != nil {
				w.err = err
				return false
			}
			entry.setPageTable(w.pageTables, ptes)
			allocated = true
		} else if entry.IsLeaf() {
			panic(fmt.Sprintf("unexpected large page at %#x: %s", start, entry))
		}

		child := w.pageTables.Allocator.LookupPTEs(entry.Address())
		ok := w.walkLevel(child, level-1, start, next)
		if (allocated || w.visitor.frees()) && child.isEmpty() {
			entry.Clear()
			w.pageTables.Allocator.FreePTEs(child)
		}
		if !ok {
			return false
		}
		start = next
	}
	return true
}

// mapVisitor is used for map.
type mapVisitor struct {
	target   uintptr // Input.
	physical uintptr // Input.
	opts     MapOpts // Input.
}

func (v *mapVisitor) visit(start uintptr, pte *PTE) bool {
	if pte.Valid() {
		panic(fmt.Sprintf("remap of %#x: %s", start, pte))
	}
	pte.Set(v.physical+(start-v.target), v.opts)
	return true
}

func (*mapVisitor) requiresAlloc() bool { return true }

func (*mapVisitor) frees() bool { return false }

// unmapVisitor is used for unmap.
type unmapVisitor struct {
	pageTables *PageTables
	freeFrames bool
}

func (v *unmapVisitor) visit(start uintptr, pte *PTE) bool {
	if v.freeFrames {
		v.pageTables.Releaser.ReleaseFrame(pte.Address())
	}
	pte.Clear()
	return true
}

func (*unmapVisitor) requiresAlloc() bool { return false }

func (*unmapVisitor) frees() bool { return true }

// countVisitor counts valid leaves.
type countVisitor struct {
	count uintptr // Output.
}

func (v *countVisitor) visit(uintptr, *PTE) bool {
	v.count++
	return true
}

func (*countVisitor) requiresAlloc() bool { return false }

func (*countVisitor) frees() bool { return false }

// forEachVisitor adapts a ForEach callback.
type forEachVisitor struct {
	fn func(addr hostarch.Addr, pte *PTE) bool
}

func (v *forEachVisitor) visit(start uintptr, pte *PTE) bool {
	return v.fn(hostarch.Addr(start), pte)
}

func (*forEachVisitor) requiresAlloc() bool { return false }

func (*forEachVisitor) frees() bool { return false }
