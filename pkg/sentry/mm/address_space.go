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

package mm

import (
	"fmt"

	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/ring0/pagetables"
)

// checkUserRange panics unless [addr, addr+length) is a page-aligned part
// of the user range.
func checkUserRange(addr hostarch.Addr, length uintptr) {
	end, ok := addr.AddLength(uint64(length))
	if !ok || end > MaxUserAddr || !addr.IsPageAligned() || length&hostarch.PageMask != 0 {
		panic(fmt.Sprintf("bad user range [%v, +%#x)", addr, length))
	}
}

// mapUserLocked maps [addr, addr+length) to the frames starting at physical
// in the user table and mirrors it in the kernel-shadow table. On failure
// neither table has changed.
//
// Preconditions: mm.mappingMu must be locked. No page in the range is
// mapped.
func (mm *MemoryManager) mapUserLocked(addr hostarch.Addr, length uintptr, at hostarch.AccessType, physical uintptr) error {
	checkUserRange(addr, length)
	end := addr + hostarch.Addr(length)
	if err := mm.userTables.Map(addr, length, pagetables.MapOpts{AccessType: at, User: true}, physical); err != nil {
		unmapPresent(mm.userTables, addr, end, false)
		return err
	}
	if err := mm.kernelTables.Map(addr, length, pagetables.MapOpts{AccessType: at}, physical); err != nil {
		unmapPresent(mm.kernelTables, addr, end, false)
		mm.userTables.Unmap(addr, length, false)
		return err
	}
	return nil
}

// unmapUserLocked removes [addr, addr+length) from both tables. If
// freeFrames is set the frames are released to the MemoryFile.
//
// Preconditions: mm.mappingMu must be locked. Every page in the range is
// mapped.
func (mm *MemoryManager) unmapUserLocked(addr hostarch.Addr, length uintptr, freeFrames bool) {
	checkUserRange(addr, length)
	mm.kernelTables.Unmap(addr, length, false)
	mm.userTables.Unmap(addr, length, freeFrames)
}

// userPage is a populated user page.
type userPage struct {
	addr     hostarch.Addr
	physical uintptr
	opts     pagetables.MapOpts
}

// populatedLocked returns the mapped user pages of ar in ascending order.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) populatedLocked(ar hostarch.AddrRange) []userPage {
	var pages []userPage
	mm.userTables.ForEach(ar.Start, ar.End, func(addr hostarch.Addr, pte *pagetables.PTE) bool {
		pages = append(pages, userPage{addr, pte.Address(), pte.Opts()})
		return true
	})
	return pages
}

// ResolveUserAddress returns the physical address of the user address va
// as the kernel sees it through the kernel-shadow table.
func (mm *MemoryManager) ResolveUserAddress(va hostarch.Addr) (uintptr, error) {
	if va >= MaxUserAddr {
		return 0, linuxerr.ErrInvalidAddress
	}
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()
	physical, _, ok := mm.kernelTables.Lookup(va, false)
	if !ok {
		return 0, linuxerr.ErrInvalidAddress
	}
	return physical, nil
}

// WalkAddress returns the physical address of va in the user table. Only
// user-accessible pages resolve.
func (mm *MemoryManager) WalkAddress(va hostarch.Addr) (uintptr, error) {
	if va >= MaxUserAddr {
		return 0, linuxerr.ErrInvalidAddress
	}
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()
	physical, _, ok := mm.userTables.Lookup(va, true)
	if !ok {
		return 0, linuxerr.ErrInvalidAddress
	}
	return physical, nil
}
