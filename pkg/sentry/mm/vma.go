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

	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/sentry/vfs"
)

// Ownership says who owns the frames backing a mapping.
type Ownership int

const (
	// Owned frames belong to the address space. They are copied on fork
	// and freed when unmapped.
	Owned Ownership = iota

	// SharedRefCounted frames belong to the file's frame cache. Every
	// address space mapping them holds a reference; fork takes another one.
	SharedRefCounted
)

// String implements fmt.Stringer.String.
func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case SharedRefCounted:
		return "shared"
	default:
		return fmt.Sprintf("Ownership(%d)", int(o))
	}
}

// vma is a mapping descriptor. The zero value is a free slot.
type vma struct {
	// valid is set while the slot is committed.
	valid bool

	// start and end are page-aligned; end is exclusive.
	start hostarch.Addr
	end   hostarch.Addr

	// perms are the permissions pages are installed with.
	perms hostarch.AccessType

	// flags are the MAP_* flags of the request.
	flags uint32

	// file backs the mapping, or is nil for anonymous memory. The vma
	// holds a reference on it.
	file vfs.File

	// offset is the file offset of start.
	offset int64

	ownership Ownership
}

func (v *vma) addrRange() hostarch.AddrRange {
	return hostarch.AddrRange{Start: v.start, End: v.end}
}

// fileOffset returns the file offset backing addr.
func (v *vma) fileOffset(addr hostarch.Addr) int64 {
	return v.offset + int64(addr.RoundDown()-v.start)
}

// VMAInfo describes a committed mapping.
type VMAInfo struct {
	Range     hostarch.AddrRange
	Perms     hostarch.AccessType
	Flags     uint32
	File      vfs.File
	Offset    int64
	Ownership Ownership
}

// findVMALocked returns the committed vma containing addr, or nil.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) findVMALocked(addr hostarch.Addr) *vma {
	for i := range mm.vmas {
		if v := &mm.vmas[i]; v.valid && v.addrRange().Contains(addr) {
			return v
		}
	}
	return nil
}

// freeVMALocked returns a free slot, or nil if all are committed.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) freeVMALocked() *vma {
	for i := range mm.vmas {
		if !mm.vmas[i].valid {
			return &mm.vmas[i]
		}
	}
	return nil
}

// overlapsVMALocked returns true if ar overlaps any committed vma.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) overlapsVMALocked(ar hostarch.AddrRange) bool {
	for i := range mm.vmas {
		if v := &mm.vmas[i]; v.valid && v.addrRange().Overlaps(ar) {
			return true
		}
	}
	return false
}

// mmapFloorLocked returns the lowest address any committed vma starts at,
// or MmapTop if that is lower. Neither the heap nor new bump allocations
// may reach past it.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) mmapFloorLocked() hostarch.Addr {
	floor := MmapTop
	for i := range mm.vmas {
		if v := &mm.vmas[i]; v.valid && v.start < floor {
			floor = v.start
		}
	}
	return floor
}

// VMAs returns the committed mappings in slot order.
func (mm *MemoryManager) VMAs() []VMAInfo {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	var infos []VMAInfo
	for i := range mm.vmas {
		v := &mm.vmas[i]
		if !v.valid {
			continue
		}
		infos = append(infos, VMAInfo{
			Range:     v.addrRange(),
			Perms:     v.perms,
			Flags:     v.flags,
			File:      v.file,
			Offset:    v.offset,
			Ownership: v.ownership,
		})
	}
	return infos
}
