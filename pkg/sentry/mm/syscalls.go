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
	"math"

	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/cleanup"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
	"gvisor.dev/minivm/pkg/sentry/vfs"
)

// MMapOpts specifies a mapping request.
type MMapOpts struct {
	// Length is the length of the mapping. It is rounded up to whole
	// pages.
	Length uint64

	// Addr is the start of the mapping if Fixed is set. Otherwise it is
	// ignored.
	Addr hostarch.Addr

	// Fixed places the mapping at exactly Addr.
	Fixed bool

	// Perms are the permissions of the mapping. Write implies Read.
	Perms hostarch.AccessType

	// Shared and Private are the MAP_SHARED and MAP_PRIVATE flags.
	// Changes to a shared file mapping reach the file.
	Shared  bool
	Private bool

	// File backs the mapping, or is nil for an anonymous mapping. MMap
	// takes its own reference.
	File vfs.File

	// Offset is the page-aligned file offset of the first page.
	Offset int64
}

func (opts *MMapOpts) flags() uint32 {
	var flags uint32
	if opts.Shared {
		flags |= linux.MAP_SHARED
	}
	if opts.Private {
		flags |= linux.MAP_PRIVATE
	}
	if opts.Fixed {
		flags |= linux.MAP_FIXED
	}
	if opts.File == nil {
		flags |= linux.MAP_ANONYMOUS
	}
	return flags
}

// MMap reserves a range for a new mapping and returns its start. No frames
// are installed; pages are populated by HandleFault on first access.
//
// MMap checks structure only: capacity (linuxerr.ErrNoCapacity), layout
// (linuxerr.ErrOutOfMemory when the region would meet the heap) and, for
// Fixed requests, alignment and overlap (linuxerr.EINVAL). Which
// flag combinations make sense is the caller's policy.
func (mm *MemoryManager) MMap(opts MMapOpts) (hostarch.Addr, error) {
	length, ok := hostarch.PageRoundUp(opts.Length)
	if !ok || length == 0 || length > uint64(MaxUserAddr) {
		return 0, linuxerr.EINVAL
	}
	if opts.Offset < 0 || opts.Offset&hostarch.PageMask != 0 || opts.Offset > math.MaxInt64-int64(length) {
		return 0, linuxerr.EINVAL
	}
	perms := opts.Perms
	if perms.Write {
		perms.Read = true
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()

	v := mm.freeVMALocked()
	if v == nil {
		return 0, linuxerr.ErrNoCapacity
	}

	var start hostarch.Addr
	if opts.Fixed {
		start = opts.Addr
		end, ok := start.AddLength(length)
		if !ok || !start.IsPageAligned() || end > MaxUserAddr || start < mm.heapTopLocked() {
			return 0, linuxerr.EINVAL
		}
		if mm.overlapsVMALocked(hostarch.AddrRange{Start: start, End: end}) {
			return 0, linuxerr.EINVAL
		}
	} else {
		floor := mm.mmapFloorLocked()
		if length > uint64(floor) || floor-hostarch.Addr(length) < mm.heapTopLocked() {
			return 0, linuxerr.ErrOutOfMemory
		}
		start = floor - hostarch.Addr(length)
	}

	ownership := Owned
	if opts.Shared && opts.File != nil {
		ownership = SharedRefCounted
	}
	if opts.File != nil {
		opts.File.IncRef()
	}
	*v = vma{
		valid:     true,
		start:     start,
		end:       start + hostarch.Addr(length),
		perms:     perms,
		flags:     opts.flags(),
		file:      opts.File,
		offset:    opts.Offset,
		ownership: ownership,
	}
	log.Debugf("MMap [%v, %v) %v %s", v.start, v.end, v.perms, v.ownership)
	return start, nil
}

// MUnmap removes the mapping that starts at addr and is length bytes long,
// rounded up to pages. Only an exact match with a committed mapping is
// removed; anything else is linuxerr.ErrNotFound. A zero length succeeds
// without doing anything.
//
// Dirty pages of a shared file mapping are written back first. If that
// fails the mapping is left in place and the error is returned.
func (mm *MemoryManager) MUnmap(addr hostarch.Addr, length uint64) error {
	if length == 0 {
		return nil
	}
	rlen, ok := hostarch.PageRoundUp(length)
	if !ok {
		return linuxerr.ErrNotFound
	}
	end, ok := addr.AddLength(rlen)
	if !ok {
		return linuxerr.ErrNotFound
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()

	for i := range mm.vmas {
		if v := &mm.vmas[i]; v.valid && v.start == addr && v.end == end {
			return mm.removeVMALocked(v)
		}
	}
	log.Debugf("MUnmap [%v, %v) matches no mapping", addr, end)
	return linuxerr.ErrNotFound
}

// removeVMALocked writes back and tears down v. If writeback fails, v is
// unchanged.
//
// Preconditions: mm.mappingMu must be locked. v is committed.
func (mm *MemoryManager) removeVMALocked(v *vma) error {
	if v.ownership == SharedRefCounted {
		if err := mm.writebackLocked(v); err != nil {
			return err
		}
	}
	mm.forceRemoveVMALocked(v)
	return nil
}

// forceRemoveVMALocked tears down v without writeback: populated pages are
// unmapped, owned frames freed, shared frames returned to the cache, the
// file reference dropped and the slot freed.
//
// Preconditions: mm.mappingMu must be locked. v is committed.
func (mm *MemoryManager) forceRemoveVMALocked(v *vma) {
	for _, p := range mm.populatedLocked(v.addrRange()) {
		switch v.ownership {
		case SharedRefCounted:
			mm.unmapUserLocked(p.addr, hostarch.PageSize, false)
			mm.cache.Put(v.file, v.fileOffset(p.addr), p.physical)
		default:
			mm.unmapUserLocked(p.addr, hostarch.PageSize, true)
		}
	}
	if v.file != nil {
		v.file.DecRef()
	}
	log.Debugf("Unmapped [%v, %v)", v.start, v.end)
	*v = vma{}
}

// Grow moves the heap top by delta bytes and returns the previous top. New
// pages are zeroed and mapped read-write. Growth that would reach the
// mapping region is linuxerr.ErrOutOfMemory; shrinking below zero is
// linuxerr.EINVAL. On failure nothing has changed.
func (mm *MemoryManager) Grow(delta int64) (hostarch.Addr, error) {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()

	old := mm.sz
	switch {
	case delta > 0:
		newSz := old + uint64(delta)
		if newSz < old {
			return hostarch.Addr(old), linuxerr.ErrOutOfMemory
		}
		if err := mm.growLocked(newSz); err != nil {
			return hostarch.Addr(old), err
		}
	case delta < 0:
		shrink := uint64(-delta)
		if shrink > old {
			return hostarch.Addr(old), linuxerr.EINVAL
		}
		mm.shrinkLocked(old - shrink)
	}
	return hostarch.Addr(old), nil
}

// growLocked raises the heap top to newSz.
//
// Preconditions: mm.mappingMu must be locked. newSz >= mm.sz.
func (mm *MemoryManager) growLocked(newSz uint64) error {
	newTop, ok := hostarch.PageRoundUp(newSz)
	if !ok || newTop > uint64(mm.mmapFloorLocked()) {
		return linuxerr.ErrOutOfMemory
	}
	var cu cleanup.Cleanup
	defer cu.Clean()
	for addr := mm.heapTopLocked(); addr < hostarch.Addr(newTop); addr += hostarch.PageSize {
		pa, err := mm.mf.Allocate(pgalloc.AllocOpts{Zero: true})
		if err != nil {
			log.Debugf("Heap growth to %#x failed at %v, rolling back", newSz, addr)
			return err
		}
		if err := mm.mapUserLocked(addr, hostarch.PageSize, hostarch.ReadWrite, pa); err != nil {
			mm.mf.DecRef(pa)
			log.Debugf("Heap growth to %#x failed at %v, rolling back", newSz, addr)
			return err
		}
		page := addr
		cu.Add(func() { mm.unmapUserLocked(page, hostarch.PageSize, true) })
	}
	cu.Release()
	mm.sz = newSz
	return nil
}

// shrinkLocked lowers the heap top to newSz, freeing pages above it.
//
// Preconditions: mm.mappingMu must be locked. newSz <= mm.sz.
func (mm *MemoryManager) shrinkLocked(newSz uint64) {
	oldTop := mm.heapTopLocked()
	newTop, _ := hostarch.PageRoundUp(newSz)
	if hostarch.Addr(newTop) < oldTop {
		mm.unmapUserLocked(hostarch.Addr(newTop), uintptr(oldTop)-uintptr(newTop), true)
	}
	mm.sz = newSz
}

// InstallPages maps frames at addr, one page each, and raises the heap top
// to the end of them. It is the hook a program loader uses to lay out an
// image; addr must be the current heap top. On success mm owns the frames.
// On failure the frames still belong to the caller and nothing has
// changed.
func (mm *MemoryManager) InstallPages(addr hostarch.Addr, frames []uintptr, at hostarch.AccessType) error {
	if !at.Any() {
		return linuxerr.EINVAL
	}
	if at.Write {
		at.Read = true
	}
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()

	if addr != mm.heapTopLocked() {
		return linuxerr.EINVAL
	}
	end := uint64(addr) + uint64(len(frames))*hostarch.PageSize
	if end > uint64(mm.mmapFloorLocked()) {
		return linuxerr.ErrOutOfMemory
	}
	var cu cleanup.Cleanup
	defer cu.Clean()
	for i, pa := range frames {
		page := addr + hostarch.Addr(i)*hostarch.PageSize
		if err := mm.mapUserLocked(page, hostarch.PageSize, at, pa); err != nil {
			return err
		}
		cu.Add(func() { mm.unmapUserLocked(page, hostarch.PageSize, false) })
	}
	cu.Release()
	mm.sz = end
	return nil
}
