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

	"gvisor.dev/minivm/pkg/cleanup"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/ring0/pagetables"
	"gvisor.dev/minivm/pkg/sentry/fsutil"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

// NewMemoryManager returns an empty address space: no user mappings, and a
// kernel-shadow table holding the template mappings and a fresh kernel
// stack. It returns linuxerr.ErrOutOfMemory, with nothing leaked, if
// physical memory runs out.
func NewMemoryManager(mf *pgalloc.MemoryFile, tmpl *KernelTemplate, cache *fsutil.FrameCache) (*MemoryManager, error) {
	alloc := pagetables.NewFrameAllocator(mf)
	userTables, err := pagetables.New(alloc)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(userTables.Release)
	defer cu.Clean()

	kernelTables, err := pagetables.NewWithTemplate(alloc, tmpl.tables)
	if err != nil {
		return nil, err
	}
	cu.Add(kernelTables.Release)

	kstack, err := mf.Allocate(pgalloc.AllocOpts{Zero: true})
	if err != nil {
		return nil, err
	}
	cu.Add(func() { mf.DecRef(kstack) })
	if err := kernelTables.Map(KStack, hostarch.PageSize, pagetables.MapOpts{AccessType: hostarch.ReadWrite}, kstack); err != nil {
		return nil, err
	}

	cu.Release()
	return &MemoryManager{
		mf:           mf,
		tmpl:         tmpl,
		cache:        cache,
		alloc:        alloc,
		userTables:   userTables,
		kernelTables: kernelTables,
		kstack:       kstack,
	}, nil
}

// LoadInitialImage maps one zeroed page at address 0 with every permission,
// copies image into it and sets the heap top to one page. It is used for
// the first task only.
//
// Preconditions: len(image) <= hostarch.PageSize. mm has no user mappings.
func (mm *MemoryManager) LoadInitialImage(image []byte) error {
	if len(image) > hostarch.PageSize {
		panic(fmt.Sprintf("initial image of %d bytes does not fit in a page", len(image)))
	}
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()
	if mm.sz != 0 {
		panic("initial image loaded into a non-empty address space")
	}

	pa, err := mm.mf.Allocate(pgalloc.AllocOpts{Zero: true})
	if err != nil {
		return err
	}
	if err := mm.mapUserLocked(0, hostarch.PageSize, hostarch.AnyAccess, pa); err != nil {
		mm.mf.DecRef(pa)
		return err
	}
	copy(mm.mf.Slice(pa), image)
	mm.sz = hostarch.PageSize
	return nil
}

// Fork returns a copy of mm. Every owned page is copied into a new frame;
// pages of shared file mappings map the same frame with another reference.
// Mappings keep their slots and take new file references.
//
// On failure the partial copy is destroyed and nothing is leaked.
func (mm *MemoryManager) Fork() (*MemoryManager, error) {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()

	mm2, err := NewMemoryManager(mm.mf, mm.tmpl, mm.cache)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(func() {
		log.Debugf("Fork failed, destroying partial copy")
		mm2.Destroy(true)
	})
	defer cu.Clean()

	// mm2 is not yet visible to anyone else, so its state is used without
	// its lock.
	for i := range mm.vmas {
		v := &mm.vmas[i]
		if !v.valid {
			continue
		}
		mm2.vmas[i] = *v
		if v.file != nil {
			v.file.IncRef()
		}
	}
	mm2.sz = mm.sz

	for _, p := range mm.populatedLocked(userRange()) {
		if v := mm.findVMALocked(p.addr); v != nil && v.ownership == SharedRefCounted {
			mm.cache.Dup(p.physical)
			if err := mm2.mapUserLocked(p.addr, hostarch.PageSize, p.opts.AccessType, p.physical); err != nil {
				mm.cache.Put(v.file, v.fileOffset(p.addr), p.physical)
				return nil, err
			}
			continue
		}
		pa, err := mm.mf.Allocate(pgalloc.AllocOpts{})
		if err != nil {
			return nil, err
		}
		copy(mm.mf.Slice(pa), mm.mf.Slice(p.physical))
		if err := mm2.mapUserLocked(p.addr, hostarch.PageSize, p.opts.AccessType, pa); err != nil {
			mm.mf.DecRef(pa)
			return nil, err
		}
	}

	cu.Release()
	return mm2, nil
}

// Destroy tears down mm. Every mapping is removed, with writeback for
// shared file mappings, and every frame mm owns is freed. The kernel stack
// is unmapped, and freed only if freeStack is set; otherwise its frame
// stays allocated for the caller, which is still running on it, and
// KernelStack keeps returning it.
//
// mm must not be used after Destroy, except for KernelStack.
func (mm *MemoryManager) Destroy(freeStack bool) {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	if mm.destroyed {
		panic("address space destroyed twice")
	}

	for i := range mm.vmas {
		if v := &mm.vmas[i]; v.valid {
			if err := mm.removeVMALocked(v); err != nil {
				log.Warningf("Writeback of [%v, %v) failed during teardown, changes are lost: %v", v.start, v.end, err)
				mm.forceRemoveVMALocked(v)
			}
		}
	}

	// What is left is the image and heap, all owned.
	for _, p := range mm.populatedLocked(userRange()) {
		mm.unmapUserLocked(p.addr, hostarch.PageSize, true)
	}

	mm.kernelTables.Unmap(KStack, hostarch.PageSize, freeStack)
	if freeStack {
		mm.kstack = 0
	}
	mm.userTables.Release()
	mm.kernelTables.Release()
	mm.destroyed = true
}
