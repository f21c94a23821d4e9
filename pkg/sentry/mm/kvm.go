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
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

// trampolineCode marks the trampoline frame. The simulated kernel never
// executes it; it only has to be shared by every address space.
var trampolineCode = []byte("minivm trampoline\x00")

// KernelTemplate holds the kernel mappings every address space shares: the
// direct map of physical memory and the trampoline page. It is built once
// and is read-only afterwards; each MemoryManager's kernel-shadow table
// borrows its root entries.
type KernelTemplate struct {
	mf         *pgalloc.MemoryFile
	tables     *pagetables.PageTables
	trampoline uintptr
}

// NewKernelTemplate builds the kernel mappings for physical memory mf.
func NewKernelTemplate(mf *pgalloc.MemoryFile) (*KernelTemplate, error) {
	if hostarch.Addr(mf.Base()) != KernBase || hostarch.Addr(mf.End()) > kernLimit {
		return nil, fmt.Errorf("physical memory [%#x, %#x) does not fit the direct map at %v", mf.Base(), mf.End(), KernBase)
	}
	tables, err := pagetables.New(pagetables.NewFrameAllocator(mf))
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(tables.Release)
	defer cu.Clean()

	direct := pagetables.MapOpts{AccessType: hostarch.ReadWrite, Global: true}
	length := mf.End() - mf.Base()
	if err := tables.Map(KernBase, length, direct, mf.Base()); err != nil {
		unmapPresent(tables, KernBase, KernBase+hostarch.Addr(length), false)
		return nil, err
	}
	cu.Add(func() { tables.Unmap(KernBase, length, false) })

	trampoline, err := mf.Allocate(pgalloc.AllocOpts{Zero: true})
	if err != nil {
		return nil, err
	}
	copy(mf.Slice(trampoline), trampolineCode)
	text := pagetables.MapOpts{AccessType: hostarch.ReadExecute, Global: true}
	if err := tables.Map(Trampoline, hostarch.PageSize, text, trampoline); err != nil {
		mf.DecRef(trampoline)
		return nil, err
	}

	cu.Release()
	log.Debugf("Kernel template: direct map [%v, %#x), trampoline frame %#x", KernBase, mf.End(), trampoline)
	return &KernelTemplate{
		mf:         mf,
		tables:     tables,
		trampoline: trampoline,
	}, nil
}

// TrampolineFrame returns the physical address of the trampoline page.
func (k *KernelTemplate) TrampolineFrame() uintptr {
	return k.trampoline
}

// Tables returns the template tables. They must not be modified.
func (k *KernelTemplate) Tables() *pagetables.PageTables {
	return k.tables
}

// Release frees the template. Every address space cloned from it must be
// destroyed first.
func (k *KernelTemplate) Release() {
	k.tables.Unmap(Trampoline, hostarch.PageSize, true)
	k.tables.Unmap(KernBase, k.mf.End()-k.mf.Base(), false)
	k.tables.Release()
}

// unmapPresent removes whatever pages of [start, end) are mapped in
// tables. It unwinds a Map that failed part way.
func unmapPresent(tables *pagetables.PageTables, start, end hostarch.Addr, freeFrames bool) {
	var present []hostarch.Addr
	tables.ForEach(start, end, func(addr hostarch.Addr, _ *pagetables.PTE) bool {
		present = append(present, addr)
		return true
	})
	for _, addr := range present {
		tables.Unmap(addr, hostarch.PageSize, freeFrames)
	}
}
