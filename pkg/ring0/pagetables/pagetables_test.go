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
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

type mapping struct {
	start  uintptr
	length uintptr
	addr   uintptr
	opts   MapOpts
}

// checkMappings collects the valid leaves of pt in [0, MaxVA), merging
// contiguous runs, and compares them against want.
func checkMappings(t *testing.T, pt *PageTables, want []mapping) {
	t.Helper()
	var got []mapping
	pt.ForEach(0, MaxVA, func(addr hostarch.Addr, pte *PTE) bool {
		if n := len(got); n > 0 {
			last := &got[n-1]
			if last.start+last.length == uintptr(addr) && last.addr+last.length == pte.Address() && last.opts == pte.Opts() {
				last.length += pteSize
				return true
			}
		}
		got = append(got, mapping{uintptr(addr), pteSize, pte.Address(), pte.Opts()})
		return true
	})
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(mapping{})); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

func mustNew(t *testing.T, a Allocator) *PageTables {
	t.Helper()
	pt, err := New(a)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return pt
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

var rw = MapOpts{AccessType: hostarch.ReadWrite, User: true}

func TestAllUnmapped(t *testing.T) {
	pt := mustNew(t, NewRuntimeAllocator())
	checkMappings(t, pt, nil)
}

func TestMapLookup(t *testing.T) {
	pt := mustNew(t, NewRuntimeAllocator())
	rx := MapOpts{AccessType: hostarch.ReadExecute}
	if err := pt.Map(0x400000, 3*pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if err := pt.Map(0x3fe000, pteSize, rx, pteSize*7); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	checkMappings(t, pt, []mapping{
		{0x3fe000, pteSize, pteSize * 7, rx},
		{0x400000, 3 * pteSize, pteSize * 42, rw},
	})

	for i := uintptr(0); i < 3; i++ {
		va := hostarch.Addr(0x400000 + i*pteSize + 0x10)
		physical, opts, ok := pt.Lookup(va, true)
		if !ok || physical != pteSize*(42+i)+0x10 || opts != rw {
			t.Errorf("Lookup(%v) = (%#x, %v, %v), want (%#x, %v, true)", va, physical, opts, ok, pteSize*(42+i)+0x10, rw)
		}
	}
	if _, _, ok := pt.Lookup(0x3fe000, true); ok {
		t.Errorf("Lookup with requireUser found a supervisor page")
	}
	if _, _, ok := pt.Lookup(0x3fe000, false); !ok {
		t.Errorf("Lookup without requireUser missed a supervisor page")
	}
	if _, _, ok := pt.Lookup(0x500000, false); ok {
		t.Errorf("Lookup found an unmapped page")
	}
	if _, _, ok := pt.Lookup(MaxVA, false); ok {
		t.Errorf("Lookup found a page beyond MaxVA")
	}
}

func TestMapAcrossTables(t *testing.T) {
	pt := mustNew(t, NewRuntimeAllocator())
	// Straddles both a PMD and a PUD boundary.
	start := hostarch.Addr(pudSize - pteSize)
	if err := pt.Map(start, 2*pteSize, rw, pteSize*100); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	checkMappings(t, pt, []mapping{
		{pudSize - pteSize, 2 * pteSize, pteSize * 100, rw},
	})
}

func TestUnmap(t *testing.T) {
	a := NewRuntimeAllocator()
	pt := mustNew(t, a)
	if err := pt.Map(0x400000, 3*pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	pt.Unmap(0x400000+pteSize, pteSize, true)
	checkMappings(t, pt, []mapping{
		{0x400000, pteSize, pteSize * 42, rw},
		{0x400000 + 2*pteSize, pteSize, pteSize * 44, rw},
	})
	if diff := cmp.Diff([]uintptr{pteSize * 43}, a.Released); diff != "" {
		t.Errorf("released frames mismatch (-want +got):\n%s", diff)
	}

	pt.Unmap(0x400000, pteSize, false)
	pt.Unmap(0x400000+2*pteSize, pteSize, false)
	checkMappings(t, pt, nil)
	if len(a.Released) != 1 {
		t.Errorf("Unmap without freeFrames released frames: %v", a.Released)
	}
	if got := a.Used(); got != 1 {
		t.Errorf("tables in use after unmapping everything = %d, want 1 (root)", got)
	}
}

func TestUnmapHolePanics(t *testing.T) {
	pt := mustNew(t, NewRuntimeAllocator())
	if err := pt.Map(0x400000, pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	expectPanic(t, "Unmap over a hole", func() {
		pt.Unmap(0x400000, 2*pteSize, true)
	})
	// Nothing was changed before the panic.
	checkMappings(t, pt, []mapping{{0x400000, pteSize, pteSize * 42, rw}})
}

func TestRemapPanics(t *testing.T) {
	pt := mustNew(t, NewRuntimeAllocator())
	if err := pt.Map(0x400000, pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	expectPanic(t, "remap", func() {
		pt.Map(0x400000, pteSize, rw, pteSize*43)
	})
}

func TestBadArgumentsPanic(t *testing.T) {
	pt := mustNew(t, NewRuntimeAllocator())
	expectPanic(t, "unaligned Map", func() { pt.Map(0x400010, pteSize, rw, 0) })
	expectPanic(t, "unaligned physical", func() { pt.Map(0x400000, pteSize, rw, 0x10) })
	expectPanic(t, "Map beyond MaxVA", func() { pt.Map(MaxVA-pteSize, 2*pteSize, rw, 0) })
	expectPanic(t, "write-only", func() {
		pt.Map(0x400000, pteSize, MapOpts{AccessType: hostarch.Write}, 0)
	})
	expectPanic(t, "no access", func() { pt.Map(0x400000, pteSize, MapOpts{}, 0) })
}

func TestMapOutOfMemory(t *testing.T) {
	a := NewRuntimeAllocator()
	pt := mustNew(t, a)
	// Room for the PMD table but not the PTE table.
	a.SetLimit(2)
	if err := pt.Map(0x400000, pteSize, rw, pteSize*42); err != linuxerr.ErrOutOfMemory {
		t.Fatalf("Map got %v, want %v", err, linuxerr.ErrOutOfMemory)
	}
	if got := a.Used(); got != 1 {
		t.Errorf("tables in use after failed Map = %d, want 1", got)
	}
	checkMappings(t, pt, nil)
}

func TestMapPartialProgress(t *testing.T) {
	a := NewRuntimeAllocator()
	pt := mustNew(t, a)
	// Root, one PMD table and one PTE table. The second PTE table needed
	// past the 2M boundary cannot be allocated.
	a.SetLimit(3)
	start := hostarch.Addr(pmdSize - pteSize)
	if err := pt.Map(start, 2*pteSize, rw, pteSize*42); err != linuxerr.ErrOutOfMemory {
		t.Fatalf("Map got %v, want %v", err, linuxerr.ErrOutOfMemory)
	}
	checkMappings(t, pt, []mapping{{pmdSize - pteSize, pteSize, pteSize * 42, rw}})
	pt.Unmap(start, pteSize, false)
	if got := a.Used(); got != 1 {
		t.Errorf("tables in use after unwinding = %d, want 1", got)
	}
}

func TestRelease(t *testing.T) {
	a := NewRuntimeAllocator()
	pt := mustNew(t, a)
	if err := pt.Map(0x400000, pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	expectPanic(t, "Release with a mapped leaf", pt.Release)

	pt = mustNew(t, a)
	if err := pt.Map(0x400000, pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	before := a.Used()
	pt.Unmap(0x400000, pteSize, false)
	pt.Release()
	if got := a.Used(); got != before-3 {
		t.Errorf("tables in use after Release = %d, want %d", got, before-3)
	}
	expectPanic(t, "second Release", pt.Release)
}

func TestTemplate(t *testing.T) {
	a := NewRuntimeAllocator()
	tmpl := mustNew(t, a)
	kopts := MapOpts{AccessType: hostarch.ReadWrite, Global: true}
	const kernBase = 2 * pudSize
	if err := tmpl.Map(kernBase, 2*pteSize, kopts, kernBase); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	pt, err := NewWithTemplate(a, tmpl)
	if err != nil {
		t.Fatalf("NewWithTemplate failed: %v", err)
	}
	if !pt.IsShared(kernBase) || pt.IsShared(0) {
		t.Errorf("IsShared mismatch for borrowed and private entries")
	}
	if physical, opts, ok := pt.Lookup(kernBase+pteSize, false); !ok || physical != kernBase+pteSize || opts != kopts {
		t.Errorf("Lookup through template = (%#x, %v, %v)", physical, opts, ok)
	}
	if err := pt.Map(0x1000, pteSize, rw, pteSize*9); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if _, _, ok := tmpl.Lookup(0x1000, false); ok {
		t.Errorf("private mapping leaked into the template")
	}
	expectPanic(t, "Map into borrowed entry", func() {
		pt.Map(kernBase+4*pteSize, pteSize, kopts, kernBase+4*pteSize)
	})
	expectPanic(t, "Unmap of borrowed entry", func() {
		pt.Unmap(kernBase, pteSize, false)
	})

	pt.Unmap(0x1000, pteSize, false)
	pt.Release()
	checkMappings(t, tmpl, []mapping{{kernBase, 2 * pteSize, kernBase, kopts}})
}

type recordingInvalidator struct {
	ranges []hostarch.AddrRange
}

func (r *recordingInvalidator) Invalidate(_ *PageTables, start, end hostarch.Addr) {
	r.ranges = append(r.ranges, hostarch.AddrRange{Start: start, End: end})
}

func TestInvalidate(t *testing.T) {
	pt := mustNew(t, NewRuntimeAllocator())
	inv := &recordingInvalidator{}
	pt.Invalidator = inv
	gen := pt.Generation()
	if err := pt.Map(0x400000, 2*pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	pt.Unmap(0x400000, pteSize, false)
	if got := pt.Generation(); got != gen+2 {
		t.Errorf("Generation() = %d, want %d", got, gen+2)
	}
	want := []hostarch.AddrRange{
		{Start: 0x400000, End: 0x402000},
		{Start: 0x400000, End: 0x401000},
	}
	if diff := cmp.Diff(want, inv.ranges); diff != "" {
		t.Errorf("invalidated ranges mismatch (-want +got):\n%s", diff)
	}
}

func TestAccessedDirty(t *testing.T) {
	pt := mustNew(t, NewRuntimeAllocator())
	if err := pt.Map(0x400000, pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	pte := pt.LookupPTE(0x400000)
	if pte.Accessed() || pte.Dirty() {
		t.Fatalf("fresh entry already accessed or dirty")
	}
	pte.SetAccessed(true)
	if !pte.Accessed() || !pte.Dirty() {
		t.Errorf("SetAccessed(true) did not mark the entry")
	}
	pte.ClearDirty()
	if pte.Dirty() || pte.Address() != pteSize*42 || pte.Opts() != rw {
		t.Errorf("ClearDirty changed more than the dirty bit: %s", pte)
	}
}

func TestDump(t *testing.T) {
	a := NewRuntimeAllocator()
	tmpl := mustNew(t, a)
	if err := tmpl.Map(2*pudSize, pteSize, MapOpts{AccessType: hostarch.Read, Global: true}, 2*pudSize); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	pt, err := NewWithTemplate(a, tmpl)
	if err != nil {
		t.Fatalf("NewWithTemplate failed: %v", err)
	}
	if err := pt.Map(0, pteSize, rw, pteSize*42); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	var buf bytes.Buffer
	pt.Dump(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("Dump printed %d lines, want 5:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[3], " .. .. ..0: ") || !strings.HasSuffix(lines[3], "rw-u-") {
		t.Errorf("unexpected leaf line %q", lines[3])
	}
	if !strings.HasPrefix(lines[4], " ..2: ") || !strings.HasSuffix(lines[4], "shared") {
		t.Errorf("unexpected borrowed line %q", lines[4])
	}
}

func TestFrameAllocator(t *testing.T) {
	mf, err := pgalloc.NewMemoryFile(pgalloc.MemoryFileOpts{Frames: 16})
	if err != nil {
		t.Fatalf("NewMemoryFile failed: %v", err)
	}
	defer mf.Destroy()

	a := NewFrameAllocator(mf)
	pt := mustNew(t, a)
	if !mf.Contains(pt.RootPhysical()) {
		t.Errorf("root %#x not in the memory file", pt.RootPhysical())
	}
	data, err := mf.Allocate(pgalloc.AllocOpts{Zero: true})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := pt.Map(0x1000, pteSize, rw, data); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if got := mf.Usage(); got != 4 {
		t.Errorf("Usage() = %d, want 4 (three tables and one data frame)", got)
	}
	pt.Unmap(0x1000, pteSize, true)
	pt.Release()
	if got := mf.Usage(); got != 0 {
		t.Errorf("Usage() after Release = %d, want 0", got)
	}
	if got := a.Live(); got != 0 {
		t.Errorf("Live() after Release = %d, want 0", got)
	}
}
