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

package pgalloc

import (
	"testing"

	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
)

func newTestFile(t *testing.T, frames uint32) *MemoryFile {
	t.Helper()
	mf, err := NewMemoryFile(MemoryFileOpts{Frames: frames})
	if err != nil {
		t.Fatalf("NewMemoryFile failed: %v", err)
	}
	t.Cleanup(mf.Destroy)
	return mf
}

func TestNewMemoryFileOpts(t *testing.T) {
	if _, err := NewMemoryFile(MemoryFileOpts{}); err == nil {
		t.Errorf("NewMemoryFile with zero frames succeeded")
	}
	if _, err := NewMemoryFile(MemoryFileOpts{Frames: 1, Base: 0x1001}); err == nil {
		t.Errorf("NewMemoryFile with unaligned base succeeded")
	}
	mf := newTestFile(t, 4)
	if got, want := mf.Base(), uintptr(DefaultBase); got != want {
		t.Errorf("Base() = %#x, want %#x", got, want)
	}
	if got, want := mf.End(), uintptr(DefaultBase+4*hostarch.PageSize); got != want {
		t.Errorf("End() = %#x, want %#x", got, want)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	mf := newTestFile(t, 4)
	seen := make(map[uintptr]bool)
	for i := 0; i < 4; i++ {
		pa, err := mf.Allocate(AllocOpts{})
		if err != nil {
			t.Fatalf("Allocate #%d failed: %v", i, err)
		}
		if pa&hostarch.PageMask != 0 || !mf.Contains(pa) {
			t.Errorf("Allocate returned bad frame %#x", pa)
		}
		if seen[pa] {
			t.Errorf("frame %#x handed out twice", pa)
		}
		seen[pa] = true
	}
	if _, err := mf.Allocate(AllocOpts{}); err != linuxerr.ErrOutOfMemory {
		t.Errorf("Allocate on full file got %v, want %v", err, linuxerr.ErrOutOfMemory)
	}
	if got := mf.Usage(); got != 4 {
		t.Errorf("Usage() = %d, want 4", got)
	}
	for pa := range seen {
		if !mf.DecRef(pa) {
			t.Errorf("DecRef(%#x) did not free the frame", pa)
		}
	}
	if got := mf.Usage(); got != 0 {
		t.Errorf("Usage() after free = %d, want 0", got)
	}
}

func TestAllocateZero(t *testing.T) {
	mf := newTestFile(t, 1)
	pa, err := mf.Allocate(AllocOpts{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	for i := range mf.Slice(pa) {
		mf.Slice(pa)[i] = 0xaa
	}
	mf.DecRef(pa)

	pa, err = mf.Allocate(AllocOpts{Zero: true})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	defer mf.DecRef(pa)
	for i, b := range mf.Slice(pa) {
		if b != 0 {
			t.Fatalf("byte %d of zeroed frame = %#x", i, b)
		}
	}
}

func TestRefs(t *testing.T) {
	mf := newTestFile(t, 2)
	pa, err := mf.Allocate(AllocOpts{Zero: true})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	mf.IncRef(pa)
	if got := mf.Refs(pa); got != 2 {
		t.Errorf("Refs() = %d, want 2", got)
	}
	if mf.DecRef(pa) {
		t.Errorf("first DecRef freed a frame with two references")
	}
	if !mf.DecRef(pa) {
		t.Errorf("second DecRef did not free the frame")
	}
	if got := mf.Refs(pa); got != 0 {
		t.Errorf("Refs() of free frame = %d, want 0", got)
	}
}

func TestSliceOffset(t *testing.T) {
	mf := newTestFile(t, 1)
	pa, err := mf.Allocate(AllocOpts{Zero: true})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	defer mf.DecRef(pa)
	mf.Slice(pa)[100] = 7
	s := mf.Slice(pa + 100)
	if len(s) != hostarch.PageSize-100 || s[0] != 7 {
		t.Errorf("Slice(pa+100) = len %d first %d, want len %d first 7", len(s), s[0], hostarch.PageSize-100)
	}
}

func TestDecRefFreeFramePanics(t *testing.T) {
	mf := newTestFile(t, 1)
	defer func() {
		if recover() == nil {
			t.Errorf("DecRef of a free frame did not panic")
		}
	}()
	mf.DecRef(mf.Base())
}
