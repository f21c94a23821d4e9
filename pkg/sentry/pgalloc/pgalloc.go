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

// Package pgalloc contains the physical frame allocator.
//
// Physical memory is a host anonymous mapping carved into hostarch.PageSize
// frames. Physical addresses are offsets into that mapping rebased at
// MemoryFileOpts.Base, so the first frame of a file with the default base is
// at physical address 0x80000000.
package pgalloc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
	"gvisor.dev/minivm/pkg/bitmap"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/metric"
)

// DefaultBase is the physical address of the first frame when
// MemoryFileOpts.Base is zero.
const DefaultBase = 0x80000000

var (
	allocatedFrames = metric.MustCreateNewUint64Metric("/pgalloc/allocations", "Number of frames handed out by MemoryFile.Allocate.")
	freedFrames     = metric.MustCreateNewUint64Metric("/pgalloc/frees", "Number of frames returned to a MemoryFile.")
	allocFailures   = metric.MustCreateNewUint64Metric("/pgalloc/alloc_failures", "Number of Allocate calls that found no free frame.")
)

// MemoryFileOpts provides options to NewMemoryFile.
type MemoryFileOpts struct {
	// Frames is the number of frames in the file. It must be positive.
	Frames uint32

	// Base is the physical address of frame 0. It must be page-aligned. If
	// zero, DefaultBase is used.
	Base uintptr
}

// AllocOpts are options used in MemoryFile.Allocate.
type AllocOpts struct {
	// Zero requests that the frame be zero-filled before it is returned.
	// Frames that are not zeroed hold whatever their previous owner left.
	Zero bool
}

// MemoryFile is a fixed pool of physical frames.
//
// MemoryFile is safe for concurrent use; it is shared by every address
// space of a kernel.
type MemoryFile struct {
	base    uintptr
	frames  uint32
	mapping []byte

	mu sync.Mutex

	// usage records which frames are allocated. Protected by mu.
	usage bitmap.Bitmap

	// refs is the reference count of each allocated frame. Protected by mu.
	refs []int32

	// hint is where the next search for a free frame begins. Protected by
	// mu.
	hint uint32

	// destroyed is set by Destroy. Protected by mu.
	destroyed bool
}

// NewMemoryFile creates a MemoryFile backed by a fresh anonymous host
// mapping.
func NewMemoryFile(opts MemoryFileOpts) (*MemoryFile, error) {
	if opts.Frames == 0 {
		return nil, fmt.Errorf("memory file needs at least one frame")
	}
	base := opts.Base
	if base == 0 {
		base = DefaultBase
	}
	if base&hostarch.PageMask != 0 {
		return nil, fmt.Errorf("physical base %#x is not page-aligned", base)
	}
	size := int(opts.Frames) * hostarch.PageSize
	m, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %d bytes of physical memory: %w", size, err)
	}
	log.Debugf("MemoryFile: %d frames at physical [%#x, %#x)", opts.Frames, base, base+uintptr(size))
	return &MemoryFile{
		base:    base,
		frames:  opts.Frames,
		mapping: m,
		usage:   bitmap.New(opts.Frames),
		refs:    make([]int32, opts.Frames),
	}, nil
}

// Base returns the physical address of the first frame.
func (f *MemoryFile) Base() uintptr {
	return f.base
}

// End returns the physical address just past the last frame.
func (f *MemoryFile) End() uintptr {
	return f.base + uintptr(f.frames)*hostarch.PageSize
}

// Frames returns the number of frames in the file.
func (f *MemoryFile) Frames() uint32 {
	return f.frames
}

// Contains returns true if pa lies inside the file.
func (f *MemoryFile) Contains(pa uintptr) bool {
	return pa >= f.base && pa < f.End()
}

// frameIndex returns the index of the frame containing pa. It panics if pa
// is outside the file.
func (f *MemoryFile) frameIndex(pa uintptr) uint32 {
	if !f.Contains(pa) {
		panic(fmt.Sprintf("physical address %#x outside memory file [%#x, %#x)", pa, f.base, f.End()))
	}
	return uint32((pa - f.base) >> hostarch.PageShift)
}

// Allocate returns the physical address of a free frame with a reference
// count of one. It returns linuxerr.ErrOutOfMemory if every frame is in use.
func (f *MemoryFile) Allocate(opts AllocOpts) (uintptr, error) {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		panic("Allocate called on destroyed MemoryFile")
	}
	i, err := f.usage.FirstZero(f.hint)
	if err != nil && f.hint != 0 {
		i, err = f.usage.FirstZero(0)
	}
	if err != nil {
		f.mu.Unlock()
		allocFailures.Increment()
		return 0, linuxerr.ErrOutOfMemory
	}
	f.usage.Add(i)
	f.refs[i] = 1
	f.hint = (i + 1) % f.frames
	f.mu.Unlock()

	allocatedFrames.Increment()
	pa := f.base + uintptr(i)<<hostarch.PageShift
	if opts.Zero {
		clear(f.frame(i))
	}
	return pa, nil
}

// IncRef adds a reference to the allocated frame containing pa.
func (f *MemoryFile) IncRef(pa uintptr) {
	i := f.frameIndex(pa)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usage.Contains(i) {
		panic(fmt.Sprintf("IncRef of free frame %#x", pa))
	}
	f.refs[i]++
}

// DecRef drops a reference to the allocated frame containing pa. The frame
// is freed when its last reference is dropped, in which case DecRef returns
// true.
func (f *MemoryFile) DecRef(pa uintptr) bool {
	i := f.frameIndex(pa)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usage.Contains(i) {
		panic(fmt.Sprintf("DecRef of free frame %#x", pa))
	}
	f.refs[i]--
	if f.refs[i] > 0 {
		return false
	}
	f.refs[i] = 0
	f.usage.Remove(i)
	freedFrames.Increment()
	return true
}

// Refs returns the reference count of the frame containing pa, or 0 if the
// frame is free.
func (f *MemoryFile) Refs(pa uintptr) int32 {
	i := f.frameIndex(pa)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs[i]
}

// Slice returns the bytes from pa to the end of its frame. The slice aliases
// physical memory; it stays valid until the MemoryFile is destroyed.
func (f *MemoryFile) Slice(pa uintptr) []byte {
	i := f.frameIndex(pa)
	return f.frame(i)[pa&hostarch.PageMask:]
}

func (f *MemoryFile) frame(i uint32) []byte {
	off := int(i) * hostarch.PageSize
	return f.mapping[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// Usage returns the number of allocated frames.
func (f *MemoryFile) Usage() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(f.usage.GetNumOnes())
}

// Destroy releases the host mapping. Frames still allocated are reported as
// leaked.
func (f *MemoryFile) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.destroyed = true
	if n := f.usage.GetNumOnes(); n != 0 {
		log.Warningf("MemoryFile destroyed with %d frames still allocated", n)
	}
	if err := unix.Munmap(f.mapping); err != nil {
		log.Warningf("Failed to unmap physical memory: %v", err)
	}
	f.mapping = nil
}
