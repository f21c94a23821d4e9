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

// Package fsutil provides utilities for implementing file-backed mappings.
package fsutil

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/btree"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
	"gvisor.dev/minivm/pkg/sentry/vfs"
)

// cachedFrame is one cached page of a file.
type cachedFrame struct {
	// off is the page-aligned file offset.
	off int64

	// pa is the frame holding the page.
	pa uintptr
}

func lessFrame(a, b *cachedFrame) bool {
	return a.off < b.off
}

// FrameCache holds the frames of shared file mappings, so that every
// address space mapping the same page of a file maps the same frame.
//
// The cache holds no reference of its own: each mapper holds one reference
// on the frame through the MemoryFile, and an entry is evicted when the
// last mapper puts it back. Writeback must happen before that.
type FrameCache struct {
	mf *pgalloc.MemoryFile

	mu sync.Mutex

	// files maps each file to its cached pages ordered by offset.
	// Protected by mu.
	files map[vfs.File]*btree.BTreeG[*cachedFrame]
}

// NewFrameCache returns an empty cache drawing frames from mf.
func NewFrameCache(mf *pgalloc.MemoryFile) *FrameCache {
	return &FrameCache{
		mf:    mf,
		files: make(map[vfs.File]*btree.BTreeG[*cachedFrame]),
	}
}

func checkOffset(off int64) {
	if off < 0 || off&hostarch.PageMask != 0 {
		panic(fmt.Sprintf("file offset %#x is not a page-aligned offset", off))
	}
}

// Get returns the frame caching the page of f at off and takes a mapper
// reference on it. On a miss a zeroed frame is allocated and filled from f;
// bytes past the end of the file stay zero.
func (c *FrameCache) Get(f vfs.File, off int64) (uintptr, error) {
	checkOffset(off)
	c.mu.Lock()
	defer c.mu.Unlock()

	frames, ok := c.files[f]
	if ok {
		if cf, ok := frames.Get(&cachedFrame{off: off}); ok {
			c.mf.IncRef(cf.pa)
			return cf.pa, nil
		}
	}

	pa, err := c.mf.Allocate(pgalloc.AllocOpts{Zero: true})
	if err != nil {
		return 0, err
	}
	if _, err := f.ReadAt(c.mf.Slice(pa), off); err != nil && err != io.EOF {
		c.mf.DecRef(pa)
		return 0, err
	}
	if !ok {
		frames = btree.NewG(8, lessFrame)
		c.files[f] = frames
	}
	frames.ReplaceOrInsert(&cachedFrame{off: off, pa: pa})
	return pa, nil
}

// Put drops a mapper reference taken by Get or Dup. The page is evicted
// when the last one is dropped.
func (c *FrameCache) Put(f vfs.File, off int64, pa uintptr) {
	checkOffset(off)
	c.mu.Lock()
	defer c.mu.Unlock()

	frames, ok := c.files[f]
	if !ok {
		panic(fmt.Sprintf("Put of uncached frame %#x", pa))
	}
	cf, ok := frames.Get(&cachedFrame{off: off})
	if !ok || cf.pa != pa {
		panic(fmt.Sprintf("Put of frame %#x at offset %#x does not match the cache", pa, off))
	}
	if !c.mf.DecRef(pa) {
		return
	}
	frames.Delete(cf)
	if frames.Len() == 0 {
		delete(c.files, f)
	}
	log.Debugf("FrameCache: evicted offset %#x, frame %#x", off, pa)
}

// Dup takes another mapper reference on a frame that is already mapped, as
// when an address space is forked.
func (c *FrameCache) Dup(pa uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mf.IncRef(pa)
}

// Lookup returns the frame caching the page of f at off, without taking a
// reference.
func (c *FrameCache) Lookup(f vfs.File, off int64) (uintptr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames, ok := c.files[f]
	if !ok {
		return 0, false
	}
	cf, ok := frames.Get(&cachedFrame{off: off})
	if !ok {
		return 0, false
	}
	return cf.pa, true
}

// ReadCached copies the cached page of f at off into dst and returns true,
// or returns false if the page is not cached. A cached page holds the
// writes of live shared mappings that have not been written back yet.
func (c *FrameCache) ReadCached(f vfs.File, off int64, dst []byte) bool {
	checkOffset(off)
	c.mu.Lock()
	defer c.mu.Unlock()
	frames, ok := c.files[f]
	if !ok {
		return false
	}
	cf, ok := frames.Get(&cachedFrame{off: off})
	if !ok {
		return false
	}
	copy(dst, c.mf.Slice(cf.pa))
	return true
}

// CachedOffsets returns the offsets of f's cached pages in ascending order.
func (c *FrameCache) CachedOffsets(f vfs.File) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames, ok := c.files[f]
	if !ok {
		return nil
	}
	offs := make([]int64, 0, frames.Len())
	frames.Ascend(func(cf *cachedFrame) bool {
		offs = append(offs, cf.off)
		return true
	})
	return offs
}

// Len returns the number of cached pages across all files.
func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, frames := range c.files {
		n += frames.Len()
	}
	return n
}
