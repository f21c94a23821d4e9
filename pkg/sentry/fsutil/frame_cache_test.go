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

package fsutil

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
	"gvisor.dev/minivm/pkg/sentry/vfs"
)

func newTestCache(t *testing.T) (*FrameCache, *pgalloc.MemoryFile) {
	t.Helper()
	mf, err := pgalloc.NewMemoryFile(pgalloc.MemoryFileOpts{Frames: 8})
	if err != nil {
		t.Fatalf("NewMemoryFile failed: %v", err)
	}
	t.Cleanup(mf.Destroy)
	return NewFrameCache(mf), mf
}

func TestGetFillsFromFile(t *testing.T) {
	c, mf := newTestCache(t)
	contents := bytes.Repeat([]byte("ab"), hostarch.PageSize/2+10)
	f := vfs.NewMemFile("f", contents, linux.O_RDWR)
	defer f.DecRef()

	pa, err := c.Get(f, hostarch.PageSize)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	page := mf.Slice(pa)
	if !bytes.Equal(page[:20], contents[hostarch.PageSize:]) {
		t.Errorf("cached page does not hold the file contents")
	}
	if !bytes.Equal(page[20:], make([]byte, hostarch.PageSize-20)) {
		t.Errorf("bytes past end of file are not zero")
	}
	c.Put(f, hostarch.PageSize, pa)
	if got := mf.Usage(); got != 0 {
		t.Errorf("Usage() after Put = %d, want 0", got)
	}
}

func TestSharing(t *testing.T) {
	c, mf := newTestCache(t)
	f := vfs.NewMemFile("f", []byte("shared"), linux.O_RDWR)
	defer f.DecRef()

	pa1, err := c.Get(f, 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	pa2, err := c.Get(f, 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pa1 != pa2 {
		t.Errorf("two mappers of the same page got frames %#x and %#x", pa1, pa2)
	}
	c.Dup(pa1)
	if got := mf.Refs(pa1); got != 3 {
		t.Errorf("Refs() = %d, want 3", got)
	}

	pa3, err := c.Get(f, 2*hostarch.PageSize)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff([]int64{0, 2 * hostarch.PageSize}, c.CachedOffsets(f)); diff != "" {
		t.Errorf("CachedOffsets mismatch (-want +got):\n%s", diff)
	}

	for i := 0; i < 3; i++ {
		c.Put(f, 0, pa1)
	}
	c.Put(f, 2*hostarch.PageSize, pa3)
	if got := c.Len(); got != 0 {
		t.Errorf("Len() after all puts = %d, want 0", got)
	}
	if _, ok := c.Lookup(f, 0); ok {
		t.Errorf("Lookup found an evicted page")
	}
	if got := mf.Usage(); got != 0 {
		t.Errorf("Usage() = %d, want 0", got)
	}
}

func TestPutMismatchPanics(t *testing.T) {
	c, _ := newTestCache(t)
	f := vfs.NewMemFile("f", nil, linux.O_RDWR)
	defer f.DecRef()
	pa, err := c.Get(f, 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer c.Put(f, 0, pa)
	defer func() {
		if recover() == nil {
			t.Errorf("Put with the wrong offset did not panic")
		}
	}()
	c.Put(f, hostarch.PageSize, pa)
}

func TestReadCached(t *testing.T) {
	c, mf := newTestCache(t)
	f := vfs.NewMemFile("f", []byte("on disk"), linux.O_RDWR)
	defer f.DecRef()

	dst := make([]byte, hostarch.PageSize)
	if c.ReadCached(f, 0, dst) {
		t.Fatalf("ReadCached of an uncached page succeeded")
	}
	pa, err := c.Get(f, 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	copy(mf.Slice(pa), "in cache")
	if !c.ReadCached(f, 0, dst) {
		t.Fatalf("ReadCached of a cached page failed")
	}
	if got := string(dst[:8]); got != "in cache" {
		t.Errorf("ReadCached copied %q, want the cached frame", got)
	}
	if got := mf.Refs(pa); got != 1 {
		t.Errorf("frame refs = %d after ReadCached, want 1", got)
	}
	c.Put(f, 0, pa)
	if c.ReadCached(f, 0, dst) {
		t.Errorf("ReadCached succeeded after eviction")
	}
}
