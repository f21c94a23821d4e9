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

package kernel

import (
	"strings"
	"testing"

	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/sentry/vfs"
)

func TestFDTableNewFD(t *testing.T) {
	fdt := NewFDTable()
	f := vfs.NewMemFile("file", nil, linux.O_RDONLY)
	defer f.DecRef()

	for want := int32(0); want < 3; want++ {
		fd, err := fdt.NewFD(f)
		if err != nil || fd != want {
			t.Fatalf("NewFD = (%d, %v), want (%d, nil)", fd, err, want)
		}
	}
	if err := fdt.Remove(1); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if fd, err := fdt.NewFD(f); err != nil || fd != 1 {
		t.Errorf("NewFD after Remove = (%d, %v), want lowest free descriptor 1", fd, err)
	}
	if got := fdt.Size(); got != 3 {
		t.Errorf("Size() = %d, want 3", got)
	}
	if got := f.ReadRefs(); got != 4 {
		t.Errorf("file refs = %d, want 4", got)
	}
	if !strings.Contains(fdt.String(), "fd:2 => name file") {
		t.Errorf("String() = %q", fdt.String())
	}
	fdt.DecRef()
	if got := f.ReadRefs(); got != 1 {
		t.Errorf("file refs after table release = %d, want 1", got)
	}
}

func TestFDTableFull(t *testing.T) {
	fdt := NewFDTable()
	defer fdt.DecRef()
	f := vfs.NewMemFile("file", nil, linux.O_RDONLY)
	defer f.DecRef()
	for i := 0; i < linux.NOFILE; i++ {
		if _, err := fdt.NewFD(f); err != nil {
			t.Fatalf("NewFD %d failed: %v", i, err)
		}
	}
	if _, err := fdt.NewFD(f); err != linuxerr.EMFILE {
		t.Errorf("NewFD on a full table: got err %v, want %v", err, linuxerr.EMFILE)
	}
}

func TestFDTableGet(t *testing.T) {
	fdt := NewFDTable()
	defer fdt.DecRef()
	f := vfs.NewMemFile("file", nil, linux.O_RDWR)
	fd, err := fdt.NewFD(f)
	if err != nil {
		t.Fatalf("NewFD failed: %v", err)
	}
	f.DecRef()

	got, err := fdt.Get(fd)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != vfs.File(f) {
		t.Errorf("Get returned a different file")
	}
	got.DecRef()
	for _, bad := range []int32{-1, fd + 1, linux.NOFILE} {
		if _, err := fdt.Get(bad); err != linuxerr.EBADF {
			t.Errorf("Get(%d): got err %v, want %v", bad, err, linuxerr.EBADF)
		}
		if err := fdt.Remove(bad); err != linuxerr.EBADF {
			t.Errorf("Remove(%d): got err %v, want %v", bad, err, linuxerr.EBADF)
		}
	}
}

func TestFDTableFork(t *testing.T) {
	fdt := NewFDTable()
	f := vfs.NewMemFile("file", nil, linux.O_RDWR)
	defer f.DecRef()
	if _, err := fdt.NewFD(f); err != nil {
		t.Fatalf("NewFD failed: %v", err)
	}
	clone := fdt.Fork()
	if err := fdt.Remove(0); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := clone.Get(0); err != nil {
		t.Errorf("clone lost descriptor 0 when the original closed it: %v", err)
	} else {
		f.DecRef()
	}
	if got := clone.Size(); got != 1 {
		t.Errorf("clone Size() = %d, want 1", got)
	}
	fdt.DecRef()
	clone.DecRef()
	if got := f.ReadRefs(); got != 1 {
		t.Errorf("file refs after releasing both tables = %d, want 1", got)
	}
}
