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

package vfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
)

func TestMemFileReadWrite(t *testing.T) {
	fd := NewMemFile("mem", []byte("hello"), linux.O_RDWR)
	defer fd.DecRef()

	if !fd.Readable() || !fd.Writable() {
		t.Errorf("O_RDWR file: Readable() = %v, Writable() = %v", fd.Readable(), fd.Writable())
	}
	if n, err := fd.WriteAt([]byte("XY"), 8); n != 2 || err != nil {
		t.Fatalf("WriteAt: got (%v, %v), want (2, nil)", n, err)
	}
	if got := fd.Size(); got != 10 {
		t.Errorf("Size() = %d, want 10", got)
	}
	buf := make([]byte, 12)
	n, err := fd.ReadAt(buf, 0)
	if n != 10 || err != io.EOF {
		t.Errorf("ReadAt: got (%v, %v), want (10, EOF)", n, err)
	}
	if diff := cmp.Diff([]byte("hello\x00\x00\x00XY"), buf[:n]); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
	if n, err := fd.ReadAt(buf, 20); n != 0 || err != io.EOF {
		t.Errorf("ReadAt past end: got (%v, %v), want (0, EOF)", n, err)
	}
}

func TestMemFileWouldBlock(t *testing.T) {
	fd := NewMemFile("mem", nil, linux.O_WRONLY)
	defer fd.DecRef()
	if fd.Readable() {
		t.Errorf("O_WRONLY file is readable")
	}
	fd.Impl().(*MemFile).InjectWouldBlock(2)
	for i := 0; i < 2; i++ {
		if _, err := fd.WriteAt([]byte("a"), 0); err != linuxerr.ErrWouldBlock {
			t.Errorf("WriteAt #%d: got %v, want %v", i, err, linuxerr.ErrWouldBlock)
		}
	}
	if _, err := fd.WriteAt([]byte("a"), 0); err != nil {
		t.Errorf("WriteAt after transient errors: %v", err)
	}
}

func TestFileDescriptionRefs(t *testing.T) {
	fd := NewMemFile("mem", []byte("x"), linux.O_RDONLY)
	fd.IncRef()
	fd.DecRef()
	if got := fd.Impl().(*MemFile).Size(); got != 1 {
		t.Fatalf("file released with a reference outstanding")
	}
	fd.DecRef()
	if got := fd.Impl().(*MemFile).Size(); got != 0 {
		t.Errorf("file not released after last DecRef")
	}
}

func TestHostFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backing")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	fd, err := OpenHostFile(path, linux.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenHostFile failed: %v", err)
	}
	if got := fd.Size(); got != 10 {
		t.Errorf("Size() = %d, want 10", got)
	}
	if _, err := fd.WriteAt([]byte("ab"), 4); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	buf := make([]byte, 16)
	n, err := fd.ReadAt(buf, 2)
	if n != 8 || err != io.EOF {
		t.Errorf("ReadAt: got (%v, %v), want (8, EOF)", n, err)
	}
	if got, want := string(buf[:n]), "23ab6789"; got != want {
		t.Errorf("ReadAt got %q, want %q", got, want)
	}
	fd.DecRef()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if want := "0123ab6789"; string(got) != want {
		t.Errorf("host file holds %q, want %q", got, want)
	}
}

func TestOpenHostFileErrors(t *testing.T) {
	if _, err := OpenHostFile(filepath.Join(t.TempDir(), "missing"), linux.O_RDONLY, 0); err != linuxerr.ENOENT {
		t.Errorf("OpenHostFile of missing file: got %v, want %v", err, linuxerr.ENOENT)
	}
	if _, err := OpenHostFile(t.TempDir(), linux.O_RDONLY, 0); err != linuxerr.EINVAL {
		t.Errorf("OpenHostFile of directory: got %v, want %v", err, linuxerr.EINVAL)
	}
}
