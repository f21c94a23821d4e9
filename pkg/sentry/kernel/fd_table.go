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
	"bytes"
	"fmt"
	"sync"

	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/refs"
	"gvisor.dev/minivm/pkg/sentry/vfs"
)

// FDTable maps file descriptors to open files. It holds one reference on
// every file it contains.
type FDTable struct {
	refs.AtomicRefCount

	// mu protects below.
	mu sync.Mutex

	// files is indexed by descriptor; nil entries are free.
	files [linux.NOFILE]vfs.File

	// used is the number of non-nil entries.
	used int
}

// NewFDTable returns an empty table holding one reference.
func NewFDTable() *FDTable {
	return &FDTable{}
}

// DecRef implements refs.RefCounter.DecRef. The last reference closes every
// file in the table.
func (f *FDTable) DecRef() {
	f.DecRefWithDestructor(f.destroy)
}

func (f *FDTable) destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fd, file := range f.files {
		if file != nil {
			file.DecRef()
			f.files[fd] = nil
		}
	}
	f.used = 0
}

// Size returns the number of open descriptors.
func (f *FDTable) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used
}

// NewFD installs file at the lowest free descriptor and returns it. The
// table takes its own reference. A full table is linuxerr.EMFILE.
func (f *FDTable) NewFD(file vfs.File) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fd := range f.files {
		if f.files[fd] == nil {
			file.IncRef()
			f.files[fd] = file
			f.used++
			return int32(fd), nil
		}
	}
	return -1, linuxerr.EMFILE
}

// Get returns the file at fd with a reference taken for the caller, who must
// DecRef it. A descriptor that is out of range or not open is
// linuxerr.EBADF.
func (f *FDTable) Get(fd int32) (vfs.File, error) {
	if fd < 0 || int(fd) >= len(f.files) {
		return nil, linuxerr.EBADF
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file := f.files[fd]
	if file == nil {
		return nil, linuxerr.EBADF
	}
	file.IncRef()
	return file, nil
}

// Remove closes fd, dropping the table's reference on its file.
func (f *FDTable) Remove(fd int32) error {
	if fd < 0 || int(fd) >= len(f.files) {
		return linuxerr.EBADF
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file := f.files[fd]
	if file == nil {
		return linuxerr.EBADF
	}
	f.files[fd] = nil
	f.used--
	file.DecRef()
	return nil
}

// Fork returns an independent table holding the same files.
func (f *FDTable) Fork() *FDTable {
	clone := NewFDTable()
	f.mu.Lock()
	defer f.mu.Unlock()
	for fd, file := range f.files {
		if file != nil {
			file.IncRef()
			clone.files[fd] = file
		}
	}
	clone.used = f.used
	return clone
}

// String is a stringer for FDTable.
func (f *FDTable) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b bytes.Buffer
	for fd, file := range f.files {
		if file == nil {
			continue
		}
		name := "?"
		if n, ok := file.(interface{ Name() string }); ok {
			name = n.Name()
		}
		fmt.Fprintf(&b, "\tfd:%d => name %s\n", fd, name)
	}
	return b.String()
}
