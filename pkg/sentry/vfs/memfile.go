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
	"sync"

	"gvisor.dev/minivm/pkg/errors/linuxerr"
)

// MemFile is a FileDescriptionImpl whose contents live in memory.
type MemFile struct {
	mu sync.RWMutex

	// data is the file contents. Protected by mu.
	data []byte

	// transientErrors is the number of upcoming writes that fail with
	// linuxerr.ErrWouldBlock. Protected by mu.
	transientErrors int
}

// NewMemFile returns an open file holding a copy of data.
func NewMemFile(name string, data []byte, flags uint32) *FileDescription {
	fd := &FileDescription{}
	fd.Init(&MemFile{data: append([]byte(nil), data...)}, name, flags)
	return fd
}

// Release implements FileDescriptionImpl.Release.
func (f *MemFile) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = nil
}

// PRead implements FileDescriptionImpl.PRead.
func (f *MemFile) PRead(dst []byte, offset int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if offset >= int64(len(f.data)) {
		if len(dst) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(dst, f.data[offset:])
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

// PWrite implements FileDescriptionImpl.PWrite.
func (f *MemFile) PWrite(src []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transientErrors > 0 {
		f.transientErrors--
		return 0, linuxerr.ErrWouldBlock
	}
	if end := offset + int64(len(src)); end > int64(len(f.data)) {
		if end > int64(cap(f.data)) {
			grown := make([]byte, end, 2*end)
			copy(grown, f.data)
			f.data = grown
		} else {
			f.data = f.data[:end]
		}
	}
	return copy(f.data[offset:], src), nil
}

// Size implements FileDescriptionImpl.Size.
func (f *MemFile) Size() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.data))
}

// Bytes returns a copy of the file contents.
func (f *MemFile) Bytes() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]byte(nil), f.data...)
}

// InjectWouldBlock makes the next n writes fail with
// linuxerr.ErrWouldBlock.
func (f *MemFile) InjectWouldBlock(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transientErrors = n
}
