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

// Package vfs provides the file objects the memory subsystem maps.
//
// Only the slice of a file system the memory subsystem needs is here: open
// file descriptions with reference counts and positional I/O. Lookup,
// directories and the rest of a file system are outside this package.
package vfs

import (
	"fmt"
	"io"
	"sync/atomic"

	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/refs"
)

// File is an open file as used by file-backed mappings. Every method is
// safe for concurrent use.
type File interface {
	// IncRef takes a reference on the file.
	IncRef()

	// DecRef drops a reference. The file is closed when the last reference
	// is dropped.
	DecRef()

	// ReadAt reads len(dst) bytes at off. Like io.ReaderAt, a short read
	// returns io.EOF.
	ReadAt(dst []byte, off int64) (int, error)

	// WriteAt writes src at off, extending the file if needed. It may
	// return linuxerr.ErrWouldBlock when the write should be retried.
	WriteAt(src []byte, off int64) (int, error)

	// Size returns the current file size.
	Size() int64

	// Readable returns true if the file was opened for reading.
	Readable() bool

	// Writable returns true if the file was opened for writing.
	Writable() bool
}

// FileDescriptionImpl contains the parts of a FileDescription that differ
// between file types.
type FileDescriptionImpl interface {
	// Release is called when the last reference is dropped.
	Release()

	// PRead reads into dst at offset. Short reads at end of file return
	// io.EOF.
	PRead(dst []byte, offset int64) (int, error)

	// PWrite writes src at offset.
	PWrite(src []byte, offset int64) (int, error)

	// Size returns the file size.
	Size() int64
}

// FileDescription is an open file. It implements File.
type FileDescription struct {
	refs.AtomicRefCount

	impl     FileDescriptionImpl
	name     string
	readable bool
	writable bool

	// released is set once the last reference is dropped.
	released atomic.Bool
}

var _ File = (*FileDescription)(nil)

// Init must be called before first use of fd. flags are the open(2) flags;
// only the access mode is kept. fd starts with one reference.
func (fd *FileDescription) Init(impl FileDescriptionImpl, name string, flags uint32) {
	fd.impl = impl
	fd.name = name
	mode := flags & linux.O_ACCMODE
	fd.readable = mode == linux.O_RDONLY || mode == linux.O_RDWR
	fd.writable = mode == linux.O_WRONLY || mode == linux.O_RDWR
	refs.Register(fd)
}

// DecRef implements File.DecRef.
func (fd *FileDescription) DecRef() {
	fd.DecRefWithDestructor(func() {
		if fd.released.Swap(true) {
			panic(fmt.Sprintf("file %q released twice", fd.name))
		}
		fd.impl.Release()
		refs.Unregister(fd)
	})
}

// Impl returns the FileDescriptionImpl associated with fd.
func (fd *FileDescription) Impl() FileDescriptionImpl {
	return fd.impl
}

// Name returns the name fd was opened with.
func (fd *FileDescription) Name() string {
	return fd.name
}

// Readable implements File.Readable.
func (fd *FileDescription) Readable() bool {
	return fd.readable
}

// Writable implements File.Writable.
func (fd *FileDescription) Writable() bool {
	return fd.writable
}

// ReadAt implements File.ReadAt.
func (fd *FileDescription) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return fd.impl.PRead(dst, off)
}

// WriteAt implements File.WriteAt.
func (fd *FileDescription) WriteAt(src []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrShortWrite
	}
	return fd.impl.PWrite(src, off)
}

// Size implements File.Size.
func (fd *FileDescription) Size() int64 {
	return fd.impl.Size()
}

// RefType implements refs.CheckedObject.RefType.
func (fd *FileDescription) RefType() string {
	return "vfs.FileDescription"
}

// LeakMessage implements refs.CheckedObject.LeakMessage.
func (fd *FileDescription) LeakMessage() string {
	return fmt.Sprintf("[vfs.FileDescription %p] %q reference count of %d instead of 0", fd, fd.name, fd.ReadRefs())
}
