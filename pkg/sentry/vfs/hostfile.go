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

	"golang.org/x/sys/unix"
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/log"
)

// HostFile is a FileDescriptionImpl backed by a host file descriptor.
type HostFile struct {
	// hostFD is the host file descriptor. It is owned by the HostFile and
	// closed on Release.
	hostFD int
}

// NewHostFile returns an open file backed by hostFD, which must be a
// regular file. On success the returned file owns hostFD.
func NewHostFile(name string, hostFD int, flags uint32) (*FileDescription, error) {
	var st unix.Stat_t
	if err := unix.Fstat(hostFD, &st); err != nil {
		return nil, hostError(err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return nil, linuxerr.EINVAL
	}
	fd := &FileDescription{}
	fd.Init(&HostFile{hostFD: hostFD}, name, flags)
	return fd, nil
}

// OpenHostFile opens path on the host with the given open(2) flags.
func OpenHostFile(path string, flags uint32, mode uint32) (*FileDescription, error) {
	hostFD, err := unix.Open(path, hostFlags(flags), mode)
	if err != nil {
		return nil, hostError(err)
	}
	fd, err := NewHostFile(path, hostFD, flags)
	if err != nil {
		unix.Close(hostFD)
		return nil, err
	}
	return fd, nil
}

// hostFlags translates open(2) flags of this kernel to host flags.
func hostFlags(flags uint32) int {
	var h int
	switch flags & linux.O_ACCMODE {
	case linux.O_WRONLY:
		h = unix.O_WRONLY
	case linux.O_RDWR:
		h = unix.O_RDWR
	default:
		h = unix.O_RDONLY
	}
	if flags&linux.O_CREAT != 0 {
		h |= unix.O_CREAT
	}
	if flags&linux.O_TRUNC != 0 {
		h |= unix.O_TRUNC
	}
	return h | unix.O_CLOEXEC
}

// hostError converts an error from the host to the kernel's error values.
// EAGAIN becomes linuxerr.ErrWouldBlock so callers can retry.
func hostError(err error) error {
	errno, ok := err.(unix.Errno)
	if !ok {
		return err
	}
	if errno == unix.EAGAIN || errno == unix.EINTR {
		return linuxerr.ErrWouldBlock
	}
	return linuxerr.ErrorFromUnix(errno)
}

// Release implements FileDescriptionImpl.Release.
func (f *HostFile) Release() {
	if err := unix.Close(f.hostFD); err != nil {
		log.Warningf("Failed to close host fd %d: %v", f.hostFD, err)
	}
	f.hostFD = -1
}

// PRead implements FileDescriptionImpl.PRead.
func (f *HostFile) PRead(dst []byte, offset int64) (int, error) {
	done := 0
	for done < len(dst) {
		n, err := unix.Pread(f.hostFD, dst[done:], offset+int64(done))
		if err != nil {
			return done, hostError(err)
		}
		if n == 0 {
			return done, io.EOF
		}
		done += n
	}
	return done, nil
}

// PWrite implements FileDescriptionImpl.PWrite.
func (f *HostFile) PWrite(src []byte, offset int64) (int, error) {
	done := 0
	for done < len(src) {
		n, err := unix.Pwrite(f.hostFD, src[done:], offset+int64(done))
		if err != nil {
			return done, hostError(err)
		}
		done += n
	}
	return done, nil
}

// Size implements FileDescriptionImpl.Size.
func (f *HostFile) Size() int64 {
	var st unix.Stat_t
	if err := unix.Fstat(f.hostFD, &st); err != nil {
		log.Warningf("Failed to stat host fd %d: %v", f.hostFD, err)
		return 0
	}
	return st.Size
}
