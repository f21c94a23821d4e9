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

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/minivm/pkg/errors"
)

// The following errors are semantically identical to the unix.Errno of the
// same name. The Errno method returns a number such that the error can be
// compared to unix.Errno (e.g. EFAULT.Errno() == unix.EFAULT).
var (
	noError *errors.Error = nil

	EPERM        = errors.New(unix.EPERM, "operation not permitted")
	ENOENT       = errors.New(unix.ENOENT, "no such file or directory")
	EINTR        = errors.New(unix.EINTR, "interrupted system call")
	EIO          = errors.New(unix.EIO, "I/O error")
	ECHILD       = errors.New(unix.ECHILD, "no child processes")
	EBADF        = errors.New(unix.EBADF, "bad file number")
	EAGAIN       = errors.New(unix.EAGAIN, "try again")
	ENOMEM       = errors.New(unix.ENOMEM, "out of memory")
	EACCES       = errors.New(unix.EACCES, "permission denied")
	EFAULT       = errors.New(unix.EFAULT, "bad address")
	EBUSY        = errors.New(unix.EBUSY, "device or resource busy")
	EEXIST       = errors.New(unix.EEXIST, "file exists")
	EINVAL       = errors.New(unix.EINVAL, "invalid argument")
	EMFILE       = errors.New(unix.EMFILE, "too many open files")
	EFBIG        = errors.New(unix.EFBIG, "file too large")
	ENOSPC       = errors.New(unix.ENOSPC, "no space left on device")
	ERANGE       = errors.New(unix.ERANGE, "math result not representable")
	ENAMETOOLONG = errors.New(unix.ENAMETOOLONG, "file name too long")
	ENOSYS       = errors.New(unix.ENOSYS, "invalid system call number")
	EOVERFLOW    = errors.New(unix.EOVERFLOW, "value too large for defined data type")
)

// errnos maps unix.Errno values to the exported errors above.
var errnos = map[unix.Errno]*errors.Error{
	0:                 noError,
	unix.EPERM:        EPERM,
	unix.ENOENT:       ENOENT,
	unix.EINTR:        EINTR,
	unix.EIO:          EIO,
	unix.ECHILD:       ECHILD,
	unix.EBADF:        EBADF,
	unix.EAGAIN:       EAGAIN,
	unix.ENOMEM:       ENOMEM,
	unix.EACCES:       EACCES,
	unix.EFAULT:       EFAULT,
	unix.EBUSY:        EBUSY,
	unix.EEXIST:       EEXIST,
	unix.EINVAL:       EINVAL,
	unix.EMFILE:       EMFILE,
	unix.EFBIG:        EFBIG,
	unix.ENOSPC:       ENOSPC,
	unix.ERANGE:       ERANGE,
	unix.ENAMETOOLONG: ENAMETOOLONG,
	unix.ENOSYS:       ENOSYS,
	unix.EOVERFLOW:    EOVERFLOW,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno. Errnos without an
// exported value are wrapped in a fresh *errors.Error.
func ErrorFromUnix(err unix.Errno) error {
	if e, ok := errnos[err]; ok {
		if e == noError {
			return nil
		}
		return e
	}
	return errors.New(err, err.Error())
}

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compares a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	if err == nil {
		err = noError
	}
	return e == err || unixErr == err
}
