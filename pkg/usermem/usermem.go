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

// Package usermem moves data between kernel buffers and user address
// spaces.
//
// Every copy goes through a Translator one page at a time, so a copy may
// span any number of pages and fails at the first page that cannot be
// accessed. Bytes copied before a failure are not rolled back; the returned
// count says how many there were.
package usermem

import (
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
)

// Translator resolves user addresses to the memory backing them.
type Translator interface {
	// TranslatePage returns the memory from addr to the end of the page
	// containing addr, if that page permits accesses of type at. Otherwise
	// it returns an error, usually linuxerr.ErrInvalidAddress.
	TranslatePage(addr hostarch.Addr, at hostarch.AccessType) ([]byte, error)
}

// checkRange returns linuxerr.ErrInvalidAddress if [addr, addr+length)
// wraps.
func checkRange(addr hostarch.Addr, length int) error {
	if _, ok := addr.AddLength(uint64(length)); !ok {
		return linuxerr.ErrInvalidAddress
	}
	return nil
}

// CopyOut copies src to the user memory at addr. It returns the number of
// bytes copied.
func CopyOut(t Translator, addr hostarch.Addr, src []byte) (int, error) {
	if err := checkRange(addr, len(src)); err != nil {
		return 0, err
	}
	done := 0
	for done < len(src) {
		dst, err := t.TranslatePage(addr, hostarch.Write)
		if err != nil {
			return done, err
		}
		n := copy(dst, src[done:])
		done += n
		addr += hostarch.Addr(n)
	}
	return done, nil
}

// CopyIn copies len(dst) bytes from the user memory at addr into dst. It
// returns the number of bytes copied.
func CopyIn(t Translator, addr hostarch.Addr, dst []byte) (int, error) {
	if err := checkRange(addr, len(dst)); err != nil {
		return 0, err
	}
	done := 0
	for done < len(dst) {
		src, err := t.TranslatePage(addr, hostarch.Read)
		if err != nil {
			return done, err
		}
		n := copy(dst[done:], src)
		done += n
		addr += hostarch.Addr(n)
	}
	return done, nil
}

// CopyInString copies a NUL-terminated string from the user memory at addr
// into dst, scanning at most maxLen bytes. It returns the length of the
// string without its terminator. dst is NUL-terminated on every return.
//
// If the terminator is found at index k < maxLen, dst holds those k bytes
// and the terminator. If maxLen bytes are scanned without finding one,
// CopyInString returns maxLen-1 and linuxerr.ErrTooLong. If an inaccessible
// page is reached first, it returns the bytes copied so far and the
// translation error.
//
// Preconditions: 0 < maxLen <= len(dst).
func CopyInString(t Translator, addr hostarch.Addr, dst []byte, maxLen int) (int, error) {
	if maxLen <= 0 || maxLen > len(dst) {
		panic("CopyInString: maxLen out of range")
	}
	done := 0
	for done < maxLen {
		src, err := t.TranslatePage(addr, hostarch.Read)
		if err != nil {
			dst[done] = 0
			return done, err
		}
		if len(src) > maxLen-done {
			src = src[:maxLen-done]
		}
		for _, c := range src {
			dst[done] = c
			if c == 0 {
				return done, nil
			}
			done++
		}
		addr += hostarch.Addr(len(src))
	}
	dst[maxLen-1] = 0
	return maxLen - 1, linuxerr.ErrTooLong
}

// CopyStringIn is like CopyInString, but returns the string. On error the
// bytes read so far are returned.
func CopyStringIn(t Translator, addr hostarch.Addr, maxLen int) (string, error) {
	buf := make([]byte, maxLen)
	n, err := CopyInString(t, addr, buf, maxLen)
	return string(buf[:n]), err
}
