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

package mm

import (
	"io"
	"time"

	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

// faultLog reports bad user faults without letting a misbehaving task flood
// the log.
var faultLog = log.BasicRateLimitedLogger(time.Second)

// HandleFault populates the page containing addr for an access of type at.
// The page must lie in a committed mapping whose permissions allow at and,
// for a file mapping, must start before the end of the file; anything else
// is linuxerr.ErrInvalidAddress. A private file page is filled from the
// frame of a live shared mapping of the same page when there is one. A fault on a page that is
// already present and permits the access succeeds without doing anything.
func (mm *MemoryManager) HandleFault(addr hostarch.Addr, at hostarch.AccessType) error {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()
	return mm.handleFaultLocked(addr, at)
}

// handleFaultLocked implements HandleFault.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) handleFaultLocked(addr hostarch.Addr, at hostarch.AccessType) error {
	if addr >= MaxUserAddr {
		faultLog.Warningf("Fault at %v (%v) outside the user range", addr, at)
		return linuxerr.ErrInvalidAddress
	}
	page := addr.RoundDown()
	if _, opts, ok := mm.userTables.Lookup(page, true); ok {
		if !opts.AccessType.SupersetOf(at) {
			faultLog.Warningf("Fault at %v (%v) on a page mapped %v", addr, at, opts.AccessType)
			return linuxerr.ErrInvalidAddress
		}
		return nil
	}
	v := mm.findVMALocked(page)
	if v == nil {
		faultLog.Warningf("Fault at %v (%v) outside every mapping", addr, at)
		return linuxerr.ErrInvalidAddress
	}
	if !v.perms.SupersetOf(at) {
		faultLog.Warningf("Fault at %v (%v) in mapping [%v, %v) with permissions %v", addr, at, v.start, v.end, v.perms)
		return linuxerr.ErrInvalidAddress
	}

	off := v.fileOffset(page)
	if v.file != nil && off >= v.file.Size() {
		faultLog.Warningf("Fault at %v (%v) in mapping [%v, %v) past the end of its file", addr, at, v.start, v.end)
		return linuxerr.ErrInvalidAddress
	}
	if v.ownership == SharedRefCounted {
		pa, err := mm.cache.Get(v.file, off)
		if err != nil {
			return err
		}
		if err := mm.mapUserLocked(page, hostarch.PageSize, v.perms, pa); err != nil {
			mm.cache.Put(v.file, off, pa)
			return err
		}
		return nil
	}

	pa, err := mm.mf.Allocate(pgalloc.AllocOpts{Zero: true})
	if err != nil {
		return err
	}
	if v.file != nil && !mm.cache.ReadCached(v.file, off, mm.mf.Slice(pa)) {
		if _, err := v.file.ReadAt(mm.mf.Slice(pa), off); err != nil && err != io.EOF {
			mm.mf.DecRef(pa)
			return err
		}
	}
	if err := mm.mapUserLocked(page, hostarch.PageSize, v.perms, pa); err != nil {
		mm.mf.DecRef(pa)
		return err
	}
	return nil
}
