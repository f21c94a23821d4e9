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
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/ring0/pagetables"
)

// writebackRetries bounds the retries of a single page write that keeps
// returning linuxerr.ErrWouldBlock.
const writebackRetries = 8

func writebackBackoff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond,
		RandomizationFactor: 0.1,
		Multiplier:          1.5,
		MaxInterval:         20 * time.Millisecond,
		Clock:               backoff.SystemClock,
	}, writebackRetries)
}

// dirtyLocked returns true if the page at addr was written through either
// table, and clears the dirty bits.
//
// Preconditions: mm.mappingMu must be locked. The page is mapped.
func (mm *MemoryManager) dirtyLocked(addr hostarch.Addr) bool {
	dirty := false
	for _, pte := range []*pagetables.PTE{mm.userTables.LookupPTE(addr), mm.kernelTables.LookupPTE(addr)} {
		if pte != nil && pte.Dirty() {
			dirty = true
			pte.ClearDirty()
		}
	}
	return dirty
}

// writebackLocked writes the dirty pages of the shared file mapping v to
// its file. Bytes beyond the end of the file are not written. A page whose
// write fails stays dirty.
//
// Preconditions: mm.mappingMu must be locked. v is committed and
// SharedRefCounted.
func (mm *MemoryManager) writebackLocked(v *vma) error {
	for _, p := range mm.populatedLocked(v.addrRange()) {
		if !mm.dirtyLocked(p.addr) {
			continue
		}
		off := v.fileOffset(p.addr)
		n := v.file.Size() - off
		if n <= 0 {
			continue
		}
		src := mm.mf.Slice(p.physical)
		if n < int64(len(src)) {
			src = src[:n]
		}
		op := func() error {
			_, err := v.file.WriteAt(src, off)
			if err == linuxerr.ErrWouldBlock {
				log.Debugf("Writeback of %v at offset %#x would block, retrying", p.addr, off)
				return err
			}
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		if err := backoff.Retry(op, writebackBackoff()); err != nil {
			mm.markDirtyLocked(p.addr)
			log.Warningf("Writeback of %v to offset %#x failed: %v", p.addr, off, err)
			return err
		}
	}
	return nil
}

// markDirtyLocked sets the dirty bit of the user leaf at addr again after a
// failed write.
//
// Preconditions: mm.mappingMu must be locked. The page is mapped.
func (mm *MemoryManager) markDirtyLocked(addr hostarch.Addr) {
	if pte := mm.userTables.LookupPTE(addr); pte != nil {
		pte.SetAccessed(true)
	}
}
