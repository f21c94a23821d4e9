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
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/usermem"
)

var _ usermem.Translator = (*MemoryManager)(nil)

// TranslatePage implements usermem.Translator.TranslatePage for the task
// running in mm. It resolves addr through the kernel-shadow table, as kernel
// code does while handling a trap, and faults in pages of committed
// mappings that are not yet populated.
//
// The returned memory stays valid until the page is unmapped. Since only the
// owning task changes mm, that cannot happen during its own copy.
func (mm *MemoryManager) TranslatePage(addr hostarch.Addr, at hostarch.AccessType) ([]byte, error) {
	if addr >= MaxUserAddr {
		return nil, linuxerr.ErrInvalidAddress
	}
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()

	pte := mm.kernelTables.LookupPTE(addr)
	if pte == nil {
		if err := mm.handleFaultLocked(addr, at); err != nil {
			return nil, linuxerr.ErrInvalidAddress
		}
		pte = mm.kernelTables.LookupPTE(addr)
	}
	if !pte.Opts().AccessType.SupersetOf(at) {
		return nil, linuxerr.ErrInvalidAddress
	}
	pte.SetAccessed(at.Write)
	return mm.mf.Slice(pte.Address() + uintptr(addr.PageOffset())), nil
}

// UserIO returns a Translator over mm's user table. Unlike mm itself it
// never populates pages, and requires user-accessible leaves.
func (mm *MemoryManager) UserIO() usermem.PageTableIO {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()
	return usermem.PageTableIO{Tables: mm.userTables, Memory: mm.mf}
}
