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

package usermem

import (
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/ring0/pagetables"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

// PageTableIO is a Translator for an explicitly named user page table. It
// does not need the table to be active, and it is what kernel code uses to
// reach the memory of a task other than the caller.
//
// Only leaves that are valid, user-accessible and permit the access are
// usable. Reads mark a leaf accessed; writes also mark it dirty.
type PageTableIO struct {
	// Tables is the user page table.
	Tables *pagetables.PageTables

	// Memory backs every frame the table maps.
	Memory *pgalloc.MemoryFile
}

// TranslatePage implements Translator.TranslatePage.
func (p PageTableIO) TranslatePage(addr hostarch.Addr, at hostarch.AccessType) ([]byte, error) {
	pte := p.Tables.LookupPTE(addr)
	if pte == nil {
		return nil, linuxerr.ErrInvalidAddress
	}
	opts := pte.Opts()
	if !opts.User || !opts.AccessType.SupersetOf(at) || !p.Memory.Contains(pte.Address()) {
		return nil, linuxerr.ErrInvalidAddress
	}
	pte.SetAccessed(at.Write)
	return p.Memory.Slice(pte.Address() + uintptr(addr.PageOffset())), nil
}
