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
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/ring0/pagetables"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

// Virtual address layout. The user range occupies root entries 0 and 1 and
// is private to each table. The direct map and the trampoline come from
// the kernel template. The kernel stack is private to each shadow table.
const (
	// MaxUserAddr is one beyond the highest user address.
	MaxUserAddr hostarch.Addr = 0x80000000

	// MmapTop is where the mapping region starts; it grows down from here.
	MmapTop hostarch.Addr = MaxUserAddr - 16<<20

	// KernBase is the start of the direct map of physical memory. Virtual
	// and physical addresses are equal inside it.
	KernBase hostarch.Addr = pgalloc.DefaultBase

	// kernLimit bounds the direct map to a single root entry.
	kernLimit hostarch.Addr = KernBase + 1<<30

	// KStack is the address of the per-space kernel stack page.
	KStack hostarch.Addr = 0x3EC0000000

	// Trampoline is the address of the trampoline page, the highest page
	// of the address space.
	Trampoline hostarch.Addr = pagetables.MaxVA - hostarch.PageSize
)

// userRange returns the user part of the address space.
func userRange() hostarch.AddrRange {
	return hostarch.AddrRange{Start: 0, End: MaxUserAddr}
}
