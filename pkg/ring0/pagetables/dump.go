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

package pagetables

import (
	"fmt"
	"io"
)

// Dump writes the tree of valid entries to w, one line per entry, indented
// by level. Borrowed root entries are printed but not descended into.
func (p *PageTables) Dump(w io.Writer) {
	fmt.Fprintf(w, "page table %#x\n", p.rootPhysical)
	for i := range p.root {
		entry := &p.root[i]
		if !entry.Valid() {
			continue
		}
		if p.shared[i] {
			fmt.Fprintf(w, " ..%d: pte %#x pa %#x shared\n", i, uintptr(*entry), entry.Address())
			continue
		}
		p.dumpEntry(w, entry, i, levels-1, " ..")
	}
}

func (p *PageTables) dumpEntry(w io.Writer, entry *PTE, index, level int, prefix string) {
	if entry.IsLeaf() {
		fmt.Fprintf(w, "%s%d: pte %#x pa %#x %s\n", prefix, index, uintptr(*entry), entry.Address(), entry.Opts())
		return
	}
	fmt.Fprintf(w, "%s%d: pte %#x pa %#x\n", prefix, index, uintptr(*entry), entry.Address())
	if level == 0 {
		return
	}
	child := p.Allocator.LookupPTEs(entry.Address())
	for i := range child {
		if child[i].Valid() {
			p.dumpEntry(w, &child[i], i, level-1, prefix+" ..")
		}
	}
}
