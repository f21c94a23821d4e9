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
	"fmt"
	"io"
)

// Dump writes both page tables of mm and its committed mappings to w.
func (mm *MemoryManager) Dump(w io.Writer) {
	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.checkLiveLocked()

	fmt.Fprintf(w, "address space: sz %#x, kernel stack %#x\n", mm.sz, mm.kstack)
	fmt.Fprintf(w, "user page table:\n")
	mm.userTables.Dump(w)
	fmt.Fprintf(w, "kernel page table:\n")
	mm.kernelTables.Dump(w)
	fmt.Fprintf(w, "mappings:\n")
	for i := range mm.vmas {
		v := &mm.vmas[i]
		if !v.valid {
			continue
		}
		backing := "anonymous"
		if v.file != nil {
			backing = fmt.Sprintf("file+%#x", v.offset)
		}
		fmt.Fprintf(w, "  %2d [%v, %v) %v %s %s\n", i, v.start, v.end, v.perms, v.ownership, backing)
	}
}
