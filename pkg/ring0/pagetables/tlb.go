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
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/metric"
)

var tlbInvalidations = metric.MustCreateNewUint64Metric("/pagetables/tlb_invalidations", "Number of address translation cache invalidations.")

// Invalidator is notified whenever translations in a range may have
// changed. Stale translations for the range must not be used afterwards.
type Invalidator interface {
	Invalidate(pt *PageTables, start, end hostarch.Addr)
}

// invalidate is called on the exit path of every operation that changes
// entries, whether or not it succeeded.
func (p *PageTables) invalidate(start, end hostarch.Addr) {
	p.generation.Add(1)
	tlbInvalidations.Increment()
	if p.Invalidator != nil {
		p.Invalidator.Invalidate(p, start, end)
	}
}
