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

package kernel

import (
	"gvisor.dev/minivm/pkg/log"
)

// Fork creates a child of t with a copy of its address space and file
// table. On failure nothing is left behind.
func (t *Task) Fork() (*Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkRunningLocked()

	m, err := t.mm.Fork()
	if err != nil {
		log.Debugf("%v: fork failed: %v", t, err)
		return nil, err
	}
	return t.k.newTask(t.tid, m, t.fdTable.Fork()), nil
}
