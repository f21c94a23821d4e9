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
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/log"
)

// Exit tears down t's address space and closes its files. The kernel stack
// survives until the task is reaped, since the exit path still runs on it.
//
// Precondition: t is running.
func (t *Task) Exit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkRunningLocked()

	t.fdTable.DecRef()
	t.fdTable = nil
	t.mm.Destroy(false)
	t.mm = nil
	t.state = TaskZombie
	log.Debugf("%v exited", t)
}

// Reap frees the kernel stack of the exited task t and forgets it. Reaping
// a task that is still running is linuxerr.ECHILD.
func (k *Kernel) Reap(t *Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskZombie {
		return linuxerr.ECHILD
	}
	k.mf.DecRef(t.kstack)
	t.kstack = 0
	t.state = TaskDead

	k.mu.Lock()
	delete(k.tasks, t.tid)
	k.mu.Unlock()
	log.Debugf("%v reaped", t)
	return nil
}
