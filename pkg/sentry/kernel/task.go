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
	"fmt"
	"sync"

	"gvisor.dev/minivm/pkg/sentry/mm"
)

// ThreadID is a task identifier.
type ThreadID int32

// TaskState is the life cycle state of a task.
type TaskState int

const (
	// TaskRunning tasks own an address space and a file table.
	TaskRunning TaskState = iota

	// TaskZombie tasks have exited. Their address space is gone, but the
	// kernel stack remains allocated until the task is reaped.
	TaskZombie

	// TaskDead tasks have been reaped.
	TaskDead
)

// String implements fmt.Stringer.String.
func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskZombie:
		return "zombie"
	case TaskDead:
		return "dead"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

// Task represents a thread of execution with its own address space.
type Task struct {
	k *Kernel

	// tid and parent are immutable.
	tid    ThreadID
	parent ThreadID

	mu sync.Mutex

	// state is protected by mu.
	state TaskState

	// mm is the address space of the task, or nil once it has exited.
	// Protected by mu. Only the task itself changes the contents of mm.
	mm *mm.MemoryManager

	// fdTable is the file table, or nil once the task has exited.
	// Protected by mu.
	fdTable *FDTable

	// kstack is the kernel stack frame. It is freed by Kernel.Reap.
	// Protected by mu.
	kstack uintptr
}

// Kernel returns the kernel t runs in.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// ThreadID returns t's thread ID.
func (t *Task) ThreadID() ThreadID {
	return t.tid
}

// Parent returns the thread ID of t's parent, or 0 for the initial task.
func (t *Task) Parent() ThreadID {
	return t.parent
}

// State returns t's life cycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// MemoryManager returns t's address space.
//
// Precondition: t is running.
func (t *Task) MemoryManager() *mm.MemoryManager {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkRunningLocked()
	return t.mm
}

// FDTable returns t's file table.
//
// Precondition: t is running.
func (t *Task) FDTable() *FDTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkRunningLocked()
	return t.fdTable
}

// KernelStack returns the physical address of t's kernel stack, or 0 once
// the task has been reaped.
func (t *Task) KernelStack() uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kstack
}

// String implements fmt.Stringer.String.
func (t *Task) String() string {
	return fmt.Sprintf("task %d", t.tid)
}

func (t *Task) checkRunningLocked() {
	if t.state != TaskRunning {
		panic(fmt.Sprintf("%v is %v, not running", t, t.state))
	}
}
