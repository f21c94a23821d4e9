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

// Package kernel provides the tasks of the simulated kernel and the state
// they share.
//
// Lock order:
//
//	Task.mu
//	  Kernel.mu
//	  FDTable.mu
//	  mm.MemoryManager.mappingMu
package kernel

import (
	"fmt"
	"sort"
	"sync"

	"gvisor.dev/minivm/pkg/cleanup"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/metric"
	"gvisor.dev/minivm/pkg/sentry/fsutil"
	"gvisor.dev/minivm/pkg/sentry/mm"
	"gvisor.dev/minivm/pkg/sentry/pgalloc"
)

var tasksCreated = metric.MustCreateNewUint64Metric("/kernel/tasks_created", "Number of tasks created, including the initial task.")

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// Frames is the number of physical frames the kernel manages.
	Frames uint32
}

// Kernel represents an emulated kernel.
type Kernel struct {
	// mf provides all physical memory. mf is immutable after Init.
	mf *pgalloc.MemoryFile

	// tmpl holds the kernel mappings shared by every address space. tmpl is
	// immutable after Init.
	tmpl *mm.KernelTemplate

	// cache holds the frames of shared file mappings. cache is immutable
	// after Init.
	cache *fsutil.FrameCache

	mu sync.Mutex

	// tasks holds every task that has not been reaped. Protected by mu.
	tasks map[ThreadID]*Task

	// lastTID is the most recently assigned thread ID. Protected by mu.
	lastTID ThreadID
}

// Init initialises a Kernel with no tasks.
func (k *Kernel) Init(args InitKernelArgs) error {
	mf, err := pgalloc.NewMemoryFile(pgalloc.MemoryFileOpts{Frames: args.Frames})
	if err != nil {
		return fmt.Errorf("failed to create physical memory: %w", err)
	}
	cu := cleanup.Make(mf.Destroy)
	defer cu.Clean()

	tmpl, err := mm.NewKernelTemplate(mf)
	if err != nil {
		return fmt.Errorf("failed to build kernel page tables: %w", err)
	}
	cu.Release()

	k.mf = mf
	k.tmpl = tmpl
	k.cache = fsutil.NewFrameCache(mf)
	k.tasks = make(map[ThreadID]*Task)
	log.Infof("Kernel initialized with %d frames, %d used by kernel mappings", args.Frames, mf.Usage())
	return nil
}

// MemoryFile returns the physical memory of k.
func (k *Kernel) MemoryFile() *pgalloc.MemoryFile {
	return k.mf
}

// FrameCache returns the frame cache shared by all file mappings.
func (k *Kernel) FrameCache() *fsutil.FrameCache {
	return k.cache
}

// KernelTemplate returns the kernel mappings every address space shares.
func (k *Kernel) KernelTemplate() *mm.KernelTemplate {
	return k.tmpl
}

// CreateInitTask creates the first task. Its address space holds image at
// address 0 and its file table is empty.
func (k *Kernel) CreateInitTask(image []byte) (*Task, error) {
	m, err := mm.NewMemoryManager(k.mf, k.tmpl, k.cache)
	if err != nil {
		return nil, err
	}
	if err := m.LoadInitialImage(image); err != nil {
		m.Destroy(true)
		return nil, err
	}
	return k.newTask(0, m, NewFDTable()), nil
}

// newTask registers a running task that takes ownership of m and fdTable.
func (k *Kernel) newTask(parent ThreadID, m *mm.MemoryManager, fdTable *FDTable) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastTID++
	t := &Task{
		k:       k,
		tid:     k.lastTID,
		parent:  parent,
		state:   TaskRunning,
		mm:      m,
		fdTable: fdTable,
		kstack:  m.KernelStack(),
	}
	k.tasks[t.tid] = t
	tasksCreated.Increment()
	log.Debugf("Task %d created, parent %d", t.tid, parent)
	return t
}

// TaskWithID returns the task with the given thread ID, or nil.
func (k *Kernel) TaskWithID(tid ThreadID) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tasks[tid]
}

// Tasks returns every task that has not been reaped, ordered by thread ID.
func (k *Kernel) Tasks() []*Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	ts := make([]*Task, 0, len(k.tasks))
	for _, t := range k.tasks {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].tid < ts[j].tid })
	return ts
}

// Release exits and reaps every remaining task, then frees the kernel's
// memory. k must not be used afterwards.
func (k *Kernel) Release() {
	for _, t := range k.Tasks() {
		if t.State() == TaskRunning {
			t.Exit()
		}
		if err := k.Reap(t); err != nil {
			panic(fmt.Sprintf("failed to reap task %d during release: %v", t.tid, err))
		}
	}
	if n := k.cache.Len(); n != 0 {
		log.Warningf("Frame cache holds %d frames at kernel release", n)
	}
	k.tmpl.Release()
	if n := k.mf.Usage(); n != 0 {
		log.Warningf("%d frames leaked at kernel release", n)
	}
	k.mf.Destroy()
}
