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

package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/sentry/kernel"
	linuxsys "gvisor.dev/minivm/pkg/sentry/syscalls/linux"
	"gvisor.dev/minivm/pkg/sentry/vfs"
	"gvisor.dev/minivm/vmctl/config"
)

func boot(t *testing.T) (*kernel.Kernel, *kernel.Task) {
	t.Helper()
	k, task, err := bootKernel(&config.Config{Frames: 256})
	if err != nil {
		t.Fatalf("bootKernel failed: %v", err)
	}
	t.Cleanup(k.Release)
	return k, task
}

func TestDemoRun(t *testing.T) {
	k, task := boot(t)
	baseline := k.MemoryFile().Usage()

	var out bytes.Buffer
	d := &Demo{heapPages: 2, mmapPages: 4}
	if err := d.run(&out, task); err != nil {
		t.Fatalf("run failed: %v\n%s", err, out.String())
	}
	for _, want := range []string{
		`task 1: mapping holds "parent", heap holds "heap"`,
		`task 2: mapping holds "child!", heap holds "heap"`,
		"reaped task 2",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output is missing %q:\n%s", want, out.String())
		}
	}
	if got := len(k.Tasks()); got != 1 {
		t.Errorf("%d tasks left, want 1", got)
	}
	if got := k.MemoryFile().Usage(); got <= baseline {
		t.Errorf("Usage() = %d, want more than %d while the parent keeps its memory", got, baseline)
	}
}

func TestStressWork(t *testing.T) {
	k, task := boot(t)
	s := &Stress{tasks: 1, iterations: 10, pages: 3}
	child, err := task.Fork()
	if err != nil {
		t.Fatalf("Fork failed: %v", err)
	}
	before := child.MemoryManager().Size()
	if err := s.work(context.Background(), child); err != nil {
		t.Fatalf("work failed: %v", err)
	}
	if got := child.MemoryManager().Size(); got != before {
		t.Errorf("Size() = %#x after work, want %#x", got, before)
	}
	if got := len(child.MemoryManager().VMAs()); got != 0 {
		t.Errorf("%d mappings left after work, want 0", got)
	}
	child.Exit()
	if err := k.Reap(child); err != nil {
		t.Errorf("Reap failed: %v", err)
	}
}

func TestStressWorkCancelled(t *testing.T) {
	_, task := boot(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Stress{iterations: 1, pages: 1}
	if err := s.work(ctx, task); err != context.Canceled {
		t.Errorf("work = %v, want %v", err, context.Canceled)
	}
}

func TestInvokeDecodesErrno(t *testing.T) {
	_, task := boot(t)
	if _, err := invoke(task, linux.SYS_MUNMAP, 1, 1); err == nil {
		t.Errorf("munmap of an unaligned address succeeded")
	}
	if _, err := invoke(task, 4000); err == nil || !strings.Contains(err.Error(), "function not implemented") {
		t.Errorf("unknown syscall = %v, want ENOSYS", err)
	}
}

func TestSyscallDocs(t *testing.T) {
	want := []SyscallDoc{
		{Number: linux.SYS_SBRK, Name: "sbrk"},
		{Number: linux.SYS_BRK, Name: "brk"},
		{Number: linux.SYS_MUNMAP, Name: "munmap"},
		{Number: linux.SYS_MMAP, Name: "mmap"},
	}
	docs := syscallDocs(linuxsys.RISCV64)
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("syscallDocs mismatch (-want +got):\n%s", diff)
	}
	var out bytes.Buffer
	if err := outputTable(&out, docs); err != nil {
		t.Fatalf("outputTable failed: %v", err)
	}
	if !strings.Contains(out.String(), "215  munmap") {
		t.Errorf("table output is missing munmap:\n%s", out.String())
	}
}

func TestMapFileReportsPersistedBytes(t *testing.T) {
	_, task := boot(t)
	f := vfs.NewMemFile("short", []byte("abc"), linux.O_RDWR)
	defer f.DecRef()

	var out bytes.Buffer
	m := &MapFile{write: "hello", length: hostarch.PageSize}
	if err := m.run(&out, task, "short", f); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{`"abc"`, "wrote 3 of 5 bytes to short"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output is missing %q:\n%s", want, out.String())
		}
	}
	if got := string(f.Impl().(*vfs.MemFile).Bytes()); got != "hel" {
		t.Errorf("file holds %q, want hel", got)
	}
}

func TestMapFileEmptyFile(t *testing.T) {
	_, task := boot(t)
	f := vfs.NewMemFile("empty", nil, linux.O_RDWR)
	defer f.DecRef()

	var out bytes.Buffer
	m := &MapFile{write: "hello", length: hostarch.PageSize}
	err := m.run(&out, task, "empty", f)
	if err == nil || !strings.Contains(err.Error(), "writing mapping") {
		t.Fatalf("run = %v, want a write fault", err)
	}
	if got := f.Impl().(*vfs.MemFile).Bytes(); len(got) != 0 {
		t.Errorf("file holds %q, want nothing", got)
	}
}
