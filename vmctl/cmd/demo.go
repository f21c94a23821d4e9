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
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/sentry/kernel"
	"gvisor.dev/minivm/vmctl/cmd/util"
	"gvisor.dev/minivm/vmctl/config"
)

// Demo implements subcommands.Command for the "demo" command.
type Demo struct {
	heapPages int
	mmapPages int
}

// Name implements subcommands.Command.Name.
func (*Demo) Name() string {
	return "demo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Demo) Synopsis() string {
	return "Run a short program exercising sbrk, mmap, fork and munmap."
}

// Usage implements subcommands.Command.Usage.
func (*Demo) Usage() string {
	return `demo [options] - grow the heap of the initial task, map anonymous
memory, fork a child and show that the child has a private copy.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Demo) SetFlags(f *flag.FlagSet) {
	f.IntVar(&d.heapPages, "heap-pages", 2, "pages to add to the heap with sbrk.")
	f.IntVar(&d.mmapPages, "mmap-pages", 4, "pages to map with anonymous mmap.")
}

// Execute implements subcommands.Command.Execute.
func (d *Demo) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	k, t, err := bootKernel(conf)
	if err != nil {
		util.Fatalf("%v", err)
	}
	defer k.Release()

	if err := d.run(os.Stdout, t); err != nil {
		util.Fatalf("demo: %v", err)
	}
	return subcommands.ExitSuccess
}

func (d *Demo) run(w io.Writer, t *kernel.Task) error {
	old, err := invoke(t, linux.SYS_SBRK, pages(d.heapPages))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%v: sbrk(%d pages) = %#x\n", t, d.heapPages, old)
	heapMsg := []byte("heap")
	if _, err := t.CopyOutBytes(hostarch.Addr(old), heapMsg); err != nil {
		return fmt.Errorf("writing heap: %w", err)
	}

	addr, err := invoke(t, linux.SYS_MMAP, 0, pages(d.mmapPages), linux.PROT_READ|linux.PROT_WRITE, linux.MAP_PRIVATE|linux.MAP_ANONYMOUS, ^uintptr(0), 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%v: mmap(%d pages) = %#x\n", t, d.mmapPages, addr)
	if _, err := t.CopyOutBytes(hostarch.Addr(addr), []byte("parent")); err != nil {
		return fmt.Errorf("writing mapping: %w", err)
	}

	child, err := t.Fork()
	if err != nil {
		return fmt.Errorf("fork: %w", err)
	}
	fmt.Fprintf(w, "%v: fork() = %v\n", t, child)
	if _, err := child.CopyOutBytes(hostarch.Addr(addr), []byte("child!")); err != nil {
		return fmt.Errorf("writing child mapping: %w", err)
	}
	for _, task := range []*kernel.Task{t, child} {
		buf := make([]byte, len("parent"))
		if _, err := task.CopyInBytes(hostarch.Addr(addr), buf); err != nil {
			return fmt.Errorf("reading mapping of %v: %w", task, err)
		}
		heap, err := task.CopyInString(hostarch.Addr(old), len(heapMsg)+1)
		if err != nil {
			return fmt.Errorf("reading heap of %v: %w", task, err)
		}
		fmt.Fprintf(w, "%v: mapping holds %q, heap holds %q\n", task, buf, heap)
	}

	if _, err := invoke(child, linux.SYS_MUNMAP, addr, pages(d.mmapPages)); err != nil {
		return err
	}
	fmt.Fprintf(w, "%v: munmap(%#x) done, %d mappings left\n", child, addr, len(child.MemoryManager().VMAs()))
	child.Exit()
	if err := t.Kernel().Reap(child); err != nil {
		return fmt.Errorf("reaping %v: %w", child, err)
	}
	fmt.Fprintf(w, "%v: reaped %v, %d frames in use\n", t, child, t.Kernel().MemoryFile().Usage())
	return nil
}
