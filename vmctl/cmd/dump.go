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
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/vmctl/cmd/util"
	"gvisor.dev/minivm/vmctl/config"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct {
	heapPages int
	mmapPages int
}

// Name implements subcommands.Command.Name.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Dump) Synopsis() string {
	return "Print the page tables and mappings of the initial task."
}

// Usage implements subcommands.Command.Usage.
func (*Dump) Usage() string {
	return `dump [options] - optionally grow the heap and map anonymous memory in
the initial task, then print both of its page tables and its mappings.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Dump) SetFlags(f *flag.FlagSet) {
	f.IntVar(&d.heapPages, "heap-pages", 0, "pages to add to the heap before dumping.")
	f.IntVar(&d.mmapPages, "mmap-pages", 0, "pages to map, and fault in, before dumping.")
}

// Execute implements subcommands.Command.Execute.
func (d *Dump) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
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

	if d.heapPages > 0 {
		if _, err := invoke(t, linux.SYS_SBRK, pages(d.heapPages)); err != nil {
			util.Fatalf("%v", err)
		}
	}
	if d.mmapPages > 0 {
		length := pages(d.mmapPages)
		addr, err := invoke(t, linux.SYS_MMAP, 0, length, linux.PROT_READ|linux.PROT_WRITE, linux.MAP_PRIVATE|linux.MAP_ANONYMOUS, ^uintptr(0), 0)
		if err != nil {
			util.Fatalf("%v", err)
		}
		zero := make([]byte, length)
		if _, err := t.CopyOutBytes(hostarch.Addr(addr), zero); err != nil {
			util.Fatalf("faulting in %#x: %v", addr, err)
		}
	}
	t.MemoryManager().Dump(os.Stdout)
	return subcommands.ExitSuccess
}
