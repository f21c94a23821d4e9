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

	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/sentry/kernel"
	"gvisor.dev/minivm/pkg/sentry/vfs"
	"gvisor.dev/minivm/vmctl/cmd/util"
	"gvisor.dev/minivm/vmctl/config"
)

// MapFile implements subcommands.Command for the "mapfile" command.
type MapFile struct {
	write   string
	offset  int64
	length  int
	private bool
}

// Name implements subcommands.Command.Name.
func (*MapFile) Name() string {
	return "mapfile"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*MapFile) Synopsis() string {
	return "Map a host file into the initial task and optionally write to it."
}

// Usage implements subcommands.Command.Usage.
func (*MapFile) Usage() string {
	return `mapfile [options] <path> - map <path> into the initial task, print the
first bytes of the mapping and, with -write, store a string at its start.
Shared mappings write the string back to the file on munmap, up to the end
of the file; pages wholly past the end of the file cannot be accessed. The
file is locked with flock(2) while it is mapped.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *MapFile) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.write, "write", "", "string to store at the start of the mapping.")
	f.Int64Var(&m.offset, "offset", 0, "page-aligned file offset of the mapping.")
	f.IntVar(&m.length, "length", hostarch.PageSize, "length of the mapping in bytes.")
	f.BoolVar(&m.private, "private", false, "use MAP_PRIVATE instead of MAP_SHARED.")
}

// Execute implements subcommands.Command.Execute.
func (m *MapFile) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	conf := args[0].(*config.Config)
	k, t, err := bootKernel(conf)
	if err != nil {
		util.Fatalf("%v", err)
	}
	defer k.Release()

	// Serialize with other vmctl instances writing back to the same file.
	l := flock.NewFlock(path)
	if err := l.Lock(); err != nil {
		util.Fatalf("error acquiring lock on %q: %v", path, err)
	}
	defer l.Unlock()

	flags := uint32(linux.O_RDWR)
	if m.write == "" {
		flags = linux.O_RDONLY
	}
	file, err := vfs.OpenHostFile(path, flags, 0)
	if err != nil {
		util.Fatalf("opening %q: %v", path, err)
	}
	defer file.DecRef()
	if err := m.run(os.Stdout, t, path, file); err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// run maps file into t and reads, writes and unmaps it as m asks, printing
// to w.
func (m *MapFile) run(w io.Writer, t *kernel.Task, path string, file *vfs.FileDescription) error {
	fd, err := t.FDTable().NewFD(file)
	if err != nil {
		return fmt.Errorf("installing %q: %w", path, err)
	}
	log.Debugf("%v: %q is fd %d", t, path, fd)

	prot := uintptr(linux.PROT_READ)
	if m.write != "" {
		prot |= linux.PROT_WRITE
	}
	mapFlags := uintptr(linux.MAP_SHARED)
	if m.private {
		mapFlags = linux.MAP_PRIVATE
	}
	addr, err := invoke(t, linux.SYS_MMAP, 0, uintptr(m.length), prot, mapFlags, uintptr(fd), uintptr(m.offset))
	if err != nil {
		return err
	}
	// The mapping holds its own reference to the file.
	if err := t.FDTable().Remove(fd); err != nil {
		return fmt.Errorf("closing fd %d: %w", fd, err)
	}

	// Pages wholly past the end of the file fault.
	inFile := max(file.Size()-m.offset, 0)
	head := make([]byte, min(int64(m.length), 64, inFile))
	if _, err := t.CopyInBytes(hostarch.Addr(addr), head); err != nil {
		return fmt.Errorf("reading mapping: %w", err)
	}
	fmt.Fprintf(w, "%#x: %q\n", addr, head)

	if m.write != "" {
		if _, err := t.CopyOutBytes(hostarch.Addr(addr), []byte(m.write)); err != nil {
			return fmt.Errorf("writing mapping: %w", err)
		}
	}
	if _, err := invoke(t, linux.SYS_MUNMAP, addr, uintptr(m.length)); err != nil {
		return err
	}
	if m.write != "" && !m.private {
		// Bytes stored past the end of the file are not written back.
		n := min(int64(len(m.write)), inFile)
		fmt.Fprintf(w, "wrote %d of %d bytes to %s at offset %#x\n", n, len(m.write), path, m.offset)
	}
	return nil
}
