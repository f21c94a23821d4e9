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
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/minivm/pkg/abi/linux"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/metric"
	"gvisor.dev/minivm/pkg/sentry/kernel"
	"gvisor.dev/minivm/vmctl/cmd/util"
	"gvisor.dev/minivm/vmctl/config"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	tasks      int
	iterations int
	pages      int
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "Fork tasks that map, touch and unmap memory concurrently."
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [options] - fork -tasks children of the initial task. Each
child repeatedly maps, fills, checks and unmaps anonymous memory and grows
and shrinks its heap. Metrics are printed at the end.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.tasks, "tasks", 8, "number of concurrent tasks.")
	f.IntVar(&s.iterations, "iterations", 100, "iterations per task.")
	f.IntVar(&s.pages, "pages", 2, "pages mapped per iteration.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || s.tasks <= 0 || s.pages <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	k, t, err := bootKernel(conf)
	if err != nil {
		util.Fatalf("%v", err)
	}
	defer k.Release()

	baseline := k.MemoryFile().Usage()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.tasks; i++ {
		child, err := t.Fork()
		if err != nil {
			util.Fatalf("fork %d: %v", i, err)
		}
		g.Go(func() error {
			defer child.Exit()
			return s.work(ctx, child)
		})
	}
	err = g.Wait()
	for _, child := range k.Tasks() {
		if child != t {
			if rerr := k.Reap(child); rerr != nil {
				log.Warningf("reaping %v: %v", child, rerr)
			}
		}
	}
	if err != nil {
		util.Fatalf("stress: %v", err)
	}
	if got := k.MemoryFile().Usage(); got != baseline {
		util.Fatalf("stress: %d frames in use after all tasks exited, want %d", got, baseline)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "METRIC\tVALUE\n")
	for _, sample := range metric.Snapshot() {
		fmt.Fprintf(w, "%s\t%d\n", sample.Name, sample.Value)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

// work runs the iterations for one task.
func (s *Stress) work(ctx context.Context, t *kernel.Task) error {
	pattern := bytes.Repeat([]byte{byte(t.ThreadID())}, hostarch.PageSize)
	buf := make([]byte, hostarch.PageSize)
	length := pages(s.pages)
	shrink := -int32(hostarch.PageSize)
	for i := 0; i < s.iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		addr, err := invoke(t, linux.SYS_MMAP, 0, length, linux.PROT_READ|linux.PROT_WRITE, linux.MAP_PRIVATE|linux.MAP_ANONYMOUS, ^uintptr(0), 0)
		if err != nil {
			return fmt.Errorf("%v: iteration %d: %w", t, i, err)
		}
		last := hostarch.Addr(addr + length - hostarch.PageSize)
		if _, err := t.CopyOutBytes(last, pattern); err != nil {
			return fmt.Errorf("%v: iteration %d: writing %v: %w", t, i, last, err)
		}
		if _, err := t.CopyInBytes(last, buf); err != nil {
			return fmt.Errorf("%v: iteration %d: reading %v: %w", t, i, last, err)
		}
		if !bytes.Equal(buf, pattern) {
			return fmt.Errorf("%v: iteration %d: page %v holds another task's data", t, i, last)
		}
		if _, err := invoke(t, linux.SYS_MUNMAP, addr, length); err != nil {
			return fmt.Errorf("%v: iteration %d: %w", t, i, err)
		}

		if _, err := invoke(t, linux.SYS_SBRK, hostarch.PageSize); err != nil {
			return fmt.Errorf("%v: iteration %d: %w", t, i, err)
		}
		if _, err := invoke(t, linux.SYS_SBRK, uintptr(uint32(shrink))); err != nil {
			return fmt.Errorf("%v: iteration %d: %w", t, i, err)
		}
	}
	return nil
}
