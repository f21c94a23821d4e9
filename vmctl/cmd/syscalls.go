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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/minivm/pkg/sentry/kernel"
	"gvisor.dev/minivm/pkg/sentry/syscalls/linux"
	"gvisor.dev/minivm/vmctl/cmd/util"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	output string
}

// SyscallDoc represents a single item of syscall documentation.
type SyscallDoc struct {
	Number uintptr `json:"number"`
	Name   string  `json:"name"`
}

type outputFunc func(io.Writer, []SyscallDoc) error

// outputMap maps output type names to output functions.
var outputMap = map[string]outputFunc{
	"table": outputTable,
	"json":  outputJSON,
}

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Print the syscalls served by the memory subsystem."
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls [options] - Print the syscalls served by the memory subsystem.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Syscalls) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", "table", "Output format (table, json).")
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	out, ok := outputMap[s.output]
	if !ok {
		util.Fatalf("Unsupported output format %q", s.output)
	}
	if err := out(os.Stdout, syscallDocs(linux.RISCV64)); err != nil {
		util.Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// syscallDocs returns the documentation of every syscall in table, ordered
// by number.
func syscallDocs(table *kernel.SyscallTable) []SyscallDoc {
	var docs []SyscallDoc
	for _, sysno := range table.Numbers() {
		docs = append(docs, SyscallDoc{Number: sysno, Name: table.LookupName(sysno)})
	}
	return docs
}

func outputTable(w io.Writer, docs []SyscallDoc) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NUM\tNAME\n")
	for _, doc := range docs {
		fmt.Fprintf(tw, "%d\t%s\n", doc.Number, doc.Name)
	}
	return tw.Flush()
}

func outputJSON(w io.Writer, docs []SyscallDoc) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(docs)
}
