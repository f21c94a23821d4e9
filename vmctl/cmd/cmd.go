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

// Package cmd holds implementations of the vmctl commands.
package cmd

import (
	"fmt"

	"golang.org/x/sys/unix"
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/sentry/arch"
	"gvisor.dev/minivm/pkg/sentry/kernel"
	"gvisor.dev/minivm/pkg/sentry/syscalls/linux"
	"gvisor.dev/minivm/vmctl/config"
)

// initImage is the image loaded at address 0 of the initial task.
var initImage = []byte("\x13\x00\x00\x00init")

// bootKernel creates a kernel sized by conf and its initial task. The
// caller must call k.Release.
func bootKernel(conf *config.Config) (*kernel.Kernel, *kernel.Task, error) {
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{Frames: uint32(conf.Frames)}); err != nil {
		return nil, nil, err
	}
	t, err := k.CreateInitTask(initImage)
	if err != nil {
		k.Release()
		return nil, nil, fmt.Errorf("creating init task: %w", err)
	}
	return k, t, nil
}

// invoke invokes sysno on behalf of t and returns the result, decoding a
// negated errno into an error.
func invoke(t *kernel.Task, sysno uintptr, values ...uintptr) (uintptr, error) {
	rval := linux.RISCV64.Invoke(t, sysno, arch.Args(values...))
	if e := int64(rval); e < 0 && e > -4096 {
		return 0, fmt.Errorf("%s: %w", linux.RISCV64.LookupName(sysno), unix.Errno(-e))
	}
	return rval, nil
}

// pages returns the length of n pages.
func pages(n int) uintptr {
	return uintptr(n) * hostarch.PageSize
}
