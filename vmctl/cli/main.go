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

// Package cli is the main entrypoint for vmctl.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/metric"
	"gvisor.dev/minivm/pkg/refs"
	"gvisor.dev/minivm/vmctl/cmd"
	"gvisor.dev/minivm/vmctl/cmd/util"
	"gvisor.dev/minivm/vmctl/config"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	logFile := io.Writer(os.Stderr)
	if conf.LogFilename != "" {
		f, err := os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		logFile = f
		util.ErrorLogger = f
	}

	refs.SetLeakMode(conf.RefLeakMode)

	if conf.Debug {
		log.SetLevel(log.Debug)
	}
	log.SetTarget(newEmitter(conf, logFile))

	const delimString = `**************** vmctl ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, PID %d, UID %d", runtime.Version(), runtime.GOARCH, os.Getpid(), os.Getuid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// No metrics are created after this point.
	metric.Initialize()

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	if n := refs.DoLeakCheck(); n > 0 {
		log.Warningf("%d objects leaked", n)
	}
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", subcmdCode)
		os.Exit(0)
	}
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by vmctl.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	cb(new(cmd.Demo), "")
	cb(new(cmd.MapFile), "")
	cb(new(cmd.Stress), "")

	const debugGroup = "debug"
	cb(new(cmd.Dump), debugGroup)
	cb(new(cmd.Syscalls), debugGroup)
}

func newEmitter(conf *config.Config, logFile io.Writer) log.Emitter {
	switch conf.LogFormat {
	case "text":
		return log.GoogleEmitter{Emitter: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{
			Writer: &log.Writer{Next: logFile},
			Fields: map[string]any{
				"pid":    os.Getpid(),
				"frames": conf.Frames,
			},
		}
	}
	util.Fatalf("invalid log format %q, must be 'text' or 'json'", conf.LogFormat)
	panic("unreachable")
}
