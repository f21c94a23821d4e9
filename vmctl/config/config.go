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

// Package config provides basic infrastructure to set configuration settings
// for vmctl. Each setting is registered as a flag; settings may also be
// loaded from a TOML or YAML file named by the -config flag, with
// explicitly set flags taking precedence over the file.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v2"
	"gvisor.dev/minivm/pkg/log"
	"gvisor.dev/minivm/pkg/refs"
)

// MinFrames is the smallest memory that can hold the kernel template, a
// task and some user pages.
const MinFrames = 64

// Config holds configuration that is not part of a subcommand.
type Config struct {
	// Frames is the number of physical frames managed by the kernel.
	Frames uint `flag:"frames"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: "text" or "json".
	LogFormat string `flag:"log-format"`

	// RefLeakMode sets reference leak check mode.
	RefLeakMode refs.LeakMode `flag:"ref-leak-mode"`
}

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "path to a TOML or YAML file holding default settings.")
	flagSet.Uint("frames", 1024, "number of 4 KiB physical frames.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log", "", "file path where internal debug information is written, default is stdout.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	leak := refs.NoLeakChecking
	flagSet.Var(&leak, "ref-leak-mode", "sets reference leak check mode: disabled (default), log-names, panic.")
}

// NewFromFlags creates a new Config with values coming from the given flag
// set. Flags that were not set on the command line take their value from
// the file named by -config, if any.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	if path := flagSet.Lookup("config").Value.String(); path != "" {
		if err := applyFile(flagSet, path); err != nil {
			return nil, err
		}
	}

	conf := &Config{}
	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// applyFile sets every flag defined in the file at path, except those
// already set on the command line. Files ending in .yaml or .yml are YAML;
// anything else is TOML. Keys are flag names.
func applyFile(flagSet *flag.FlagSet, path string) error {
	values, err := decodeFile(path)
	if err != nil {
		return fmt.Errorf("config file %q: %w", path, err)
	}

	set := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })
	known := configFlags()
	for name, value := range values {
		if !known[name] {
			return fmt.Errorf("config file %q: unknown key %q", path, name)
		}
		if set[name] {
			continue
		}
		if err := flagSet.Set(name, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("config file %q: %s: %w", path, name, err)
		}
	}
	return nil
}

func decodeFile(path string) (map[string]any, error) {
	values := make(map[string]any)
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.SetStrict(true)
		if err := dec.Decode(&values); err != nil && err != io.EOF {
			return nil, err
		}
	default:
		if _, err := toml.DecodeFile(path, &values); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// configFlags returns the names of the flags that populate Config.
func configFlags() map[string]bool {
	names := make(map[string]bool)
	st := reflect.TypeOf(Config{})
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok {
			names[name] = true
		}
	}
	return names
}

func (c *Config) validate() error {
	if c.Frames < MinFrames {
		return fmt.Errorf("frames must be at least %d, got %d", MinFrames, c.Frames)
	}
	if c.Frames > 1<<20 {
		return fmt.Errorf("frames must be at most %d, got %d", 1<<20, c.Frames)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config.Frames: %d", c.Frames)
	log.Infof("Config.Debug: %t", c.Debug)
	log.Infof("Config.LogFormat: %s", c.LogFormat)
	log.Infof("Config.RefLeakMode: %v", c.RefLeakMode)
	if c.LogFilename != "" {
		log.Infof("Config.LogFilename: %s", c.LogFilename)
	}
}
