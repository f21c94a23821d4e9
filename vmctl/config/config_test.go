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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/minivm/pkg/refs"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("Parse(%v) failed: %v", args, err)
	}
	return NewFromFlags(flagSet)
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	conf, err := parse(t)
	if err != nil {
		t.Fatalf("NewFromFlags failed: %v", err)
	}
	want := &Config{Frames: 1024, LogFormat: "text", RefLeakMode: refs.NoLeakChecking}
	if diff := cmp.Diff(want, conf); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}
}

func TestFlags(t *testing.T) {
	conf, err := parse(t, "-frames=128", "-debug", "-log-format=json", "-ref-leak-mode=log-names")
	if err != nil {
		t.Fatalf("NewFromFlags failed: %v", err)
	}
	want := &Config{Frames: 128, Debug: true, LogFormat: "json", RefLeakMode: refs.LeaksLogWarning}
	if diff := cmp.Diff(want, conf); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestFileWithOverride(t *testing.T) {
	path := writeFile(t, "vmctl.toml", `
frames = 256
debug = true
log-format = "json"
ref-leak-mode = "panic"
`)
	conf, err := parse(t, "-config="+path, "-log-format=text")
	if err != nil {
		t.Fatalf("NewFromFlags failed: %v", err)
	}
	want := &Config{Frames: 256, Debug: true, LogFormat: "text", RefLeakMode: refs.LeaksPanic}
	if diff := cmp.Diff(want, conf); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestYAMLFile(t *testing.T) {
	path := writeFile(t, "vmctl.yaml", "frames: 512\nlog-format: json\n")
	conf, err := parse(t, "-config="+path, "-frames=128")
	if err != nil {
		t.Fatalf("NewFromFlags failed: %v", err)
	}
	want := &Config{Frames: 128, LogFormat: "json", RefLeakMode: refs.NoLeakChecking}
	if diff := cmp.Diff(want, conf); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	path = writeFile(t, "dup.yml", "frames: 512\nframes: 256\n")
	if _, err := parse(t, "-config="+path); err == nil {
		t.Errorf("NewFromFlags accepted a YAML file with a duplicate key")
	}
}

func TestInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		file string
		want string
	}{
		{name: "too few frames", args: []string{"-frames=8"}, want: "at least"},
		{name: "too many frames", args: []string{"-frames=2000000"}, want: "at most"},
		{name: "log format", args: []string{"-log-format=xml"}, want: "invalid log format"},
		{name: "unknown key", file: "colour = 1\n", want: "unknown key"},
		{name: "nested key", file: "[config]\nframes = 128\n", want: "unknown key"},
		{name: "bad leak mode", file: "ref-leak-mode = \"sometimes\"\n", want: "invalid ref leak mode"},
		{name: "malformed", file: "frames = \n", want: "config file"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			args := tc.args
			if tc.file != "" {
				args = append(args, "-config="+writeFile(t, "vmctl.toml", tc.file))
			}
			_, err := parse(t, args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("NewFromFlags(%v) = %v, want error containing %q", args, err, tc.want)
			}
		})
	}
}
