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

package arch

import (
	"testing"
)

func TestSyscallArgumentConversions(t *testing.T) {
	a := SyscallArgument{Value: ^uintptr(0)}
	if got := a.Int(); got != -1 {
		t.Errorf("Int() = %d, want -1", got)
	}
	if got := a.Uint(); got != 0xffffffff {
		t.Errorf("Uint() = %#x, want 0xffffffff", got)
	}
	if got := a.Int64(); got != -1 {
		t.Errorf("Int64() = %d, want -1", got)
	}
	if got := (SyscallArgument{Value: 0x1_0000_0005}).Int(); got != 5 {
		t.Errorf("Int() of a wide value = %d, want 5", got)
	}
}

func TestArgs(t *testing.T) {
	args := Args(1, 2, 3)
	for i, want := range []uintptr{1, 2, 3, 0, 0, 0} {
		if args[i].Value != want {
			t.Errorf("args[%d] = %v, want %#x", i, args[i], want)
		}
	}
	if got := args[0].Pointer(); got != 1 {
		t.Errorf("Pointer() = %v, want 0x1", got)
	}
}

func TestArgsTooMany(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Args with seven values did not panic")
		}
	}()
	Args(1, 2, 3, 4, 5, 6, 7)
}
