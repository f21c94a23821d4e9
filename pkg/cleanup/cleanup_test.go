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

package cleanup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCleanOrder(t *testing.T) {
	var order []int
	func() {
		cu := Make(func() { order = append(order, 1) })
		cu.Add(func() { order = append(order, 2) })
		cu.Add(func() { order = append(order, 3) })
		defer cu.Clean()
	}()
	if diff := cmp.Diff([]int{3, 2, 1}, order); diff != "" {
		t.Errorf("cleanup order mismatch (-want +got):\n%s", diff)
	}
}

func TestRelease(t *testing.T) {
	called := 0
	var cleaner func()
	func() {
		cu := Make(func() { called++ })
		cu.Add(func() { called++ })
		defer cu.Clean()
		cleaner = cu.Release()
	}()
	if called != 0 {
		t.Fatalf("cleanup functions ran %d times after Release", called)
	}
	cleaner()
	if called != 2 {
		t.Fatalf("released cleaner ran %d functions, want 2", called)
	}
}

func TestCleanIdempotent(t *testing.T) {
	called := 0
	cu := Make(func() { called++ })
	cu.Clean()
	cu.Clean()
	if called != 1 {
		t.Errorf("cleanup ran %d times, want 1", called)
	}
}
