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

package bitmap

import (
	"testing"
)

func TestAddRemove(t *testing.T) {
	b := New(100)
	for _, i := range []uint32{0, 63, 64, 99} {
		b.Add(i)
		b.Add(i)
	}
	if got := b.GetNumOnes(); got != 4 {
		t.Fatalf("GetNumOnes() = %d, want 4", got)
	}
	if !b.Contains(64) || b.Contains(65) {
		t.Errorf("Contains mismatch")
	}
	b.Remove(64)
	b.Remove(64)
	if got := b.GetNumOnes(); got != 3 {
		t.Errorf("GetNumOnes() after Remove = %d, want 3", got)
	}
}

func TestFirstZero(t *testing.T) {
	b := New(130)
	for i := uint32(0); i < 129; i++ {
		b.Add(i)
	}
	if got, err := b.FirstZero(0); err != nil || got != 129 {
		t.Errorf("FirstZero(0) = (%d, %v), want (129, nil)", got, err)
	}
	b.Add(129)
	if _, err := b.FirstZero(0); err == nil {
		t.Errorf("FirstZero on a full bitmap succeeded")
	}
	b.Remove(70)
	if got, err := b.FirstZero(10); err != nil || got != 70 {
		t.Errorf("FirstZero(10) = (%d, %v), want (70, nil)", got, err)
	}
}

func TestFirstZeroRespectsSize(t *testing.T) {
	// The tail of the last block is beyond size and must never be
	// returned.
	b := New(3)
	b.Add(0)
	b.Add(1)
	b.Add(2)
	if got, err := b.FirstZero(0); err == nil {
		t.Errorf("FirstZero returned %d beyond size", got)
	}
}

func TestFirstOne(t *testing.T) {
	b := New(200)
	if _, err := b.FirstOne(0); err == nil {
		t.Errorf("FirstOne on an empty bitmap succeeded")
	}
	b.Add(150)
	if got, err := b.FirstOne(3); err != nil || got != 150 {
		t.Errorf("FirstOne(3) = (%d, %v), want (150, nil)", got, err)
	}
}
