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

package kernel

import (
	"gvisor.dev/minivm/pkg/hostarch"
	"gvisor.dev/minivm/pkg/usermem"
)

// CopyOutBytes copies src to t's memory at addr, populating reserved pages
// as needed. It returns the number of bytes copied.
//
// Precondition: t is running.
func (t *Task) CopyOutBytes(addr hostarch.Addr, src []byte) (int, error) {
	return usermem.CopyOut(t.MemoryManager(), addr, src)
}

// CopyInBytes copies len(dst) bytes from t's memory at addr to dst.
//
// Precondition: t is running.
func (t *Task) CopyInBytes(addr hostarch.Addr, dst []byte) (int, error) {
	return usermem.CopyIn(t.MemoryManager(), addr, dst)
}

// CopyInString copies a NUL-terminated string of at most maxLen bytes,
// including the terminator, from t's memory at addr.
//
// Precondition: t is running.
func (t *Task) CopyInString(addr hostarch.Addr, maxLen int) (string, error) {
	return usermem.CopyStringIn(t.MemoryManager(), addr, maxLen)
}
