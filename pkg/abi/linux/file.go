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

package linux

// Constants for open(2).
const (
	O_RDONLY  = 0x000
	O_WRONLY  = 0x001
	O_RDWR    = 0x002
	O_ACCMODE = 0x003
	O_CREAT   = 0x040
	O_TRUNC   = 0x400
)

// Standard file descriptors.
const (
	STDIN_FILENO  = 0
	STDOUT_FILENO = 1
	STDERR_FILENO = 2
)

// NOFILE is the number of open files per task.
const NOFILE = 101
