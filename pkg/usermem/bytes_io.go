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

package usermem

import (
	"gvisor.dev/minivm/pkg/errors/linuxerr"
	"gvisor.dev/minivm/pkg/hostarch"
)

// BytesIO is a Translator over a flat buffer: address a is Bytes[a]. Pages
// are hostarch.PageSize long, and the last one may be short.
type BytesIO struct {
	Bytes []byte

	// ReadOnly rejects write translations.
	ReadOnly bool
}

// TranslatePage implements Translator.TranslatePage.
func (b *BytesIO) TranslatePage(addr hostarch.Addr, at hostarch.AccessType) ([]byte, error) {
	if uint64(addr) >= uint64(len(b.Bytes)) || (at.Write && b.ReadOnly) {
		return nil, linuxerr.ErrInvalidAddress
	}
	end := int(addr.RoundDown()) + hostarch.PageSize
	if end > len(b.Bytes) {
		end = len(b.Bytes)
	}
	return b.Bytes[int(addr):end], nil
}
