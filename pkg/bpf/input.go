// Copyright 2024 The gVisor Authors.
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

package bpf

import (
	"encoding/binary"
)

// Input represents a source of input data for a BPF program. (BPF
// documentation sometimes refers to the input data as the "packet" due to its
// origins as a packet processing DSL.) Seccomp inputs are in the host's byte
// order, so loads use native endianness. Unaligned loads are supported.
type Input []byte

// load32 loads a 32-bit value.
func (in Input) load32(off uint32) (uint32, bool) {
	if uint64(off)+4 > uint64(len(in)) {
		return 0, false
	}
	return binary.NativeEndian.Uint32(in[int(off):]), true
}

// load16 loads a 16-bit value.
func (in Input) load16(off uint32) (uint16, bool) {
	if uint64(off)+2 > uint64(len(in)) {
		return 0, false
	}
	return binary.NativeEndian.Uint16(in[int(off):]), true
}

// load8 loads a single byte.
func (in Input) load8(off uint32) (uint8, bool) {
	if uint64(off)+1 > uint64(len(in)) {
		return 0, false
	}
	return in[int(off)], true
}
