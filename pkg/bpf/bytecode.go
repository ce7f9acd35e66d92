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
	"fmt"

	"gvisor.dev/syspolicy/pkg/abi/linux"
)

// InstructionsToBytecode returns the raw BPF bytecode for the given program,
// as an array of little-endian struct sock_filter.
func InstructionsToBytecode(insns []linux.BPFInstruction) []byte {
	buf := make([]byte, 0, len(insns)*linux.SizeOfBPFInstruction)
	for _, ins := range insns {
		buf = binary.LittleEndian.AppendUint16(buf, ins.OpCode)
		buf = append(buf, ins.JumpIfTrue, ins.JumpIfFalse)
		buf = binary.LittleEndian.AppendUint32(buf, ins.K)
	}
	return buf
}

// ParseBytecode is the inverse of InstructionsToBytecode.
func ParseBytecode(b []byte) ([]linux.BPFInstruction, error) {
	if len(b)%linux.SizeOfBPFInstruction != 0 {
		return nil, fmt.Errorf("bytecode length %d is not a multiple of %d", len(b), linux.SizeOfBPFInstruction)
	}
	insns := make([]linux.BPFInstruction, 0, len(b)/linux.SizeOfBPFInstruction)
	for off := 0; off < len(b); off += linux.SizeOfBPFInstruction {
		insns = append(insns, linux.BPFInstruction{
			OpCode:      binary.LittleEndian.Uint16(b[off:]),
			JumpIfTrue:  b[off+2],
			JumpIfFalse: b[off+3],
			K:           binary.LittleEndian.Uint32(b[off+4:]),
		})
	}
	return insns, nil
}
