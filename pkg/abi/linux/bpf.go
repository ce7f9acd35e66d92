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

// Package linux contains the constants and types needed to interface with
// the seccomp-bpf facilities of a Linux kernel.
package linux

import "fmt"

// BPFInstruction is a raw BPF virtual machine instruction. It has the same
// layout as struct sock_filter in <linux/filter.h>.
type BPFInstruction struct {
	// OpCode is the operation to execute.
	OpCode uint16

	// JumpIfTrue is the number of instructions to skip if OpCode is a
	// conditional instruction and the condition is true.
	JumpIfTrue uint8

	// JumpIfFalse is the number of instructions to skip if OpCode is a
	// conditional instruction and the condition is false.
	JumpIfFalse uint8

	// K is a constant parameter. The meaning depends on the value of OpCode.
	K uint32
}

// SizeOfBPFInstruction is the size of a BPFInstruction in bytes.
const SizeOfBPFInstruction = 8

// String implements fmt.Stringer. The output is stable and diffable.
func (ins BPFInstruction) String() string {
	return fmt.Sprintf("op=%#04x jt=%d jf=%d k=%#08x", ins.OpCode, ins.JumpIfTrue, ins.JumpIfFalse, ins.K)
}

// SockFprog is struct sock_fprog from <linux/filter.h>. It is the structure
// handed to the kernel when installing a filter. Go's alignment rules insert
// the same padding after Len as the C compiler does.
type SockFprog struct {
	Len    uint16
	Filter *BPFInstruction
}
