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

// Package bpf provides tools for working with classic Berkeley Packet Filter
// programs, as used by seccomp.
package bpf

import "gvisor.dev/syspolicy/pkg/abi/linux"

const (
	// MaxInstructions is the maximum number of instructions in a BPF program,
	// and is equal to Linux's BPF_MAXINSNS.
	MaxInstructions = 4096

	// ScratchMemRegisters is the number of M registers in a BPF virtual
	// machine, and is equal to Linux's BPF_MEMWORDS.
	ScratchMemRegisters = 16

	// MaxJumpOffset is the largest distance a conditional jump can cover.
	MaxJumpOffset = 255
)

// Parts of a linux.BPFInstruction.OpCode. Compare to the equivalent
// constants in <linux/filter.h>.
const (
	instructionClassMask = 0x07

	Ld   = 0x00
	Ldx  = 0x01
	St   = 0x02
	Stx  = 0x03
	Alu  = 0x04
	Jmp  = 0x05
	Ret  = 0x06
	Misc = 0x07

	loadSizeMask = 0x18

	W = 0x00 // 32 bits
	H = 0x08 // 16 bits
	B = 0x10 // 8 bits

	loadModeMask = 0xe0

	Imm = 0x00
	Abs = 0x20
	Ind = 0x40
	Mem = 0x60
	Len = 0x80
	Msh = 0xa0

	// Unlike the other fields, operation and source are shared by the ALU
	// and JMP classes.
	aluMask = 0xf0

	Add = 0x00
	Sub = 0x10
	Mul = 0x20
	Div = 0x30
	Or  = 0x40
	And = 0x50
	Lsh = 0x60
	Rsh = 0x70
	Neg = 0x80
	Mod = 0x90
	Xor = 0xa0

	jmpMask = 0xf0

	Ja   = 0x00
	Jeq  = 0x10
	Jgt  = 0x20
	Jge  = 0x30
	Jset = 0x40

	srcAluJmpMask = 0x08
	srcRetMask    = 0x18

	K = 0x00
	X = 0x08
	A = 0x10

	miscMask = 0xf8

	Tax = 0x00
	Txa = 0x80

	// Bits of OpCode that no valid instruction may set.
	unusedBitsMask      = 0xff00
	storeUnusedBitsMask = 0xf8
	retUnusedBitsMask   = 0xe0
)

// Stmt returns a linux.BPFInstruction representing a BPF non-jump instruction.
func Stmt(code uint16, k uint32) linux.BPFInstruction {
	return linux.BPFInstruction{
		OpCode: code,
		K:      k,
	}
}

// Jump returns a linux.BPFInstruction representing a BPF jump instruction.
func Jump(code uint16, k uint32, jt, jf uint8) linux.BPFInstruction {
	return linux.BPFInstruction{
		OpCode:      code,
		JumpIfTrue:  jt,
		JumpIfFalse: jf,
		K:           k,
	}
}

// IsReturn returns true if ins is a return instruction.
func IsReturn(ins linux.BPFInstruction) bool {
	return ins.OpCode&instructionClassMask == Ret
}

// IsConditionalJump returns true if ins is a jump that carries true and false
// offsets.
func IsConditionalJump(ins linux.BPFInstruction) bool {
	return ins.OpCode&instructionClassMask == Jmp && ins.OpCode&jmpMask != Ja
}
