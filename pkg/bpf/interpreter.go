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
	"fmt"

	"gvisor.dev/syspolicy/pkg/abi/linux"
)

// Possible values for Error.Code.
const (
	// DivisionByZero indicates that a program contains, or executed, a
	// division or modulo by zero.
	DivisionByZero = iota

	// InvalidEndOfProgram indicates that the last instruction of a program is
	// not a return.
	InvalidEndOfProgram

	// InvalidInstructionCount indicates that a program has zero instructions
	// or more than MaxInstructions instructions.
	InvalidInstructionCount

	// InvalidJumpTarget indicates that a program contains a jump whose target
	// is outside of the program's bounds.
	InvalidJumpTarget

	// InvalidLoad indicates that a program executed an invalid load of input
	// data.
	InvalidLoad

	// InvalidOpcode indicates that a program contains an instruction with an
	// invalid opcode.
	InvalidOpcode

	// InvalidRegister indicates that a program contains a load from, or store
	// to, a non-existent M register (index >= ScratchMemRegisters).
	InvalidRegister
)

// Error is an error encountered while compiling or executing a BPF program.
type Error struct {
	// Code indicates the kind of error that occurred.
	Code int

	// PC is the program counter (index into the list of instructions) at which
	// the error occurred.
	PC int
}

func (e Error) codeString() string {
	switch e.Code {
	case DivisionByZero:
		return "division by zero"
	case InvalidEndOfProgram:
		return "last instruction must be a return"
	case InvalidInstructionCount:
		return "invalid number of instructions"
	case InvalidJumpTarget:
		return "jump target out of bounds"
	case InvalidLoad:
		return "load out of bounds"
	case InvalidOpcode:
		return "invalid instruction opcode"
	case InvalidRegister:
		return "invalid M register"
	default:
		return "unknown error"
	}
}

// Error implements error.Error.
func (e Error) Error() string {
	return fmt.Sprintf("at l%d: %s", e.PC, e.codeString())
}

// Program is a BPF program that has been validated for consistency.
type Program struct {
	instructions []linux.BPFInstruction
}

// Length returns the number of instructions in the program.
func (p Program) Length() int {
	return len(p.instructions)
}

// Instructions returns a copy of the program's instructions.
func (p Program) Instructions() []linux.BPFInstruction {
	return append([]linux.BPFInstruction(nil), p.instructions...)
}

// Compile performs validation on a sequence of BPF instructions before
// wrapping them in a Program. The checks mirror the ones the kernel applies
// in sk_chk_filter, except for the M register initialization check: we always
// start with a zeroed M array.
func Compile(insns []linux.BPFInstruction) (Program, error) {
	if len(insns) == 0 || len(insns) > MaxInstructions {
		return Program{}, Error{InvalidInstructionCount, len(insns)}
	}
	if !IsReturn(insns[len(insns)-1]) {
		return Program{}, Error{InvalidEndOfProgram, len(insns) - 1}
	}
	for pc, i := range insns {
		if code := validate(i, pc, len(insns)); code >= 0 {
			return Program{}, Error{code, pc}
		}
	}
	return Program{insns}, nil
}

// ValidateFragment checks instructions meant to be spliced into a larger
// program, such as a seccomp baseline. Each instruction must be valid, and
// every jump must land inside the fragment or on the first instruction after
// it. The fragment doesn't need to end in a return.
func ValidateFragment(insns []linux.BPFInstruction) error {
	if len(insns) >= MaxInstructions {
		return Error{InvalidInstructionCount, len(insns)}
	}
	for pc, i := range insns {
		// One past the end is a valid target.
		if code := validate(i, pc, len(insns)+1); code >= 0 {
			return Error{code, pc}
		}
	}
	return nil
}

// validate returns the error code for a bad instruction, or -1.
func validate(i linux.BPFInstruction, pc, n int) int {
	if i.OpCode&unusedBitsMask != 0 {
		return InvalidOpcode
	}
	mode := i.OpCode & loadModeMask
	size := i.OpCode & loadSizeMask
	switch i.OpCode & instructionClassMask {
	case Ld:
		switch {
		case size == W && (mode == Imm || mode == Abs || mode == Ind || mode == Len):
		case size == W && mode == Mem:
			if i.K >= ScratchMemRegisters {
				return InvalidRegister
			}
		case (size == H || size == B) && (mode == Abs || mode == Ind):
		default:
			return InvalidOpcode
		}
	case Ldx:
		switch {
		case size == W && (mode == Imm || mode == Len):
		case size == W && mode == Mem:
			if i.K >= ScratchMemRegisters {
				return InvalidRegister
			}
		case size == B && mode == Msh:
		default:
			return InvalidOpcode
		}
	case St, Stx:
		if i.OpCode&storeUnusedBitsMask != 0 {
			return InvalidOpcode
		}
		if i.K >= ScratchMemRegisters {
			return InvalidRegister
		}
	case Alu:
		switch i.OpCode & aluMask {
		case Add, Sub, Mul, Or, And, Lsh, Rsh, Xor:
		case Div, Mod:
			if i.OpCode&srcAluJmpMask == K && i.K == 0 {
				return DivisionByZero
			}
		case Neg:
			// Negation doesn't take a source operand.
			if i.OpCode&srcAluJmpMask != 0 {
				return InvalidOpcode
			}
		default:
			return InvalidOpcode
		}
	case Jmp:
		switch i.OpCode & jmpMask {
		case Ja:
			if i.OpCode&srcAluJmpMask != 0 {
				return InvalidOpcode
			}
			// Do the comparison in 64 bits to avoid the possibility of
			// overflow from a very large i.K.
			if uint64(pc)+uint64(i.K)+1 >= uint64(n) {
				return InvalidJumpTarget
			}
		case Jeq, Jgt, Jge, Jset:
			if pc+int(i.JumpIfTrue)+1 >= n || pc+int(i.JumpIfFalse)+1 >= n {
				return InvalidJumpTarget
			}
		default:
			return InvalidOpcode
		}
	case Ret:
		if i.OpCode&retUnusedBitsMask != 0 {
			return InvalidOpcode
		}
		if src := i.OpCode & srcRetMask; src != K && src != A {
			return InvalidOpcode
		}
	case Misc:
		if misc := i.OpCode & miscMask; misc != Tax && misc != Txa {
			return InvalidOpcode
		}
	}
	return -1
}

// machine represents the state of a BPF virtual machine.
type machine struct {
	A uint32
	X uint32
	M [ScratchMemRegisters]uint32
}

// Exec executes a BPF program over the given input and returns its return
// value.
func Exec(p Program, in Input) (uint32, error) {
	ret, _, err := run(p, in, nil)
	return ret, err
}

// Trace is like Exec, but also returns the program counters of every
// instruction executed, in order.
func Trace(p Program, in Input) (uint32, []int, error) {
	var path []int
	ret, _, err := run(p, in, func(pc int) { path = append(path, pc) })
	return ret, path, err
}

func run(p Program, in Input, visit func(pc int)) (uint32, int, error) {
	var m machine
	pc := 0
	for ; pc < len(p.instructions); pc++ {
		if visit != nil {
			visit(pc)
		}
		i := p.instructions[pc]
		switch i.OpCode & instructionClassMask {
		case Ld:
			val, err := m.load(i, in, pc)
			if err != nil {
				return 0, pc, err
			}
			m.A = val
		case Ldx:
			switch i.OpCode & loadModeMask {
			case Imm:
				m.X = i.K
			case Mem:
				m.X = m.M[int(i.K)]
			case Len:
				m.X = uint32(len(in))
			case Msh:
				val, ok := in.load8(i.K)
				if !ok {
					return 0, pc, Error{InvalidLoad, pc}
				}
				m.X = 4 * uint32(val&0xf)
			default:
				return 0, pc, Error{InvalidOpcode, pc}
			}
		case St:
			m.M[int(i.K)] = m.A
		case Stx:
			m.M[int(i.K)] = m.X
		case Alu:
			if err := m.alu(i, pc); err != nil {
				return 0, pc, err
			}
		case Jmp:
			pc += m.jump(i)
		case Ret:
			if i.OpCode&srcRetMask == A {
				return m.A, pc, nil
			}
			return i.K, pc, nil
		case Misc:
			if i.OpCode&miscMask == Tax {
				m.X = m.A
			} else {
				m.A = m.X
			}
		}
	}
	return 0, pc, Error{InvalidEndOfProgram, pc}
}

func (m *machine) load(i linux.BPFInstruction, in Input, pc int) (uint32, error) {
	var off uint32
	switch i.OpCode & loadModeMask {
	case Imm:
		return i.K, nil
	case Mem:
		return m.M[int(i.K)], nil
	case Len:
		return uint32(len(in)), nil
	case Abs:
		off = i.K
	case Ind:
		off = m.X + i.K
	default:
		return 0, Error{InvalidOpcode, pc}
	}
	var (
		val uint32
		ok  bool
	)
	switch i.OpCode & loadSizeMask {
	case W:
		val, ok = in.load32(off)
	case H:
		var v uint16
		v, ok = in.load16(off)
		val = uint32(v)
	case B:
		var v uint8
		v, ok = in.load8(off)
		val = uint32(v)
	}
	if !ok {
		return 0, Error{InvalidLoad, pc}
	}
	return val, nil
}

func (m *machine) alu(i linux.BPFInstruction, pc int) error {
	src := i.K
	if i.OpCode&srcAluJmpMask == X {
		src = m.X
	}
	switch i.OpCode & aluMask {
	case Add:
		m.A += src
	case Sub:
		m.A -= src
	case Mul:
		m.A *= src
	case Div:
		if src == 0 {
			return Error{DivisionByZero, pc}
		}
		m.A /= src
	case Mod:
		if src == 0 {
			return Error{DivisionByZero, pc}
		}
		m.A %= src
	case Or:
		m.A |= src
	case And:
		m.A &= src
	case Xor:
		m.A ^= src
	case Lsh:
		m.A <<= src
	case Rsh:
		m.A >>= src
	case Neg:
		m.A = uint32(-int32(m.A))
	default:
		return Error{InvalidOpcode, pc}
	}
	return nil
}

// jump returns the number of instructions to skip.
func (m *machine) jump(i linux.BPFInstruction) int {
	src := i.K
	if i.OpCode&srcAluJmpMask == X {
		src = m.X
	}
	var cond bool
	switch i.OpCode & jmpMask {
	case Ja:
		return int(i.K)
	case Jeq:
		cond = m.A == src
	case Jgt:
		cond = m.A > src
	case Jge:
		cond = m.A >= src
	case Jset:
		cond = m.A&src != 0
	}
	if cond {
		return int(i.JumpIfTrue)
	}
	return int(i.JumpIfFalse)
}
