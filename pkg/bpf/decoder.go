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
	"strings"

	"gvisor.dev/syspolicy/pkg/abi/linux"
)

// DecodeProgram translates an array of BPF instructions into text format.
// Jump targets are resolved to absolute line numbers.
func DecodeProgram(program []linux.BPFInstruction) (string, error) {
	var ret strings.Builder
	for line, s := range program {
		fmt.Fprintf(&ret, "%v: ", line)
		if err := decode(s, line, &ret); err != nil {
			return "", err
		}
		ret.WriteString("\n")
	}
	return ret.String(), nil
}

// DecodeInstructions is like DecodeProgram, but annotates return statements
// with the seccomp action they carry. On error, the lines decoded so far are
// returned along with the error.
func DecodeInstructions(program []linux.BPFInstruction) (string, error) {
	var ret strings.Builder
	for line, s := range program {
		fmt.Fprintf(&ret, "%v: ", line)
		if err := decode(s, line, &ret); err != nil {
			return ret.String(), fmt.Errorf("line %d: %w", line, err)
		}
		if s.OpCode == Ret|K {
			fmt.Fprintf(&ret, " // %v", linux.BPFAction(s.K))
		}
		ret.WriteString("\n")
	}
	return ret.String(), nil
}

// Decode translates BPF instruction into text format.
func Decode(inst linux.BPFInstruction) (string, error) {
	var ret strings.Builder
	err := decode(inst, -1, &ret)
	return ret.String(), err
}

func decode(inst linux.BPFInstruction, line int, w *strings.Builder) error {
	var err error
	switch inst.OpCode & instructionClassMask {
	case Ld:
		err = decodeLd(inst, w)
	case Ldx:
		err = decodeLdx(inst, w)
	case St:
		fmt.Fprintf(w, "M[%v] <- A", inst.K)
	case Stx:
		fmt.Fprintf(w, "M[%v] <- X", inst.K)
	case Alu:
		err = decodeAlu(inst, w)
	case Jmp:
		err = decodeJmp(inst, line, w)
	case Ret:
		err = decodeRet(inst, w)
	case Misc:
		err = decodeMisc(inst, w)
	default:
		return fmt.Errorf("invalid BPF instruction: %v", inst)
	}
	return err
}

// A <- P[k:4]
func decodeLd(inst linux.BPFInstruction, w *strings.Builder) error {
	w.WriteString("A <- ")

	switch inst.OpCode & loadModeMask {
	case Imm:
		fmt.Fprintf(w, "%v", inst.K)
	case Abs:
		fmt.Fprintf(w, "P[%v:", inst.K)
		if err := decodeLdSize(inst, w); err != nil {
			return err
		}
		w.WriteString("]")
	case Ind:
		fmt.Fprintf(w, "P[X+%v:", inst.K)
		if err := decodeLdSize(inst, w); err != nil {
			return err
		}
		w.WriteString("]")
	case Mem:
		fmt.Fprintf(w, "M[%v]", inst.K)
	case Len:
		w.WriteString("len")
	default:
		return fmt.Errorf("invalid BPF LD instruction: %v", inst)
	}
	return nil
}

func decodeLdSize(inst linux.BPFInstruction, w *strings.Builder) error {
	switch inst.OpCode & loadSizeMask {
	case W:
		w.WriteString("4")
	case H:
		w.WriteString("2")
	case B:
		w.WriteString("1")
	default:
		return fmt.Errorf("invalid BPF LD size: %v", inst)
	}
	return nil
}

// X <- P[k:4]
func decodeLdx(inst linux.BPFInstruction, w *strings.Builder) error {
	w.WriteString("X <- ")

	switch inst.OpCode & loadModeMask {
	case Imm:
		fmt.Fprintf(w, "%v", inst.K)
	case Mem:
		fmt.Fprintf(w, "M[%v]", inst.K)
	case Len:
		w.WriteString("len")
	case Msh:
		fmt.Fprintf(w, "4*(P[%v:1]&0xf)", inst.K)
	default:
		return fmt.Errorf("invalid BPF LDX instruction: %v", inst)
	}
	return nil
}

var aluOps = map[uint16]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Or:  "|",
	And: "&",
	Lsh: "<<",
	Rsh: ">>",
	Mod: "%",
	Xor: "^",
}

// A <- A + k
func decodeAlu(inst linux.BPFInstruction, w *strings.Builder) error {
	code := inst.OpCode & aluMask
	if code == Neg {
		w.WriteString("A <- -A")
		return nil
	}
	op, ok := aluOps[code]
	if !ok {
		return fmt.Errorf("invalid BPF ALU instruction: %v", inst)
	}
	fmt.Fprintf(w, "A <- A %s ", op)
	return decodeSource(inst, w)
}

func decodeSource(inst linux.BPFInstruction, w *strings.Builder) error {
	switch inst.OpCode & srcAluJmpMask {
	case K:
		fmt.Fprintf(w, "%v", inst.K)
	case X:
		w.WriteString("X")
	default:
		return fmt.Errorf("invalid BPF ALU/JMP source instruction: %v", inst)
	}
	return nil
}

var jmpOps = map[uint16]string{
	Jeq:  "==",
	Jgt:  ">",
	Jge:  ">=",
	Jset: "&",
}

// pc += (A > k) ? jt : jf
func decodeJmp(inst linux.BPFInstruction, line int, w *strings.Builder) error {
	code := inst.OpCode & jmpMask

	w.WriteString("pc += ")
	if code == Ja {
		w.WriteString(printJmpTarget(inst.K, line))
		return nil
	}
	op, ok := jmpOps[code]
	if !ok {
		return fmt.Errorf("invalid BPF JMP instruction: %v", inst)
	}
	fmt.Fprintf(w, "(A %s ", op)
	if err := decodeSource(inst, w); err != nil {
		return err
	}
	fmt.Fprintf(w, ") ? %s : %s",
		printJmpTarget(uint32(inst.JumpIfTrue), line),
		printJmpTarget(uint32(inst.JumpIfFalse), line))
	return nil
}

func printJmpTarget(target uint32, line int) string {
	if line == -1 {
		return fmt.Sprintf("%v", target)
	}
	return fmt.Sprintf("%v [%v]", target, int(target)+line+1)
}

// ret k
func decodeRet(inst linux.BPFInstruction, w *strings.Builder) error {
	w.WriteString("ret ")

	switch inst.OpCode & srcRetMask {
	case K:
		fmt.Fprintf(w, "%v", inst.K)
	case A:
		w.WriteString("A")
	default:
		return fmt.Errorf("invalid BPF RET source instruction: %v", inst)
	}
	return nil
}

func decodeMisc(inst linux.BPFInstruction, w *strings.Builder) error {
	switch inst.OpCode & miscMask {
	case Tax:
		w.WriteString("X <- A")
	case Txa:
		w.WriteString("A <- X")
	default:
		return fmt.Errorf("invalid BPF MISC instruction: %v", inst)
	}
	return nil
}
