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

	netbpf "golang.org/x/net/bpf"
	"gvisor.dev/syspolicy/pkg/abi/linux"
)

// ToRaw converts instructions to golang.org/x/net/bpf raw instructions.
func ToRaw(insns []linux.BPFInstruction) []netbpf.RawInstruction {
	raw := make([]netbpf.RawInstruction, 0, len(insns))
	for _, ins := range insns {
		raw = append(raw, netbpf.RawInstruction{
			Op: ins.OpCode,
			Jt: ins.JumpIfTrue,
			Jf: ins.JumpIfFalse,
			K:  ins.K,
		})
	}
	return raw
}

// FromRaw is the inverse of ToRaw.
func FromRaw(raw []netbpf.RawInstruction) []linux.BPFInstruction {
	insns := make([]linux.BPFInstruction, 0, len(raw))
	for _, r := range raw {
		insns = append(insns, Jump(r.Op, r.K, r.Jt, r.Jf))
	}
	return insns
}

// Disassemble returns the program in golang.org/x/net/bpf's assembler
// syntax, one instruction per line.
func Disassemble(insns []linux.BPFInstruction) (string, error) {
	decoded, ok := netbpf.Disassemble(ToRaw(insns))
	if !ok {
		return "", fmt.Errorf("program contains instructions that cannot be disassembled")
	}
	var sb strings.Builder
	for line, ins := range decoded {
		fmt.Fprintf(&sb, "%4d: %v\n", line, ins)
	}
	return sb.String(), nil
}

// Assemble converts golang.org/x/net/bpf instructions into a program. It is
// convenient for writing baseline fragments by hand.
func Assemble(insns []netbpf.Instruction) ([]linux.BPFInstruction, error) {
	raw, err := netbpf.Assemble(insns)
	if err != nil {
		return nil, err
	}
	return FromRaw(raw), nil
}
