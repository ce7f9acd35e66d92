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
	"testing"

	"gvisor.dev/syspolicy/pkg/abi/linux"
)

func TestDecode(t *testing.T) {
	for _, test := range []struct {
		filter   linux.BPFInstruction
		expected string
		fail     bool
	}{
		{filter: Stmt(Ld+Imm, 10), expected: "A <- 10"},
		{filter: Stmt(Ld+Abs+W, 10), expected: "A <- P[10:4]"},
		{filter: Stmt(Ld+Ind+H, 10), expected: "A <- P[X+10:2]"},
		{filter: Stmt(Ld+Ind+B, 10), expected: "A <- P[X+10:1]"},
		{filter: Stmt(Ld+Mem, 10), expected: "A <- M[10]"},
		{filter: Stmt(Ld+Len, 0), expected: "A <- len"},
		{filter: Stmt(Ldx+Imm, 10), expected: "X <- 10"},
		{filter: Stmt(Ldx+Mem, 10), expected: "X <- M[10]"},
		{filter: Stmt(Ldx+Len, 0), expected: "X <- len"},
		{filter: Stmt(Ldx+Msh+B, 10), expected: "X <- 4*(P[10:1]&0xf)"},
		{filter: Stmt(St, 10), expected: "M[10] <- A"},
		{filter: Stmt(Stx, 10), expected: "M[10] <- X"},
		{filter: Stmt(Alu+Add+K, 10), expected: "A <- A + 10"},
		{filter: Stmt(Alu+Sub+K, 10), expected: "A <- A - 10"},
		{filter: Stmt(Alu+Mul+K, 10), expected: "A <- A * 10"},
		{filter: Stmt(Alu+Div+K, 10), expected: "A <- A / 10"},
		{filter: Stmt(Alu+Or+K, 10), expected: "A <- A | 10"},
		{filter: Stmt(Alu+And+K, 10), expected: "A <- A & 10"},
		{filter: Stmt(Alu+Lsh+K, 10), expected: "A <- A << 10"},
		{filter: Stmt(Alu+Rsh+K, 10), expected: "A <- A >> 10"},
		{filter: Stmt(Alu+Mod+K, 10), expected: "A <- A % 10"},
		{filter: Stmt(Alu+Xor+K, 10), expected: "A <- A ^ 10"},
		{filter: Stmt(Alu+Add+X, 0), expected: "A <- A + X"},
		{filter: Stmt(Alu+Neg, 0), expected: "A <- -A"},
		{filter: Stmt(Jmp+Ja, 10), expected: "pc += 10"},
		{filter: Jump(Jmp+Jeq+K, 10, 2, 5), expected: "pc += (A == 10) ? 2 : 5"},
		{filter: Jump(Jmp+Jgt+K, 10, 2, 5), expected: "pc += (A > 10) ? 2 : 5"},
		{filter: Jump(Jmp+Jge+K, 10, 2, 5), expected: "pc += (A >= 10) ? 2 : 5"},
		{filter: Jump(Jmp+Jset+K, 10, 2, 5), expected: "pc += (A & 10) ? 2 : 5"},
		{filter: Jump(Jmp+Jeq+X, 0, 2, 5), expected: "pc += (A == X) ? 2 : 5"},
		{filter: Stmt(Ret+K, 10), expected: "ret 10"},
		{filter: Stmt(Ret+A, 0), expected: "ret A"},
		{filter: Stmt(Misc+Tax, 0), expected: "X <- A"},
		{filter: Stmt(Misc+Txa, 0), expected: "A <- X"},
		{filter: Stmt(Ld+Ind+Msh, 0), fail: true},
		{filter: Stmt(Ldx+Abs, 0), fail: true},
		{filter: Stmt(Alu+0xb0, 0), fail: true},
		{filter: Jump(Jmp+0x50, 0, 0, 0), fail: true},
		{filter: Stmt(Ret+X, 0), fail: true},
		{filter: Stmt(Misc+0x40, 0), fail: true},
	} {
		got, err := Decode(test.filter)
		if test.fail {
			if err == nil {
				t.Errorf("Decode(%v) = %q, want error", test.filter, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Decode(%v) failed: %v", test.filter, err)
			continue
		}
		if got != test.expected {
			t.Errorf("Decode(%v) = %q, want %q", test.filter, got, test.expected)
		}
	}
}

func TestDecodeProgram(t *testing.T) {
	for _, test := range []struct {
		name     string
		program  []linux.BPFInstruction
		expected string
		fail     bool
	}{
		{name: "empty"},
		{
			name: "valid",
			program: []linux.BPFInstruction{
				Stmt(Ld+Abs+W, 4),
				Jump(Jmp+Jeq+K, 0xc00000b7, 1, 0),
				Stmt(Ret+K, 0),
				Stmt(Jmp+Ja, 0),
				Stmt(Ret+K, 1),
			},
			expected: "0: A <- P[4:4]\n" +
				"1: pc += (A == 3221225655) ? 1 [3] : 0 [2]\n" +
				"2: ret 0\n" +
				"3: pc += 0 [4]\n" +
				"4: ret 1\n",
		},
		{
			name: "invalid instruction",
			program: []linux.BPFInstruction{
				Stmt(Ld+Abs+W, 4),
				Stmt(Ld+Len+Mem, 0),
			},
			fail: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := DecodeProgram(test.program)
			if test.fail {
				if err == nil {
					t.Errorf("DecodeProgram() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeProgram() failed: %v", err)
			}
			if got != test.expected {
				t.Errorf("DecodeProgram() = %q, want %q", got, test.expected)
			}
		})
	}
}

func TestDecodeInstructionsAnnotatesActions(t *testing.T) {
	program := []linux.BPFInstruction{
		Stmt(Ld+Abs+W, linux.SeccompDataOffsetNR),
		Jump(Jmp+Jeq+K, 98, 0, 1),
		Stmt(Ret+K, uint32(linux.SECCOMP_RET_ALLOW)),
		Stmt(Ret+K, uint32(linux.SECCOMP_RET_TRAP)),
	}
	want := "0: A <- P[0:4]\n" +
		"1: pc += (A == 98) ? 0 [2] : 1 [3]\n" +
		"2: ret 2147418112 // allow\n" +
		"3: ret 196608 // trap (0)\n"
	got, err := DecodeInstructions(program)
	if err != nil {
		t.Fatalf("DecodeInstructions() failed: %v", err)
	}
	if got != want {
		t.Errorf("DecodeInstructions() = %q, want %q", got, want)
	}
}

func TestDecodeInstructionsPartialOnError(t *testing.T) {
	program := []linux.BPFInstruction{
		Stmt(Ret+K, uint32(linux.SECCOMP_RET_ALLOW)),
		Stmt(Ret+X, 0),
	}
	got, err := DecodeInstructions(program)
	if err == nil {
		t.Fatalf("DecodeInstructions() = %q, want error", got)
	}
	if want := "0: ret 2147418112 // allow\n1: ret "; got != want {
		t.Errorf("DecodeInstructions() partial output = %q, want %q", got, want)
	}
}
