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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	netbpf "golang.org/x/net/bpf"
	"gvisor.dev/syspolicy/pkg/abi/linux"
)

func allowFutexProgram() []linux.BPFInstruction {
	return []linux.BPFInstruction{
		Stmt(Ld|Abs|W, linux.SeccompDataOffsetNR),
		Jump(Jmp|Jeq|K, 98, 0, 1),
		Stmt(Ret|K, uint32(linux.SECCOMP_RET_ALLOW)),
		Stmt(Ret|K, uint32(linux.SECCOMP_RET_TRAP)),
	}
}

func TestRawRoundTrip(t *testing.T) {
	insns := allowFutexProgram()
	if diff := cmp.Diff(insns, FromRaw(ToRaw(insns))); diff != "" {
		t.Errorf("FromRaw(ToRaw()) mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble(t *testing.T) {
	got, err := Assemble([]netbpf.Instruction{
		netbpf.LoadAbsolute{Off: linux.SeccompDataOffsetNR, Size: 4},
		netbpf.JumpIf{Cond: netbpf.JumpEqual, Val: 98, SkipTrue: 0, SkipFalse: 1},
		netbpf.RetConstant{Val: uint32(linux.SECCOMP_RET_ALLOW)},
		netbpf.RetConstant{Val: uint32(linux.SECCOMP_RET_TRAP)},
	})
	if err != nil {
		t.Fatalf("Assemble() failed: %v", err)
	}
	if diff := cmp.Diff(allowFutexProgram(), got); diff != "" {
		t.Errorf("Assemble() mismatch (-want +got):\n%s", diff)
	}
}

func TestDisassemble(t *testing.T) {
	got, err := Disassemble(allowFutexProgram())
	if err != nil {
		t.Fatalf("Disassemble() failed: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Disassemble() returned %d lines, want 4:\n%s", len(lines), got)
	}
	if !strings.Contains(lines[2], "ret #2147418112") {
		t.Errorf("Disassemble() line 2 = %q, want allow return", lines[2])
	}
	if _, err := Disassemble([]linux.BPFInstruction{Stmt(0xffff, 0)}); err == nil {
		t.Errorf("Disassemble() of an invalid opcode succeeded")
	}
}

// TestAgreesWithNetVM runs the same program through this package's
// interpreter and golang.org/x/net/bpf's VM. The latter loads big-endian
// words, so its input is encoded accordingly.
func TestAgreesWithNetVM(t *testing.T) {
	insns := allowFutexProgram()
	p, err := Compile(insns)
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	decoded, ok := netbpf.Disassemble(ToRaw(insns))
	if !ok {
		t.Fatalf("netbpf.Disassemble() failed")
	}
	vm, err := netbpf.NewVM(decoded)
	if err != nil {
		t.Fatalf("netbpf.NewVM() failed: %v", err)
	}
	for _, nr := range []uint32{0, 1, 97, 98, 99, 220} {
		got, err := Exec(p, seccompInput(int32(nr), 0))
		if err != nil {
			t.Fatalf("Exec(nr=%d) failed: %v", nr, err)
		}
		be := make([]byte, linux.SizeOfSeccompData)
		binary.BigEndian.PutUint32(be[linux.SeccompDataOffsetNR:], nr)
		want, err := vm.Run(be)
		if err != nil {
			t.Fatalf("vm.Run(nr=%d) failed: %v", nr, err)
		}
		if got != uint32(want) {
			t.Errorf("nr=%d: Exec() = %#x, netbpf VM = %#x", nr, got, want)
		}
	}
}
