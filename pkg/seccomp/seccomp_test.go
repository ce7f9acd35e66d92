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

package seccomp

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/bpf"
)

const errnoDeny = linux.SECCOMP_RET_ERRNO | 1

// testPolicy returns an arm64/arm policy that traps everything not listed.
func testPolicy(primary, compat []AllowEntry) *Policy {
	return &Policy{
		Primary: Section{
			Name:          "arm64",
			Arch:          linux.AUDIT_ARCH_AARCH64,
			Allow:         primary,
			DefaultAction: linux.SECCOMP_RET_TRAP,
		},
		Compat: Section{
			Name:          "arm",
			Arch:          linux.AUDIT_ARCH_ARM,
			Allow:         compat,
			DefaultAction: linux.SECCOMP_RET_TRAP,
		},
		BadArchAction: linux.SECCOMP_RET_TRAP,
	}
}

func entries(nrs ...uint32) []AllowEntry {
	var es []AllowEntry
	for _, nr := range nrs {
		es = append(es, AllowEntry{Nr: nr})
	}
	return es
}

func evaluate(t *testing.T, instrs []linux.BPFInstruction, arch uint32, nr int32) linux.BPFAction {
	t.Helper()
	got, err := Evaluate(instrs, linux.SeccompData{Nr: nr, Arch: arch})
	if err != nil {
		t.Fatalf("Evaluate(arch=%#x, nr=%d) failed: %v", arch, nr, err)
	}
	return got
}

func TestActions(t *testing.T) {
	for _, test := range []struct {
		name string
		emit func(p *bpf.ProgramBuilder)
		want linux.BPFAction
	}{
		{name: "allow", emit: Allow, want: linux.SECCOMP_RET_ALLOW},
		{name: "trap", emit: Trap, want: linux.SECCOMP_RET_TRAP},
		{name: "kill", emit: Kill, want: linux.SECCOMP_RET_KILL_THREAD},
		{name: "kill process", emit: KillProcess, want: linux.SECCOMP_RET_KILL_PROCESS},
		{name: "errno", emit: func(p *bpf.ProgramBuilder) { Errno(p, 13) }, want: linux.SECCOMP_RET_ERRNO | 13},
		{name: "trace", emit: func(p *bpf.ProgramBuilder) { Trace(p, 7) }, want: linux.SECCOMP_RET_TRACE | 7},
		{name: "log", emit: Log, want: linux.SECCOMP_RET_LOG},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := bpf.NewProgramBuilder()
			test.emit(p)
			got, err := p.Instructions()
			if err != nil {
				t.Fatalf("Instructions() failed: %v", err)
			}
			want := []linux.BPFInstruction{bpf.Stmt(bpf.Ret|bpf.K, uint32(test.want))}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("emitted program mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAllowSyscall(t *testing.T) {
	p := bpf.NewProgramBuilder()
	AllowSyscall(p, 98)
	got, _ := p.Instructions()
	want := []linux.BPFInstruction{
		bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, 98, 0, 1),
		bpf.Stmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_ALLOW)),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AllowSyscall() mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcherLayout(t *testing.T) {
	p := bpf.NewProgramBuilder()
	ValidateArchitectureAndJump(p, linux.AUDIT_ARCH_AARCH64, linux.AUDIT_ARCH_ARM, linux.SECCOMP_RET_TRAP)
	got, _ := p.Instructions()
	want := []linux.BPFInstruction{
		bpf.Stmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetArch),
		bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, linux.AUDIT_ARCH_AARCH64, 2, 0),
		bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, linux.AUDIT_ARCH_ARM, 0, 0),
		bpf.Stmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_TRAP)),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dispatcher mismatch (-want +got):\n%s", diff)
	}
}

func TestUnpatchedDispatcherRejectsCompat(t *testing.T) {
	p := bpf.NewProgramBuilder()
	ValidateArchitectureAndJump(p, linux.AUDIT_ARCH_AARCH64, linux.AUDIT_ARCH_ARM, linux.SECCOMP_RET_KILL_PROCESS)
	s := Section{Name: "arm64", Allow: entries(1), DefaultAction: linux.SECCOMP_RET_TRAP}
	if err := AppendSection(p, &s); err != nil {
		t.Fatalf("AppendSection() failed: %v", err)
	}
	instrs, _ := p.Instructions()
	if got := evaluate(t, instrs, linux.AUDIT_ARCH_ARM, 1); got != linux.SECCOMP_RET_KILL_PROCESS {
		t.Errorf("compat syscall = %v, want %v", got, linux.SECCOMP_RET_KILL_PROCESS)
	}
	if got := evaluate(t, instrs, linux.AUDIT_ARCH_AARCH64, 1); got != linux.SECCOMP_RET_ALLOW {
		t.Errorf("primary syscall = %v, want %v", got, linux.SECCOMP_RET_ALLOW)
	}
}

func TestEndToEnd(t *testing.T) {
	pol := testPolicy([]AllowEntry{{"futex", 98}, {"clone", 220}}, nil)
	instrs, err := BuildProgram(pol)
	if err != nil {
		t.Fatalf("BuildProgram() failed: %v", err)
	}

	allow := bpf.Stmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_ALLOW))
	trap := bpf.Stmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_TRAP))
	ldNR := bpf.Stmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetNR)
	want := []linux.BPFInstruction{
		// Dispatcher.
		bpf.Stmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetArch),
		bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, linux.AUDIT_ARCH_AARCH64, 2, 0),
		bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, linux.AUDIT_ARCH_ARM, 7, 0),
		trap,
		// arm64.
		ldNR,
		bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, 98, 0, 1),
		allow,
		bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, 220, 0, 1),
		allow,
		trap,
		// arm.
		ldNR,
		trap,
	}
	if diff := cmp.Diff(want, instrs); diff != "" {
		t.Errorf("BuildProgram() mismatch (-want +got):\n%s", diff)
	}

	for _, test := range []struct {
		arch uint32
		nr   int32
		want linux.BPFAction
	}{
		{linux.AUDIT_ARCH_AARCH64, 98, linux.SECCOMP_RET_ALLOW},
		{linux.AUDIT_ARCH_AARCH64, 220, linux.SECCOMP_RET_ALLOW},
		{linux.AUDIT_ARCH_AARCH64, 1, linux.SECCOMP_RET_TRAP},
		{linux.AUDIT_ARCH_ARM, 98, linux.SECCOMP_RET_TRAP},
		{linux.AUDIT_ARCH_X86_64, 98, linux.SECCOMP_RET_TRAP},
	} {
		if got := evaluate(t, instrs, test.arch, test.nr); got != test.want {
			t.Errorf("arch=%#x nr=%d: got %v, want %v", test.arch, test.nr, got, test.want)
		}
	}
}

func TestDefaultDenyAndAllow(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for iter := 0; iter < 20; iter++ {
		primary := map[uint32]bool{}
		compat := map[uint32]bool{}
		var pe, ce []AllowEntry
		for i := r.Intn(50); i > 0; i-- {
			nr := uint32(r.Intn(400))
			if !primary[nr] {
				primary[nr] = true
				pe = append(pe, AllowEntry{Nr: nr})
			}
		}
		for i := r.Intn(50); i > 0; i-- {
			nr := uint32(r.Intn(400))
			if !compat[nr] {
				compat[nr] = true
				ce = append(ce, AllowEntry{Nr: nr})
			}
		}
		instrs, err := BuildProgram(testPolicy(pe, ce))
		if err != nil {
			t.Fatalf("BuildProgram() failed: %v", err)
		}
		for nr := uint32(0); nr < 400; nr++ {
			for _, arch := range []struct {
				id      uint32
				allowed map[uint32]bool
			}{
				{linux.AUDIT_ARCH_AARCH64, primary},
				{linux.AUDIT_ARCH_ARM, compat},
			} {
				want := linux.SECCOMP_RET_TRAP
				if arch.allowed[nr] {
					want = linux.SECCOMP_RET_ALLOW
				}
				if got := evaluate(t, instrs, arch.id, int32(nr)); got != want {
					t.Fatalf("arch=%#x nr=%d: got %v, want %v", arch.id, nr, got, want)
				}
			}
		}
	}
}

func TestArchitectureIsolation(t *testing.T) {
	instrs, err := BuildProgram(testPolicy(entries(98), entries(240)))
	if err != nil {
		t.Fatalf("BuildProgram() failed: %v", err)
	}
	if got := evaluate(t, instrs, linux.AUDIT_ARCH_ARM, 98); got != linux.SECCOMP_RET_TRAP {
		t.Errorf("arm/98 = %v, want trap", got)
	}
	if got := evaluate(t, instrs, linux.AUDIT_ARCH_AARCH64, 240); got != linux.SECCOMP_RET_TRAP {
		t.Errorf("arm64/240 = %v, want trap", got)
	}
	if got := evaluate(t, instrs, linux.AUDIT_ARCH_ARM, 240); got != linux.SECCOMP_RET_ALLOW {
		t.Errorf("arm/240 = %v, want allow", got)
	}
}

func TestBadArchitecture(t *testing.T) {
	pol := testPolicy(entries(1, 2, 3), entries(1, 2, 3))
	pol.BadArchAction = linux.SECCOMP_RET_KILL_PROCESS
	instrs, err := BuildProgram(pol)
	if err != nil {
		t.Fatalf("BuildProgram() failed: %v", err)
	}
	for _, arch := range []uint32{0, linux.AUDIT_ARCH_X86_64, linux.AUDIT_ARCH_I386} {
		for nr := int32(0); nr < 5; nr++ {
			if got := evaluate(t, instrs, arch, nr); got != linux.SECCOMP_RET_KILL_PROCESS {
				t.Errorf("arch=%#x nr=%d: got %v, want kill process", arch, nr, got)
			}
		}
	}
}

// fillerBaseline returns n instructions that reload the syscall number and
// otherwise do nothing.
func fillerBaseline(n int) []linux.BPFInstruction {
	b := make([]linux.BPFInstruction, n)
	for i := range b {
		b[i] = bpf.Stmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetNR)
	}
	return b
}

func TestCompatJumpOffsetBound(t *testing.T) {
	// The jump from the placeholder at index 2 skips instruction 3 and the
	// whole primary section, so it skips 2+1+len+2 instructions for a
	// baseline of len instructions.
	for _, test := range []struct {
		name     string
		baseline int
		wantErr  bool
	}{
		{name: "offset 254", baseline: 251},
		{name: "offset 255", baseline: 252},
		{name: "offset 256", baseline: 253, wantErr: true},
		{name: "offset 300", baseline: 297, wantErr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			pol := testPolicy(nil, entries(5))
			pol.Primary.Baseline = fillerBaseline(test.baseline)
			pol.Compat.DefaultAction = errnoDeny

			instrs, err := BuildProgram(pol)
			if test.wantErr {
				if !errors.Is(err, bpf.ErrJumpOffsetTooLarge) {
					t.Fatalf("BuildProgram() = %v, want %v", err, bpf.ErrJumpOffsetTooLarge)
				}
				var offErr *bpf.JumpOffsetError
				if !errors.As(err, &offErr) || offErr.Line != 2 || offErr.Offset != test.baseline+3 {
					t.Errorf("BuildProgram() = %v, want jump of %d at line 2", err, test.baseline+3)
				}
				if instrs != nil {
					t.Errorf("BuildProgram() returned a program along with an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildProgram() failed: %v", err)
			}

			// The patched jump lands on the first compat instruction.
			jt := int(instrs[2].JumpIfTrue)
			if got, want := 2+jt+1, 4+pol.Primary.Len(); got != want {
				t.Errorf("compat jump lands on %d, want %d", got, want)
			}
			if got := evaluate(t, instrs, linux.AUDIT_ARCH_ARM, 5); got != linux.SECCOMP_RET_ALLOW {
				t.Errorf("arm/5 = %v, want allow", got)
			}
			if got := evaluate(t, instrs, linux.AUDIT_ARCH_ARM, 6); got != errnoDeny {
				t.Errorf("arm/6 = %v, want %v", got, errnoDeny)
			}
			if got := evaluate(t, instrs, linux.AUDIT_ARCH_AARCH64, 5); got != linux.SECCOMP_RET_TRAP {
				t.Errorf("arm64/5 = %v, want trap", got)
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	baseline, err := BuildBaseline([]uint32{0, 1, 2, 3, 17, 56, 57, 100})
	if err != nil {
		t.Fatalf("BuildBaseline() failed: %v", err)
	}
	build := func() []byte {
		pol := testPolicy(entries(98, 220, 139), entries(240, 120))
		pol.Primary.Baseline = baseline
		instrs, err := BuildProgram(pol)
		if err != nil {
			t.Fatalf("BuildProgram() failed: %v", err)
		}
		return bpf.InstructionsToBytecode(instrs)
	}
	first := build()
	for i := 0; i < 10; i++ {
		if got := build(); !bytes.Equal(first, got) {
			t.Fatalf("BuildProgram() is not deterministic:\n%x\n%x", first, got)
		}
	}
}

func TestPolicyValidation(t *testing.T) {
	for _, test := range []struct {
		name    string
		mutate  func(*Policy)
		wantErr error
	}{
		{
			name:    "same architecture",
			mutate:  func(p *Policy) { p.Compat.Arch = p.Primary.Arch },
			wantErr: ErrSameArch,
		},
		{
			name:    "allow bad architecture",
			mutate:  func(p *Policy) { p.BadArchAction = linux.SECCOMP_RET_ALLOW },
			wantErr: ErrDefaultAllow,
		},
		{
			name:    "allow by default",
			mutate:  func(p *Policy) { p.Compat.DefaultAction = linux.SECCOMP_RET_ALLOW },
			wantErr: ErrDefaultAllow,
		},
		{
			name: "baseline jumps past its end",
			mutate: func(p *Policy) {
				// Would land on the section's own allow instruction.
				p.Primary.Baseline = []linux.BPFInstruction{
					bpf.Stmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetNR),
					bpf.Jump(bpf.Jmp|bpf.Ja, 1, 0, 0),
				}
			},
			wantErr: bpf.Error{Code: bpf.InvalidJumpTarget, PC: 1},
		},
		{
			name: "baseline conditional jump past its end",
			mutate: func(p *Policy) {
				p.Compat.Baseline = []linux.BPFInstruction{
					bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, 5, 0, 3),
				}
			},
			wantErr: bpf.Error{Code: bpf.InvalidJumpTarget, PC: 0},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			pol := testPolicy(entries(1), entries(2))
			test.mutate(pol)
			if _, err := BuildProgram(pol); !errors.Is(err, test.wantErr) {
				t.Errorf("BuildProgram() = %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestAppendSectionRejectsBadBaseline(t *testing.T) {
	s := &Section{
		Name:          "arm64",
		Arch:          linux.AUDIT_ARCH_AARCH64,
		Baseline:      []linux.BPFInstruction{bpf.Jump(bpf.Jmp|bpf.Ja, 2, 0, 0)},
		Allow:         entries(98),
		DefaultAction: linux.SECCOMP_RET_TRAP,
	}
	p := bpf.NewProgramBuilder()
	want := bpf.Error{Code: bpf.InvalidJumpTarget, PC: 0}
	if err := AppendSection(p, s); !errors.Is(err, want) {
		t.Errorf("AppendSection() = %v, want %v", err, want)
	}
}

func TestBaselineJumpToEnd(t *testing.T) {
	// Allows getpid (172) and jumps to the allow-list for everything else.
	pol := testPolicy(entries(98), entries(240))
	pol.Primary.Baseline = []linux.BPFInstruction{
		bpf.Jump(bpf.Jmp|bpf.Jeq|bpf.K, 172, 0, 1),
		bpf.Stmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_ALLOW)),
	}
	instrs, err := BuildProgram(pol)
	if err != nil {
		t.Fatalf("BuildProgram() failed: %v", err)
	}
	for _, test := range []struct {
		nr   int32
		want linux.BPFAction
	}{
		{172, linux.SECCOMP_RET_ALLOW},
		{98, linux.SECCOMP_RET_ALLOW},
		{99, linux.SECCOMP_RET_TRAP},
	} {
		if got := evaluate(t, instrs, linux.AUDIT_ARCH_AARCH64, test.nr); got != test.want {
			t.Errorf("nr=%d: got %v, want %v", test.nr, got, test.want)
		}
	}
}

func TestZeroDefaultActionKillsThread(t *testing.T) {
	pol := testPolicy(entries(98), entries(240))
	pol.Primary.DefaultAction = 0
	instrs, err := BuildProgram(pol)
	if err != nil {
		t.Fatalf("BuildProgram() failed: %v", err)
	}
	if got, want := evaluate(t, instrs, linux.AUDIT_ARCH_AARCH64, 99), linux.SECCOMP_RET_KILL_THREAD; got != want {
		t.Errorf("arm64 nr=99: got %v, want %v", got, want)
	}
	if got, want := evaluate(t, instrs, linux.AUDIT_ARCH_ARM, 99), linux.SECCOMP_RET_TRAP; got != want {
		t.Errorf("arm nr=99: got %v, want %v", got, want)
	}
}

func TestBuildProgramDoesNotModifyPolicy(t *testing.T) {
	pol := testPolicy(entries(98, 220), entries(240))
	pol.Primary.Baseline = fillerBaseline(3)
	before := *pol
	before.Primary.Allow = append([]AllowEntry(nil), pol.Primary.Allow...)
	before.Primary.Baseline = append([]linux.BPFInstruction(nil), pol.Primary.Baseline...)
	if _, err := BuildProgram(pol); err != nil {
		t.Fatalf("BuildProgram() failed: %v", err)
	}
	if diff := cmp.Diff(before, *pol); diff != "" {
		t.Errorf("BuildProgram() modified the policy (-before +after):\n%s", diff)
	}
}

func TestDataAsInput(t *testing.T) {
	d := linux.SeccompData{
		Nr:                 220,
		Arch:               linux.AUDIT_ARCH_AARCH64,
		InstructionPointer: 0x1122334455667788,
		Args:               [6]uint64{1, 2, 3, 4, 5, 6},
	}
	in := DataAsInput(d)
	if len(in) != linux.SizeOfSeccompData {
		t.Fatalf("len(DataAsInput()) = %d, want %d", len(in), linux.SizeOfSeccompData)
	}
	// Read every field back with the interpreter.
	for _, test := range []struct {
		off  uint32
		want uint32
	}{
		{linux.SeccompDataOffsetNR, 220},
		{linux.SeccompDataOffsetArch, linux.AUDIT_ARCH_AARCH64},
		{linux.SeccompDataOffsetIPLow, 0x55667788},
		{linux.SeccompDataOffsetIPHigh, 0x11223344},
		{linux.SeccompDataOffsetArgs + 8*5, 6},
	} {
		p, err := bpf.Compile([]linux.BPFInstruction{
			bpf.Stmt(bpf.Ld|bpf.Abs|bpf.W, test.off),
			bpf.Stmt(bpf.Ret|bpf.A, 0),
		})
		if err != nil {
			t.Fatalf("Compile() failed: %v", err)
		}
		got, err := bpf.Exec(p, in)
		if err != nil {
			t.Fatalf("Exec() failed: %v", err)
		}
		if got != test.want {
			t.Errorf("load at %d = %#x, want %#x", test.off, got, test.want)
		}
	}
}
