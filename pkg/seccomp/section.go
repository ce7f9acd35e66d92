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
	"errors"
	"fmt"

	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/bpf"
	"gvisor.dev/syspolicy/pkg/log"
)

// ErrDefaultAllow is returned when a policy would allow system calls that
// are not explicitly listed.
var ErrDefaultAllow = errors.New("allow is not a valid default action")

// AllowEntry is a system call allowed by a section. Numbers are only
// meaningful for the section's architecture.
type AllowEntry struct {
	// Name is used for logging only.
	Name string

	// Nr is the system call number.
	Nr uint32
}

func (e AllowEntry) String() string {
	if e.Name == "" {
		return fmt.Sprintf("syscall_%d", e.Nr)
	}
	return fmt.Sprintf("%s(%d)", e.Name, e.Nr)
}

// Section is the part of a program that filters the system calls of one
// architecture.
type Section struct {
	// Name is a short name for the architecture, e.g. "arm64".
	Name string

	// Arch is the AUDIT_ARCH_* value of the architecture.
	Arch uint32

	// Baseline is emitted verbatim before the allow-list. It runs with the
	// system call number in A, and must leave it there when it falls
	// through. Its jumps may target any instruction up to and including
	// the first one after it; AppendSection rejects a baseline whose jumps
	// land further.
	Baseline []linux.BPFInstruction

	// Allow lists system calls allowed on top of Baseline, in order.
	Allow []AllowEntry

	// DefaultAction is returned for system calls that neither Baseline nor
	// Allow accept. Callers must set it. The zero value is
	// SECCOMP_RET_KILL_THREAD, which is used as is: a thread making an
	// unlisted call is killed without a signal it could report. Policies
	// read from files and the built-in policy use SECCOMP_RET_TRAP.
	DefaultAction linux.BPFAction
}

// Len returns the number of instructions AppendSection emits for s.
func (s *Section) Len() int {
	// ld nr + baseline + 2 per entry + default.
	return 1 + len(s.Baseline) + 2*len(s.Allow) + 1
}

// AppendSection emits s:
//
//	A <- seccomp_data.nr
//	<baseline>
//	(A == allow[0]) ? continue : skip 1
//	ret ALLOW
//	...
//	ret DefaultAction
func AppendSection(p *bpf.ProgramBuilder, s *Section) error {
	if isAllow(s.DefaultAction) {
		return fmt.Errorf("section %s: %w", s.Name, ErrDefaultAllow)
	}
	if err := bpf.ValidateFragment(s.Baseline); err != nil {
		return fmt.Errorf("section %s: baseline: %w", s.Name, err)
	}
	ExamineSyscall(p)
	p.AddInstructions(s.Baseline...)
	for _, e := range s.Allow {
		log.Debugf("syscall filter %s: %v => allow", s.Name, e)
		AllowSyscall(p, e.Nr)
	}
	Return(p, s.DefaultAction)
	return nil
}
