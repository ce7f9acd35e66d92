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

// ErrSameArch is returned when both sections of a policy filter the same
// architecture.
var ErrSameArch = errors.New("primary and compat sections have the same architecture")

// Policy describes a complete filter. It is not modified by BuildProgram.
type Policy struct {
	// Primary filters the native architecture.
	Primary Section

	// Compat filters the 32-bit compat architecture.
	Compat Section

	// BadArchAction is returned for system calls made under any other
	// architecture.
	BadArchAction linux.BPFAction
}

// Validate checks the policy for errors that don't depend on its size.
func (p *Policy) Validate() error {
	if p.Primary.Arch == p.Compat.Arch {
		return fmt.Errorf("%w: %#x", ErrSameArch, p.Primary.Arch)
	}
	if isAllow(p.BadArchAction) {
		return fmt.Errorf("bad architecture action: %w", ErrDefaultAllow)
	}
	for _, s := range []*Section{&p.Primary, &p.Compat} {
		if isAllow(s.DefaultAction) {
			return fmt.Errorf("section %s: %w", s.Name, ErrDefaultAllow)
		}
		if err := bpf.ValidateFragment(s.Baseline); err != nil {
			return fmt.Errorf("section %s: baseline: %w", s.Name, err)
		}
	}
	return nil
}

// BuildProgram builds the filter for the given policy: the architecture
// dispatcher, then the primary section, then the compat section.
//
// The result is checked with bpf.Compile, so it is a valid program when no
// error is returned. The same policy always yields the same program.
func BuildProgram(pol *Policy) ([]linux.BPFInstruction, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}

	p := bpf.NewProgramBuilder()
	ph := ValidateArchitectureAndJump(p, pol.Primary.Arch, pol.Compat.Arch, pol.BadArchAction)
	if err := AppendSection(p, &pol.Primary); err != nil {
		return nil, err
	}
	if err := SetArchitectureJumpTarget(p, ph, pol.Compat.Arch); err != nil {
		return nil, fmt.Errorf("jumping over section %s (%d instructions) to section %s: %w", pol.Primary.Name, pol.Primary.Len(), pol.Compat.Name, err)
	}
	if err := AppendSection(p, &pol.Compat); err != nil {
		return nil, err
	}

	instrs, err := p.Instructions()
	if err != nil {
		return nil, err
	}
	if _, err := bpf.Compile(instrs); err != nil {
		return nil, fmt.Errorf("invalid program of %d instructions: %w", len(instrs), err)
	}
	return instrs, nil
}

// Evaluate runs the program against the given system call and returns the
// action the kernel would take.
func Evaluate(instrs []linux.BPFInstruction, data linux.SeccompData) (linux.BPFAction, error) {
	prog, err := bpf.Compile(instrs)
	if err != nil {
		return 0, err
	}
	ret, err := bpf.Exec(prog, DataAsInput(data))
	if err != nil {
		return 0, err
	}
	return linux.BPFAction(ret), nil
}

// dumpProgram logs the decoded program at debug level.
func dumpProgram(instrs []linux.BPFInstruction) {
	if !log.IsLogging(log.Debug) {
		return
	}
	programStr, errDecode := bpf.DecodeInstructions(instrs)
	if errDecode != nil {
		programStr = fmt.Sprintf("Error: %v\n%s", errDecode, programStr)
	}
	log.Debugf("Seccomp program dump:\n%s", programStr)
}
