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
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/bpf"
)

// ValidateArchitectureAndJump emits the architecture dispatcher, which must
// start the program:
//
//	0: A <- seccomp_data.arch
//	1: (A == primary) ? goto 4 : continue
//	2: (A == compat) ? goto <compat section> : continue
//	3: ret badArch
//
// The primary section must be emitted right after. Instruction 2 is a
// placeholder: until SetArchitectureJumpTarget patches it, compat system calls
// get badArch too.
func ValidateArchitectureAndJump(p *bpf.ProgramBuilder, primary, compat uint32, badArch linux.BPFAction) bpf.Placeholder {
	ExamineArch(p)
	p.AddJump(bpf.Jmp|bpf.Jeq|bpf.K, primary, 2, 0)
	ph := p.AddPlaceholder(bpf.Jmp|bpf.Jeq|bpf.K, compat, 0, 0)
	Return(p, badArch)
	return ph
}

// SetArchitectureJumpTarget makes the placeholder returned by
// ValidateArchitectureAndJump jump to the next instruction to be emitted,
// which must be the first instruction of the compat section.
//
// A conditional jump can skip at most bpf.MaxJumpOffset instructions, so this
// fails with a *bpf.JumpOffsetError if the dispatcher and primary section
// together are too long. The program must not be installed in that case.
func SetArchitectureJumpTarget(p *bpf.ProgramBuilder, ph bpf.Placeholder, compat uint32) error {
	return p.PatchJumpTrue(ph, bpf.Jmp|bpf.Jeq|bpf.K, compat, 0)
}
