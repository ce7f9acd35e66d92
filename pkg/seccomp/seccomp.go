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

// Package seccomp builds and installs seccomp-bpf filters for processes that
// issue system calls under two architectures: a native 64-bit one and a
// 32-bit compat one. Each architecture gets its own section of the program,
// made of a generated baseline followed by an explicit allow-list.
//
// Only little endian systems are supported.
package seccomp

import (
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/bpf"
)

// Return emits a return of the given action.
func Return(p *bpf.ProgramBuilder, action linux.BPFAction) {
	p.AddStmt(bpf.Ret|bpf.K, uint32(action))
}

// Allow emits a return that lets the system call run.
func Allow(p *bpf.ProgramBuilder) {
	Return(p, linux.SECCOMP_RET_ALLOW)
}

// Trap emits a return that raises SIGSYS in the calling thread.
func Trap(p *bpf.ProgramBuilder) {
	Return(p, linux.SECCOMP_RET_TRAP)
}

// Kill emits a return that kills the calling thread.
func Kill(p *bpf.ProgramBuilder) {
	Return(p, linux.SECCOMP_RET_KILL_THREAD)
}

// KillProcess emits a return that kills the whole process.
func KillProcess(p *bpf.ProgramBuilder) {
	Return(p, linux.SECCOMP_RET_KILL_PROCESS)
}

// Errno emits a return that fails the system call with the given errno.
func Errno(p *bpf.ProgramBuilder, code uint16) {
	Return(p, linux.SECCOMP_RET_ERRNO|linux.BPFAction(code))
}

// Trace emits a return that notifies a ptrace tracer, passing it code.
func Trace(p *bpf.ProgramBuilder, code uint16) {
	Return(p, linux.SECCOMP_RET_TRACE|linux.BPFAction(code))
}

// Log emits a return that logs and then allows the system call.
func Log(p *bpf.ProgramBuilder) {
	Return(p, linux.SECCOMP_RET_LOG)
}

// ExamineSyscall loads seccomp_data.nr into A.
func ExamineSyscall(p *bpf.ProgramBuilder) {
	p.AddStmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetNR)
}

// ExamineArch loads seccomp_data.arch into A.
func ExamineArch(p *bpf.ProgramBuilder) {
	p.AddStmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetArch)
}

// AllowSyscall emits a check that allows sysno, assuming A holds the system
// call number. Other numbers fall through to whatever is emitted next.
//
//	(A == sysno) ? continue : skip 1
//	ret ALLOW
func AllowSyscall(p *bpf.ProgramBuilder, sysno uint32) {
	p.AddJump(bpf.Jmp|bpf.Jeq|bpf.K, sysno, 0, 1)
	Allow(p)
}

// isAllow returns true if the action lets the system call run.
func isAllow(action linux.BPFAction) bool {
	return action&linux.SECCOMP_RET_ACTION_FULL == linux.SECCOMP_RET_ALLOW
}
