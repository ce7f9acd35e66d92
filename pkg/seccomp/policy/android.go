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

package policy

import (
	"github.com/mohae/deepcopy"
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/seccomp"
)

// arm64Allow is allowed on arm64 on top of the baseline, in filter order.
var arm64Allow = []seccomp.AllowEntry{
	// Boot.
	{Name: "pivot_root", Nr: 41},
	{Name: "ioprio_get", Nr: 31},
	{Name: "ioprio_set", Nr: 30},
	{Name: "gettid", Nr: 178},
	{Name: "futex", Nr: 98},
	{Name: "clone", Nr: 220},
	{Name: "rt_sigreturn", Nr: 139},
	{Name: "rt_tgsigqueueinfo", Nr: 240},
	{Name: "restart_syscall", Nr: 128},
	{Name: "getrandom", Nr: 278},

	// Profilers and tracers.
	{Name: "perf_event_open", Nr: 241},
	{Name: "tkill", Nr: 130},

	// Listed as fstatfs64, which is 267 on arm. On arm64 267 is syncfs, and
	// the number is what the filter allows.
	{Name: "syncfs", Nr: 267},
}

// armAllow is allowed on arm on top of the baseline, in filter order.
var armAllow = []seccomp.AllowEntry{
	// Boot.
	{Name: "clone", Nr: 120},
	{Name: "futex", Nr: 240},
	{Name: "sigreturn", Nr: 119},
	{Name: "rt_sigreturn", Nr: 173},
	{Name: "rt_tgsigqueueinfo", Nr: 363},
	{Name: "gettid", Nr: 224},

	// Browser startup.
	{Name: "seccomp", Nr: 383},
	{Name: "getrandom", Nr: 384},

	{Name: "vfork", Nr: 190},
	{Name: "tkill", Nr: 238},
	{Name: "restart_syscall", Nr: 0},
	{Name: "pipe", Nr: 42},
	{Name: "perf_event_open", Nr: 364},

	// Debuggers and sanitizers running 32-bit code.
	{Name: "access", Nr: 33},
	{Name: "stat64", Nr: 195},
	{Name: "open", Nr: 5},
	{Name: "getdents", Nr: 141},
	{Name: "getdents64", Nr: 217},
	{Name: "eventfd", Nr: 351},
	{Name: "epoll_wait", Nr: 252},
	{Name: "readlink", Nr: 85},
	{Name: "epoll_create", Nr: 250},
	{Name: "creat", Nr: 8},
	{Name: "unlink", Nr: 10},
	{Name: "lstat64", Nr: 196},
}

// Default returns a copy of the built-in arm64 policy with arm compat.
// Anything not in the allow-lists traps, under either architecture.
//
// The built-in policy has no baselines: they are generated for a given
// platform and come from policy files.
func Default() *seccomp.Policy {
	return deepcopy.Copy(builtin).(*seccomp.Policy)
}

var builtin = &seccomp.Policy{
	Primary: seccomp.Section{
		Name:          ARM64.Name,
		Arch:          ARM64.Audit,
		Allow:         arm64Allow,
		DefaultAction: linux.SECCOMP_RET_TRAP,
	},
	Compat: seccomp.Section{
		Name:          ARM.Name,
		Arch:          ARM.Audit,
		Allow:         armAllow,
		DefaultAction: linux.SECCOMP_RET_TRAP,
	},
	BadArchAction: linux.SECCOMP_RET_TRAP,
}

// X86 returns the built-in policy translated to amd64 with 386 compat, for
// hosts of that architecture. Entries are translated by name; names the
// target architecture lacks are dropped.
func X86() (*seccomp.Policy, error) {
	return Translate(Default(), AMD64)
}

// Translate returns pol with its allow-lists translated to the given primary
// architecture and its compat architecture. Each entry is named by its number
// on its own architecture, then looked up by that name on the target.
// Baselines are specific to an architecture and are not carried over.
func Translate(pol *seccomp.Policy, primary Arch) (*seccomp.Policy, error) {
	compat, err := CompatOf(primary)
	if err != nil {
		return nil, err
	}
	out := &seccomp.Policy{BadArchAction: pol.BadArchAction}
	for _, t := range []struct {
		from *seccomp.Section
		to   *seccomp.Section
		arch Arch
	}{
		{&pol.Primary, &out.Primary, primary},
		{&pol.Compat, &out.Compat, compat},
	} {
		from, err := ArchByAudit(t.from.Arch)
		if err != nil {
			return nil, err
		}
		allow, err := translateEntries(t.from.Allow, from, t.arch)
		if err != nil {
			return nil, err
		}
		*t.to = seccomp.Section{
			Name:          t.arch.Name,
			Arch:          t.arch.Audit,
			Allow:         allow,
			DefaultAction: t.from.DefaultAction,
		}
	}
	return out, nil
}
