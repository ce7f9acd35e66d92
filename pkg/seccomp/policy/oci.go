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
	"fmt"
	"sort"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/log"
	"gvisor.dev/syspolicy/pkg/seccomp"
)

// ociAction converts an action to its OCI name, and its errno if it has one.
func ociAction(a linux.BPFAction) (specs.LinuxSeccompAction, *uint, error) {
	switch a & linux.SECCOMP_RET_ACTION_FULL {
	case linux.SECCOMP_RET_ALLOW:
		return specs.ActAllow, nil, nil
	case linux.SECCOMP_RET_TRAP:
		return specs.ActTrap, nil, nil
	case linux.SECCOMP_RET_KILL_THREAD:
		return specs.ActKillThread, nil, nil
	case linux.SECCOMP_RET_KILL_PROCESS:
		return specs.ActKillProcess, nil, nil
	case linux.SECCOMP_RET_ERRNO:
		errno := uint(a.Data())
		return specs.ActErrno, &errno, nil
	case linux.SECCOMP_RET_TRACE:
		return specs.ActTrace, nil, nil
	case linux.SECCOMP_RET_LOG:
		return specs.ActLog, nil, nil
	}
	return "", nil, fmt.Errorf("%w: action %v has no OCI equivalent", ErrInvalidPolicy, a)
}

// ToOCI exports the allow-lists of pol as an OCI seccomp profile, and returns
// warnings for what the profile can't express.
//
// Entries are named by their number on their architecture. OCI profiles name
// system calls independently of the architecture, so only names allowed under
// both architectures are exported: the profile never allows what the program
// traps. Names allowed under a single architecture, and baselines, are left
// out with a warning.
func ToOCI(pol *seccomp.Policy) (*specs.LinuxSeccomp, []string, error) {
	if pol.Primary.DefaultAction != pol.Compat.DefaultAction {
		return nil, nil, fmt.Errorf("%w: sections have different default actions (%v and %v)", ErrInvalidPolicy, pol.Primary.DefaultAction, pol.Compat.DefaultAction)
	}
	def, errno, err := ociAction(pol.Primary.DefaultAction)
	if err != nil {
		return nil, nil, err
	}

	out := &specs.LinuxSeccomp{
		DefaultAction:   def,
		DefaultErrnoRet: errno,
	}
	var (
		warnings []string
		sections = []*seccomp.Section{&pol.Primary, &pol.Compat}
		allowed  = make([]map[string]bool, len(sections))
	)
	for i, s := range sections {
		a, err := ArchByAudit(s.Arch)
		if err != nil {
			return nil, nil, err
		}
		out.Architectures = append(out.Architectures, a.OCI)
		if len(s.Baseline) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s: baseline of %d instructions is not exported", s.Name, len(s.Baseline)))
		}
		allowed[i] = map[string]bool{}
		for _, e := range s.Allow {
			name := NameOf(a, e.Nr)
			if name == "" {
				return nil, nil, fmt.Errorf("%w: %s: system call %d has no name", ErrInvalidPolicy, s.Name, e.Nr)
			}
			if e.Name != "" && e.Name != name {
				warnings = append(warnings, fmt.Sprintf("%s: %s (%d) is exported as %s", s.Name, e.Name, e.Nr, name))
			}
			allowed[i][name] = true
		}
	}

	var names []string
	for i, s := range sections {
		other := allowed[len(sections)-1-i]
		var only []string
		for name := range allowed[i] {
			switch {
			case !other[name]:
				only = append(only, name)
			case i == 0:
				names = append(names, name)
			}
		}
		sort.Strings(only)
		for _, name := range only {
			warnings = append(warnings, fmt.Sprintf("%s: %s is only allowed on this architecture and is not exported", s.Name, name))
		}
	}
	for _, w := range warnings {
		log.Warningf("%s", w)
	}

	sort.Strings(names)
	if len(names) > 0 {
		out.Syscalls = []specs.LinuxSyscall{{
			Names:  names,
			Action: specs.ActAllow,
		}}
	}
	return out, warnings, nil
}
