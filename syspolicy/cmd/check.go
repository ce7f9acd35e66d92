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

package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/seccomp"
	"gvisor.dev/syspolicy/pkg/seccomp/policy"
	"gvisor.dev/syspolicy/syspolicy/cmd/util"
	"gvisor.dev/syspolicy/syspolicy/config"
)

// Check implements subcommands.Command for the "check" command.
type Check struct {
	arch string
	nr   int64
	name string
}

// Name implements subcommands.Command.Name.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string {
	return "Print the action the filter takes for a system call."
}

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string {
	return `check [-arch <arch>] (-nr <number> | -name <syscall>) - Print the action the filter takes for a system call.

The program is run in an interpreter, nothing is installed.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Check) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.arch, "arch", "", "architecture the system call is made under. Defaults to the policy's primary architecture.")
	f.Int64Var(&c.nr, "nr", -1, "system call number.")
	f.StringVar(&c.name, "name", "", "system call name, resolved for the architecture.")
}

// Execute implements subcommands.Command.Execute.
func (c *Check) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || (c.nr < 0) == (c.name == "") {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	pol, instrs, err := buildProgram(conf)
	if err != nil {
		return util.Errorf("Building program: %v", err)
	}
	line, err := checkSyscall(pol, instrs, c.arch, c.nr, c.name)
	if err != nil {
		return util.Errorf("%v", err)
	}
	fmt.Println(line)
	return subcommands.ExitSuccess
}

// checkSyscall evaluates instrs for one system call and describes the
// result. Either nr is non-negative or name is set.
func checkSyscall(pol *seccomp.Policy, instrs []linux.BPFInstruction, archName string, nr int64, name string) (string, error) {
	var (
		a   policy.Arch
		err error
	)
	if archName == "" {
		a, err = policy.ArchByAudit(pol.Primary.Arch)
	} else {
		a, err = policy.ArchByName(archName)
	}
	if err != nil {
		return "", err
	}

	var sysno uint32
	if name != "" {
		if sysno, err = policy.Lookup(a, name); err != nil {
			return "", err
		}
	} else {
		if nr > int64(^uint32(0)) {
			return "", fmt.Errorf("system call number %d out of range", nr)
		}
		sysno = uint32(nr)
		name = policy.NameOf(a, sysno)
	}

	action, err := seccomp.Evaluate(instrs, linux.SeccompData{
		Nr:   int32(sysno),
		Arch: a.Audit,
	})
	if err != nil {
		return "", fmt.Errorf("evaluating program: %w", err)
	}
	if name == "" {
		name = "?"
	}
	return fmt.Sprintf("%s %s (%d): %v", a.Name, name, sysno, action), nil
}
