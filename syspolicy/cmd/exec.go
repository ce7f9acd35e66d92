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
	"os"
	"os/exec"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/log"
	"gvisor.dev/syspolicy/pkg/seccomp"
	"gvisor.dev/syspolicy/syspolicy/cmd/util"
	"gvisor.dev/syspolicy/syspolicy/config"
)

// Exec implements subcommands.Command for the "exec" command.
type Exec struct{}

// Name implements subcommands.Command.Name.
func (*Exec) Name() string {
	return "exec"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Exec) Synopsis() string {
	return "Install the filter and execute a command under it."
}

// Usage implements subcommands.Command.Usage.
func (*Exec) Usage() string {
	return `exec -- <command> [args...] - Install the filter and execute a command under it.

The process is killed if the filter cannot be installed. The policy must
allow execve and whatever the command needs until it runs.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Exec) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Exec) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	pol, err := loadPolicy(conf)
	if err != nil {
		return util.Errorf("Loading policy: %v", err)
	}
	if hasKillProcess(pol) {
		avail, err := seccomp.KillProcessAvailable()
		if err != nil {
			return util.Errorf("Checking for SECCOMP_RET_KILL_PROCESS: %v", err)
		}
		if !avail {
			log.Warningf("SECCOMP_RET_KILL_PROCESS not supported by the kernel, using SECCOMP_RET_TRAP instead")
			replaceKillProcess(pol, linux.SECCOMP_RET_TRAP)
		}
	}

	// Resolve before the filter is in place.
	argv := f.Args()
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return util.Errorf("%v", err)
	}
	env := os.Environ()

	// Stay on the filtered thread until execve: without TSYNC it is the only
	// one. Never unlocked.
	runtime.LockOSThread()
	seccomp.MustSetPolicy(pol, conf.InstallOptions(), seccomp.ExitTerminator{})

	err = unix.Exec(path, argv, env)
	util.Fatalf("error executing %s: %v", path, err)
	panic("unreachable")
}

func hasKillProcess(pol *seccomp.Policy) bool {
	for _, a := range []linux.BPFAction{pol.BadArchAction, pol.Primary.DefaultAction, pol.Compat.DefaultAction} {
		if a == linux.SECCOMP_RET_KILL_PROCESS {
			return true
		}
	}
	return false
}

// replaceKillProcess replaces every SECCOMP_RET_KILL_PROCESS action of pol
// with action.
func replaceKillProcess(pol *seccomp.Policy, action linux.BPFAction) {
	for _, a := range []*linux.BPFAction{&pol.BadArchAction, &pol.Primary.DefaultAction, &pol.Compat.DefaultAction} {
		if *a == linux.SECCOMP_RET_KILL_PROCESS {
			*a = action
		}
	}
}
