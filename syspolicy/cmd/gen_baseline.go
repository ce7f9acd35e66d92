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

	"github.com/google/subcommands"
	"gvisor.dev/syspolicy/pkg/log"
	"gvisor.dev/syspolicy/pkg/seccomp"
	"gvisor.dev/syspolicy/pkg/seccomp/policy"
	"gvisor.dev/syspolicy/syspolicy/cmd/util"
)

// GenBaseline implements subcommands.Command for the "gen-baseline" command.
type GenBaseline struct {
	arch   string
	output string
}

// Name implements subcommands.Command.Name.
func (*GenBaseline) Name() string {
	return "gen-baseline"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*GenBaseline) Synopsis() string {
	return "Write a baseline allowing the given system calls."
}

// Usage implements subcommands.Command.Usage.
func (*GenBaseline) Usage() string {
	return `gen-baseline -arch <arch> -o <file> <syscall>... - Write a baseline allowing the given system calls.

The file holds raw struct sock_filter and can be referenced by the baseline
key of a policy section of the same architecture.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (g *GenBaseline) SetFlags(f *flag.FlagSet) {
	f.StringVar(&g.arch, "arch", "", "architecture the system call names are resolved for.")
	f.StringVar(&g.output, "o", "", "file to write to.")
}

// Execute implements subcommands.Command.Execute.
func (g *GenBaseline) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 || g.arch == "" || g.output == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	n, err := genBaseline(g.arch, g.output, f.Args())
	if err != nil {
		return util.Errorf("%v", err)
	}
	log.Infof("Wrote baseline of %d instructions for %d system calls to %q", n, f.NArg(), g.output)
	return subcommands.ExitSuccess
}

// genBaseline writes the baseline for names on the named architecture and
// returns its length.
func genBaseline(archName, output string, names []string) (int, error) {
	a, err := policy.ArchByName(archName)
	if err != nil {
		return 0, err
	}
	nrs, err := policy.LookupAll(a, names)
	if err != nil {
		return 0, err
	}
	insns, err := seccomp.BuildBaseline(nrs)
	if err != nil {
		return 0, err
	}
	if err := policy.WriteBaseline(output, insns); err != nil {
		return 0, err
	}
	return len(insns), nil
}
