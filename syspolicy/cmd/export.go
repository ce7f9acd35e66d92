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
	"encoding/json"
	"flag"

	"github.com/google/subcommands"
	"gvisor.dev/syspolicy/pkg/seccomp/policy"
	"gvisor.dev/syspolicy/syspolicy/cmd/util"
	"gvisor.dev/syspolicy/syspolicy/config"
)

// Export implements subcommands.Command for the "export" command.
type Export struct {
	output string
	strict bool
}

// Name implements subcommands.Command.Name.
func (*Export) Name() string {
	return "export"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Export) Synopsis() string {
	return "Print the policy as an OCI seccomp profile."
}

// Usage implements subcommands.Command.Usage.
func (*Export) Usage() string {
	return `export [-o <file>] - Print the policy as an OCI seccomp profile.

The profile is the JSON form of the runtime spec's linux.seccomp object.
It has no per-architecture rules, so only system calls allowed under both
architectures are exported. Baselines have no equivalent there and are not
exported either. Each omission is logged as a warning.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (e *Export) SetFlags(f *flag.FlagSet) {
	f.StringVar(&e.output, "o", "", "file to write to. Defaults to stdout.")
	f.BoolVar(&e.strict, "strict", false, "fail if the profile can't express the whole policy.")
}

// Execute implements subcommands.Command.Execute.
func (e *Export) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	pol, err := loadPolicy(conf)
	if err != nil {
		return util.Errorf("Loading policy: %v", err)
	}
	profile, warnings, err := policy.ToOCI(pol)
	if err != nil {
		return util.Errorf("Converting policy: %v", err)
	}
	if e.strict && len(warnings) > 0 {
		return util.Errorf("Profile differs from the policy in %d ways, see warnings", len(warnings))
	}
	b, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return util.Errorf("Marshalling profile: %v", err)
	}
	if err := writeOutput(e.output, append(b, '\n')); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}
