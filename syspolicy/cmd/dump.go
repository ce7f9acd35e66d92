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
	"os"

	"github.com/google/subcommands"
	"golang.org/x/term"
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/bpf"
	"gvisor.dev/syspolicy/syspolicy/cmd/util"
	"gvisor.dev/syspolicy/syspolicy/config"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct {
	format string
	output string
}

// Name implements subcommands.Command.Name.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Dump) Synopsis() string {
	return "Print the filter program built from the policy."
}

// Usage implements subcommands.Command.Usage.
func (*Dump) Usage() string {
	return `dump [options] - Print the filter program built from the policy.

Formats:
  fancy     decoded instructions, annotated with the action of each return
  plain     decoded instructions
  bytecode  raw struct sock_filter array, as handed to the kernel
  asm       golang.org/x/net/bpf assembler syntax
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Dump) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.format, "format", "fancy", "output format: fancy, plain, bytecode, asm.")
	f.StringVar(&d.output, "o", "", "file to write to. Defaults to stdout.")
}

// Execute implements subcommands.Command.Execute.
func (d *Dump) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if d.format == "bytecode" && d.output == "" && term.IsTerminal(int(os.Stdout.Fd())) {
		return util.Errorf("Refusing to write bytecode to a terminal, use -o")
	}

	_, instrs, err := buildProgram(conf)
	if err != nil {
		return util.Errorf("Building program: %v", err)
	}
	out, err := formatProgram(instrs, d.format)
	if err != nil {
		return util.Errorf("%v", err)
	}
	if err := writeOutput(d.output, out); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

// formatProgram renders instrs in the given dump format.
func formatProgram(instrs []linux.BPFInstruction, format string) ([]byte, error) {
	var (
		s   string
		err error
	)
	switch format {
	case "fancy":
		s, err = bpf.DecodeInstructions(instrs)
	case "plain":
		s, err = bpf.DecodeProgram(instrs)
	case "asm":
		s, err = bpf.Disassemble(instrs)
	case "bytecode":
		return bpf.InstructionsToBytecode(instrs), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding program: %w", err)
	}
	return []byte(s), nil
}
