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
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/syspolicy/pkg/log"
	"gvisor.dev/syspolicy/pkg/seccomp"
	"gvisor.dev/syspolicy/pkg/seccomp/policy"
)

// Vet implements subcommands.Command for the "vet" command.
type Vet struct {
	strict bool
}

// Name implements subcommands.Command.Name.
func (*Vet) Name() string {
	return "vet"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Vet) Synopsis() string {
	return "Check that policy files load and build."
}

// Usage implements subcommands.Command.Usage.
func (*Vet) Usage() string {
	return `vet [-strict] <policy file>... - Check that policy files load and build.

Each file is loaded, its entries resolved, and its program built and
validated. Warnings are printed; they fail the check with -strict.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (v *Vet) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&v.strict, "strict", false, "treat warnings as errors.")
}

// Execute implements subcommands.Command.Execute.
func (v *Vet) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	results, err := vetFiles(ctx, f.Args())
	if err != nil {
		log.Warningf("Vet interrupted: %v", err)
		return subcommands.ExitFailure
	}
	if !printResults(os.Stdout, results, v.strict) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// vetResult is the outcome of vetting one policy file.
type vetResult struct {
	path     string
	size     int
	warnings []string
	err      error
}

// vetFiles loads and builds every file concurrently. Results are in the order
// of paths. Only cancellation of ctx is returned as an error: problems with a
// file are reported in its result.
func vetFiles(ctx context.Context, paths []string) ([]vetResult, error) {
	results := make([]vetResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = vetFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func vetFile(path string) vetResult {
	r := vetResult{path: path}
	pol, warnings, err := policy.Load(path)
	r.warnings = warnings
	if err != nil {
		r.err = err
		return r
	}
	instrs, err := seccomp.BuildProgram(pol)
	if err != nil {
		r.err = err
		return r
	}
	r.size = len(instrs)
	return r
}

// printResults writes one report per file and returns whether all passed.
func printResults(w io.Writer, results []vetResult, strict bool) bool {
	ok := true
	for _, r := range results {
		for _, warning := range r.warnings {
			fmt.Fprintf(w, "%s: warning: %s\n", r.path, warning)
		}
		switch {
		case r.err != nil:
			fmt.Fprintf(w, "%s: error: %v\n", r.path, r.err)
			ok = false
		case strict && len(r.warnings) > 0:
			fmt.Fprintf(w, "%s: failed, %d warnings\n", r.path, len(r.warnings))
			ok = false
		default:
			fmt.Fprintf(w, "%s: ok, %d instructions\n", r.path, r.size)
		}
	}
	return ok
}
