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

// Package cmd holds implementations of the syspolicy commands.
package cmd

import (
	"fmt"
	"os"

	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/log"
	"gvisor.dev/syspolicy/pkg/seccomp"
	"gvisor.dev/syspolicy/syspolicy/config"
)

// loadPolicy returns the configured policy, logging warnings raised while
// loading it.
func loadPolicy(conf *config.Config) (*seccomp.Policy, error) {
	pol, warnings, err := conf.Policy()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warningf("%s", w)
	}
	return pol, nil
}

// buildProgram loads the configured policy and builds its program.
func buildProgram(conf *config.Config) (*seccomp.Policy, []linux.BPFInstruction, error) {
	pol, err := loadPolicy(conf)
	if err != nil {
		return nil, nil, err
	}
	instrs, err := seccomp.BuildProgram(pol)
	if err != nil {
		return nil, nil, err
	}
	return pol, instrs, nil
}

// writeOutput writes data to the named file, or to stdout if name is empty.
func writeOutput(name string, data []byte) error {
	if name == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(name, data, 0644); err != nil {
		return fmt.Errorf("writing %q: %w", name, err)
	}
	return nil
}
