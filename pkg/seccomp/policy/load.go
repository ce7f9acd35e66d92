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
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/bpf"
	"gvisor.dev/syspolicy/pkg/seccomp"
)

// File is the on-disk form of a policy, in TOML or YAML:
//
//	bad_arch_action = "trap"
//
//	[primary]
//	arch = "arm64"
//	default_action = "trap"
//	baseline = "arm64.bpf"
//	allow = [
//	  { name = "futex", nr = 98 },
//	  { name = "clone" },
//	]
//
//	[compat]
//	arch = "arm"
//	baseline_syscalls = ["read", "write"]
type File struct {
	// BadArchAction defaults to "trap".
	BadArchAction string `toml:"bad_arch_action" yaml:"bad_arch_action"`

	Primary SectionFile `toml:"primary" yaml:"primary"`
	Compat  SectionFile `toml:"compat" yaml:"compat"`
}

// SectionFile is the on-disk form of a section.
type SectionFile struct {
	// Arch is a GOARCH name. The compat architecture defaults to the one
	// matching the primary architecture.
	Arch string `toml:"arch" yaml:"arch"`

	// DefaultAction defaults to "trap".
	DefaultAction string `toml:"default_action" yaml:"default_action"`

	// Baseline is a file of raw little-endian struct sock_filter, relative
	// to the policy file.
	Baseline string `toml:"baseline" yaml:"baseline"`

	// BaselineSyscalls are allowed by a generated baseline, emitted after
	// the one read from Baseline.
	BaselineSyscalls []string `toml:"baseline_syscalls" yaml:"baseline_syscalls"`

	Allow []Entry `toml:"allow" yaml:"allow"`
}

// Decode parses a policy file's content. The format is picked from the
// file name's extension.
func Decode(name string, data []byte) (*File, error) {
	var f File
	switch ext := filepath.Ext(name); ext {
	case ".toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, name, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: %s: unknown keys %v", ErrInvalidPolicy, name, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s: unsupported extension %q, want .toml, .yaml or .yml", ErrInvalidPolicy, name, ext)
	}
	return &f, nil
}

// Load reads and resolves a policy file. Warnings about entries that
// disagree with the system call tables are returned along with the policy.
func Load(path string) (*seccomp.Policy, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := Decode(path, data)
	if err != nil {
		return nil, nil, err
	}
	return f.Policy(filepath.Dir(path))
}

// Policy resolves f into a policy. Baseline files are read relative to dir.
func (f *File) Policy(dir string) (*seccomp.Policy, []string, error) {
	badArch, err := actionOrTrap(f.BadArchAction)
	if err != nil {
		return nil, nil, err
	}
	if f.Primary.Arch == "" {
		return nil, nil, fmt.Errorf("%w: primary architecture is required", ErrInvalidPolicy)
	}
	primaryArch, err := ArchByName(f.Primary.Arch)
	if err != nil {
		return nil, nil, err
	}
	compatArch, err := ArchByName(f.Compat.Arch)
	if f.Compat.Arch == "" {
		compatArch, err = CompatOf(primaryArch)
	}
	if err != nil {
		return nil, nil, err
	}

	pol := &seccomp.Policy{BadArchAction: badArch}
	var warnings []string
	for _, s := range []struct {
		file *SectionFile
		arch Arch
		out  *seccomp.Section
	}{
		{&f.Primary, primaryArch, &pol.Primary},
		{&f.Compat, compatArch, &pol.Compat},
	} {
		w, err := s.file.section(s.arch, dir, s.out)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
	}
	if err := pol.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return pol, warnings, nil
}

func (s *SectionFile) section(a Arch, dir string, out *seccomp.Section) ([]string, error) {
	def, err := actionOrTrap(s.DefaultAction)
	if err != nil {
		return nil, err
	}
	var baseline []linux.BPFInstruction
	if s.Baseline != "" {
		path := s.Baseline
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		baseline, err = ReadBaseline(path)
		if err != nil {
			return nil, err
		}
	}
	if len(s.BaselineSyscalls) > 0 {
		nrs, err := LookupAll(a, s.BaselineSyscalls)
		if err != nil {
			return nil, err
		}
		generated, err := seccomp.BuildBaseline(nrs)
		if err != nil {
			return nil, err
		}
		baseline = append(baseline, generated...)
	}
	allow, warnings, err := Resolve(a, s.Allow)
	if err != nil {
		return nil, err
	}
	*out = seccomp.Section{
		Name:          a.Name,
		Arch:          a.Audit,
		Baseline:      baseline,
		Allow:         allow,
		DefaultAction: def,
	}
	return warnings, nil
}

func actionOrTrap(s string) (linux.BPFAction, error) {
	if s == "" {
		return linux.SECCOMP_RET_TRAP, nil
	}
	return ParseAction(s)
}

// ReadBaseline reads a baseline bytecode file and checks that its jumps stay
// within the baseline.
func ReadBaseline(path string) ([]linux.BPFInstruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	insns, err := bpf.ParseBytecode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline %s: %v", ErrInvalidPolicy, path, err)
	}
	if err := bpf.ValidateFragment(insns); err != nil {
		return nil, fmt.Errorf("%w: baseline %s: %v", ErrInvalidPolicy, path, err)
	}
	return insns, nil
}

// WriteBaseline writes a baseline bytecode file.
func WriteBaseline(path string, insns []linux.BPFInstruction) error {
	return os.WriteFile(path, bpf.InstructionsToBytecode(insns), 0644)
}
