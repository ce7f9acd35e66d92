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

// Package policy provides the allow-lists that package seccomp turns into
// filters: the built-in tables, policy files and their resolution into
// system call numbers, and export to OCI seccomp profiles.
package policy

import (
	"errors"
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"gvisor.dev/syspolicy/pkg/abi/linux"
)

// ErrInvalidPolicy is wrapped by all errors caused by the content of a
// policy.
var ErrInvalidPolicy = errors.New("invalid policy")

// Arch describes an architecture a section can filter.
type Arch struct {
	// Name is the GOARCH name of the architecture.
	Name string

	// Audit is the AUDIT_ARCH_* value found in seccomp_data.arch.
	Audit uint32

	// OCI is the architecture's name in OCI seccomp profiles.
	OCI specs.Arch
}

// Known architectures.
var (
	ARM64 = Arch{Name: "arm64", Audit: linux.AUDIT_ARCH_AARCH64, OCI: specs.ArchAARCH64}
	ARM   = Arch{Name: "arm", Audit: linux.AUDIT_ARCH_ARM, OCI: specs.ArchARM}
	AMD64 = Arch{Name: "amd64", Audit: linux.AUDIT_ARCH_X86_64, OCI: specs.ArchX86_64}
	I386  = Arch{Name: "386", Audit: linux.AUDIT_ARCH_I386, OCI: specs.ArchX86}
)

var archs = []Arch{ARM64, ARM, AMD64, I386}

// ArchByName returns the architecture with the given GOARCH name.
func ArchByName(name string) (Arch, error) {
	for _, a := range archs {
		if a.Name == name {
			return a, nil
		}
	}
	return Arch{}, fmt.Errorf("%w: unknown architecture %q", ErrInvalidPolicy, name)
}

// ArchByAudit returns the architecture with the given AUDIT_ARCH_* value.
func ArchByAudit(audit uint32) (Arch, error) {
	for _, a := range archs {
		if a.Audit == audit {
			return a, nil
		}
	}
	return Arch{}, fmt.Errorf("%w: unknown audit architecture %#x", ErrInvalidPolicy, audit)
}

// CompatOf returns the 32-bit compat architecture of a 64-bit one.
func CompatOf(a Arch) (Arch, error) {
	switch a {
	case ARM64:
		return ARM, nil
	case AMD64:
		return I386, nil
	}
	return Arch{}, fmt.Errorf("%w: %s has no compat architecture", ErrInvalidPolicy, a.Name)
}
