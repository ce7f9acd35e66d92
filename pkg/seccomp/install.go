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

package seccomp

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/log"
)

// ErrAlreadyInstalled is returned by SetPolicy once a policy was installed.
var ErrAlreadyInstalled = errors.New("a seccomp policy is already installed")

// InstallOptions controls how a filter is handed to the kernel.
type InstallOptions struct {
	// NoNewPrivs sets PR_SET_NO_NEW_PRIVS first. Without it, installing a
	// filter requires CAP_SYS_ADMIN.
	NoNewPrivs bool

	// TSync installs the filter with seccomp(2) and
	// SECCOMP_FILTER_FLAG_TSYNC, applying it to every thread of the
	// process. Otherwise prctl(PR_SET_SECCOMP) applies it to the calling
	// thread only, and to threads it creates afterwards: the rest of a Go
	// process stays unfiltered.
	TSync bool
}

// DefaultInstallOptions returns the options used by SetPolicy callers that
// have no preference. The filter applies to the whole process.
func DefaultInstallOptions() InstallOptions {
	return InstallOptions{NoNewPrivs: true, TSync: true}
}

// Installer hands a program to the kernel.
type Installer interface {
	Install(instrs []linux.BPFInstruction, opts InstallOptions) error
}

// KernelInstaller installs programs with SetFilter.
type KernelInstaller struct{}

// Install implements Installer.Install.
func (KernelInstaller) Install(instrs []linux.BPFInstruction, opts InstallOptions) error {
	return SetFilter(instrs, opts)
}

// Terminator is called by MustSetPolicy when installation fails.
type Terminator interface {
	Terminate(err error)
}

// TerminatorFunc adapts a function to the Terminator interface.
type TerminatorFunc func(err error)

// Terminate implements Terminator.Terminate.
func (f TerminatorFunc) Terminate(err error) {
	f(err)
}

// ExitTerminator logs the error and exits the process with status 1.
type ExitTerminator struct{}

// Terminate implements Terminator.Terminate.
func (ExitTerminator) Terminate(err error) {
	log.Warningf("Failed to set seccomp policy - killing: %v", err)
	os.Exit(1)
}

// Loader builds and installs at most one policy.
type Loader struct {
	// Installer is used to install the program.
	Installer Installer

	// mu protects installed.
	mu        sync.Mutex
	installed bool
}

// NewLoader returns a Loader using inst.
func NewLoader(inst Installer) *Loader {
	return &Loader{Installer: inst}
}

// SetPolicy builds the program for pol and installs it. Once it succeeds,
// further calls return ErrAlreadyInstalled without building anything.
//
// Errors building the program are returned before any kernel call.
func (l *Loader) SetPolicy(pol *Policy, opts InstallOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.installed {
		return ErrAlreadyInstalled
	}

	log.Infof("Installing seccomp filter for %s (%d syscalls) and %s (%d syscalls), bad arch action %v",
		pol.Primary.Name, len(pol.Primary.Allow), pol.Compat.Name, len(pol.Compat.Allow), pol.BadArchAction)
	instrs, err := BuildProgram(pol)
	if err != nil {
		return fmt.Errorf("building seccomp program: %w", err)
	}
	dumpProgram(instrs)

	if err := l.Installer.Install(instrs, opts); err != nil {
		return fmt.Errorf("installing seccomp filter of size %d: %w", len(instrs), err)
	}
	l.installed = true
	if opts.TSync {
		log.Infof("Seccomp: global filter of size %d installed", len(instrs))
	} else {
		log.Infof("Seccomp: filter of size %d installed on the calling thread only", len(instrs))
	}
	return nil
}

// MustSetPolicy is like SetPolicy, but passes any error to term.
func (l *Loader) MustSetPolicy(pol *Policy, opts InstallOptions, term Terminator) {
	if err := l.SetPolicy(pol, opts); err != nil {
		term.Terminate(err)
	}
}

// processLoader installs policies into the current process.
var processLoader = NewLoader(KernelInstaller{})

// SetPolicy builds the program for pol and installs it into the current
// process. See Loader.SetPolicy.
func SetPolicy(pol *Policy, opts InstallOptions) error {
	return processLoader.SetPolicy(pol, opts)
}

// MustSetPolicy is like SetPolicy, but passes any error to term. Callers that
// cannot run unfiltered pass ExitTerminator{}.
func MustSetPolicy(pol *Policy, opts InstallOptions, term Terminator) {
	processLoader.MustSetPolicy(pol, opts, term)
}
