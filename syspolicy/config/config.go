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

// Package config provides basic infrastructure to set configuration settings
// for syspolicy. Each setting that can be changed from the command line must
// be added to Config and a corresponding flag registered in flags.go.
package config

import (
	"fmt"
	"runtime"

	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/log"
	"gvisor.dev/syspolicy/pkg/seccomp"
	"gvisor.dev/syspolicy/pkg/seccomp/policy"
)

// Config holds configuration that is not part of the policy itself.
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFilename is the filename to log to, if not empty. %COMMAND% and
	// %TIMESTAMP% are replaced.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: text, json or json-k8s.
	LogFormat string `flag:"log-format"`

	// PolicyFile is the TOML or YAML policy to use. The built-in policy is
	// used when empty.
	PolicyFile string `flag:"policy"`

	// Arch is the primary architecture of the built-in policy. The host
	// architecture is used when empty. Ignored with PolicyFile.
	Arch string `flag:"arch"`

	// BadArchAction overrides the action taken for system calls made under
	// an architecture the policy doesn't filter.
	BadArchAction string `flag:"bad-arch-action"`

	// TSync installs the filter on all threads of the process.
	TSync bool `flag:"tsync"`

	// NoNewPrivs sets PR_SET_NO_NEW_PRIVS before installing the filter.
	NoNewPrivs bool `flag:"no-new-privs"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json", "json-k8s":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'json-k8s'", c.LogFormat)
	}
	if c.BadArchAction != "" {
		if _, err := c.badArchAction(); err != nil {
			return err
		}
	}
	if c.Arch != "" {
		if _, err := policy.ArchByName(c.Arch); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) badArchAction() (linux.BPFAction, error) {
	a, err := policy.ParseAction(c.BadArchAction)
	if err != nil {
		return 0, fmt.Errorf("invalid --bad-arch-action: %w", err)
	}
	return a, nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config: policy: %q, arch: %q, bad-arch-action: %q", c.PolicyFile, c.Arch, c.BadArchAction)
	log.Infof("Config: tsync: %t, no-new-privs: %t", c.TSync, c.NoNewPrivs)
	log.Infof("Config: debug: %t, log: %q, log-format: %s", c.Debug, c.LogFilename, c.LogFormat)
}

// InstallOptions returns the options used to install the filter.
func (c *Config) InstallOptions() seccomp.InstallOptions {
	return seccomp.InstallOptions{
		NoNewPrivs: c.NoNewPrivs,
		TSync:      c.TSync,
	}
}

// Policy returns the policy selected by the configuration, with the
// bad-arch-action override applied, and any warnings raised while loading it.
func (c *Config) Policy() (*seccomp.Policy, []string, error) {
	var (
		pol      *seccomp.Policy
		warnings []string
		err      error
	)
	if c.PolicyFile != "" {
		pol, warnings, err = policy.Load(c.PolicyFile)
	} else {
		pol, err = c.builtinPolicy()
	}
	if err != nil {
		return nil, nil, err
	}
	if c.BadArchAction != "" {
		a, err := c.badArchAction()
		if err != nil {
			return nil, nil, err
		}
		pol.BadArchAction = a
		if err := pol.Validate(); err != nil {
			return nil, nil, err
		}
	}
	return pol, warnings, nil
}

func (c *Config) builtinPolicy() (*seccomp.Policy, error) {
	name := c.Arch
	if name == "" {
		name = hostArch()
	}
	a, err := policy.ArchByName(name)
	if err != nil {
		return nil, err
	}
	switch a {
	case policy.ARM64, policy.ARM:
		return policy.Default(), nil
	case policy.I386:
		a = policy.AMD64
	}
	return policy.Translate(policy.Default(), a)
}

// hostArch returns the 64-bit architecture whose policy applies to the host.
func hostArch() string {
	switch runtime.GOARCH {
	case "amd64", "386":
		return policy.AMD64.Name
	}
	return policy.ARM64.Name
}
