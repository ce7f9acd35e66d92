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
	"errors"
	"testing"

	"gvisor.dev/syspolicy/pkg/abi/linux"
)

func TestParseAction(t *testing.T) {
	for _, test := range []struct {
		in   string
		want linux.BPFAction
	}{
		{"allow", linux.SECCOMP_RET_ALLOW},
		{"trap", linux.SECCOMP_RET_TRAP},
		{"TRAP", linux.SECCOMP_RET_TRAP},
		{"kill", linux.SECCOMP_RET_KILL_THREAD},
		{"kill-thread", linux.SECCOMP_RET_KILL_THREAD},
		{"kill-process", linux.SECCOMP_RET_KILL_PROCESS},
		{"log", linux.SECCOMP_RET_LOG},
		{"errno:1", linux.SECCOMP_RET_ERRNO | 1},
		{"errno:0x26", linux.SECCOMP_RET_ERRNO | 0x26},
		{"trace:7", linux.SECCOMP_RET_TRACE | 7},
		{"trap:3", linux.SECCOMP_RET_TRAP | 3},
	} {
		got, err := ParseAction(test.in)
		if err != nil {
			t.Errorf("ParseAction(%q) failed: %v", test.in, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseAction(%q) = %v, want %v", test.in, got, test.want)
		}
		// Formatting and parsing again is stable.
		again, err := ParseAction(FormatAction(got))
		if err != nil || again != got {
			t.Errorf("ParseAction(FormatAction(%v)) = %v, %v", got, again, err)
		}
	}
}

func TestParseActionErrors(t *testing.T) {
	for _, in := range []string{"", "deny", "allow:1", "kill-process:2", "errno:", "errno:70000", "errno:x"} {
		if _, err := ParseAction(in); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("ParseAction(%q) = %v, want %v", in, err, ErrInvalidPolicy)
		}
	}
}
