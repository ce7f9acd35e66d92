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
	"fmt"
	"strconv"
	"strings"

	"gvisor.dev/syspolicy/pkg/abi/linux"
)

// ParseAction parses an action name. Actions that carry data take it after a
// colon, e.g. "errno:1" or "trace:7".
func ParseAction(s string) (linux.BPFAction, error) {
	name, data, hasData := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	var action linux.BPFAction
	switch name {
	case "allow":
		action = linux.SECCOMP_RET_ALLOW
	case "trap":
		action = linux.SECCOMP_RET_TRAP
	case "kill", "kill-thread":
		action = linux.SECCOMP_RET_KILL_THREAD
	case "kill-process":
		action = linux.SECCOMP_RET_KILL_PROCESS
	case "errno":
		action = linux.SECCOMP_RET_ERRNO
	case "trace":
		action = linux.SECCOMP_RET_TRACE
	case "log":
		action = linux.SECCOMP_RET_LOG
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidPolicy, s)
	}
	if !hasData {
		return action, nil
	}
	code, err := strconv.ParseUint(data, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: action %q: %v", ErrInvalidPolicy, s, err)
	}
	action, err = action.WithReturnCode(uint16(code))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return action, nil
}

// FormatAction is the inverse of ParseAction.
func FormatAction(a linux.BPFAction) string {
	switch a & linux.SECCOMP_RET_ACTION_FULL {
	case linux.SECCOMP_RET_ALLOW:
		return "allow"
	case linux.SECCOMP_RET_TRAP:
		if a.Data() != 0 {
			return fmt.Sprintf("trap:%d", a.Data())
		}
		return "trap"
	case linux.SECCOMP_RET_KILL_THREAD:
		return "kill-thread"
	case linux.SECCOMP_RET_KILL_PROCESS:
		return "kill-process"
	case linux.SECCOMP_RET_ERRNO:
		return fmt.Sprintf("errno:%d", a.Data())
	case linux.SECCOMP_RET_TRACE:
		return fmt.Sprintf("trace:%d", a.Data())
	case linux.SECCOMP_RET_LOG:
		return "log"
	}
	return fmt.Sprintf("%#x", uint32(a))
}
