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
	"sort"
	"time"

	"github.com/elastic/go-seccomp-bpf/arch"
	"gvisor.dev/syspolicy/pkg/log"
	"gvisor.dev/syspolicy/pkg/seccomp"
)

// maxWarningBurst is the number of resolution warnings logged before they
// are rate limited. All of them are still returned to the caller.
const maxWarningBurst = 10

// Entry is an allow-list entry of a policy file. Either field may be omitted:
// a missing number is looked up by name, and a missing name is only used
// for logging.
type Entry struct {
	Name string  `toml:"name" yaml:"name"`
	Nr   *uint32 `toml:"nr" yaml:"nr"`
}

// syscallNames returns the name to number table of an architecture.
func syscallNames(a Arch) (map[string]int, error) {
	info, err := arch.GetInfo(a.Name)
	if err != nil {
		return nil, fmt.Errorf("no system call table for %s: %w", a.Name, err)
	}
	return info.SyscallNames, nil
}

// Lookup returns the number of the named system call on a.
func Lookup(a Arch, name string) (uint32, error) {
	names, err := syscallNames(a)
	if err != nil {
		return 0, err
	}
	nr, ok := names[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown system call %q on %s", ErrInvalidPolicy, name, a.Name)
	}
	return uint32(nr), nil
}

// LookupAll is like Lookup for a list of names.
func LookupAll(a Arch, names []string) ([]uint32, error) {
	nrs := make([]uint32, 0, len(names))
	for _, name := range names {
		nr, err := Lookup(a, name)
		if err != nil {
			return nil, err
		}
		nrs = append(nrs, nr)
	}
	return nrs, nil
}

// NameOf returns the name of system call nr on a, or "" if it is unknown.
// When several names share a number, the first in lexical order is returned.
func NameOf(a Arch, nr uint32) string {
	names, err := syscallNames(a)
	if err != nil {
		return ""
	}
	var found []string
	for name, n := range names {
		if n >= 0 && uint32(n) == nr {
			found = append(found, name)
		}
	}
	if len(found) == 0 {
		return ""
	}
	sort.Strings(found)
	return found[0]
}

// Resolve turns policy file entries into allow entries for a. Entries are
// kept in order; repeated numbers are dropped. It returns warnings for
// entries whose name and number disagree with the system call table, and
// fails if an entry has no number and its name is unknown.
func Resolve(a Arch, entries []Entry) ([]seccomp.AllowEntry, []string, error) {
	// A missing table only matters for entries without a number.
	names, tableErr := syscallNames(a)
	warn := log.NewLimitedLogger(log.Log(), time.Second, maxWarningBurst)

	var (
		allow    []seccomp.AllowEntry
		warnings []string
		seen     = map[uint32]string{}
	)
	addWarning := func(format string, v ...any) {
		msg := fmt.Sprintf(format, v...)
		warnings = append(warnings, msg)
		warn.Warningf("%s", msg)
	}
	for i, e := range entries {
		var nr uint32
		switch {
		case e.Nr != nil:
			nr = *e.Nr
			if e.Name == "" || names == nil {
				break
			}
			if known, ok := names[e.Name]; !ok {
				addWarning("%s: entry %d: %q is not a known system call", a.Name, i, e.Name)
			} else if uint32(known) != nr {
				addWarning("%s: entry %d: %q is %d, not %d", a.Name, i, e.Name, known, nr)
			}
		case e.Name == "":
			return nil, nil, fmt.Errorf("%w: %s: entry %d has neither a name nor a number", ErrInvalidPolicy, a.Name, i)
		case tableErr != nil:
			return nil, nil, fmt.Errorf("%w: %s: entry %d (%q) has no number: %v", ErrInvalidPolicy, a.Name, i, e.Name, tableErr)
		default:
			known, ok := names[e.Name]
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s: entry %d: unknown system call %q", ErrInvalidPolicy, a.Name, i, e.Name)
			}
			nr = uint32(known)
		}
		if prev, dup := seen[nr]; dup {
			addWarning("%s: entry %d: %d (%s) is already allowed as %s", a.Name, i, nr, e.Name, prev)
			continue
		}
		seen[nr] = e.Name
		allow = append(allow, seccomp.AllowEntry{Name: e.Name, Nr: nr})
	}
	if n := warn.Dropped(); n > 0 {
		log.Warningf("%s: %d more warnings not logged, %d in total", a.Name, n, len(warnings))
	}
	return allow, warnings, nil
}

// entryName returns the name of e's system call on a. The number is what a
// filter enforces, so it wins over e.Name; e.Name is only used for numbers a
// doesn't know.
func entryName(a Arch, e seccomp.AllowEntry) string {
	name := NameOf(a, e.Nr)
	if name == "" {
		return e.Name
	}
	if e.Name != "" && e.Name != name {
		log.Debugf("%s: %v is %s", a.Name, e, name)
	}
	return name
}

// translateEntries moves entries from one architecture to another by name.
// Entries whose system call the target lacks are dropped.
func translateEntries(entries []seccomp.AllowEntry, from, to Arch) ([]seccomp.AllowEntry, error) {
	names, err := syscallNames(to)
	if err != nil {
		return nil, err
	}
	var (
		out  []seccomp.AllowEntry
		seen = map[uint32]bool{}
	)
	for _, e := range entries {
		name := entryName(from, e)
		nr, ok := names[name]
		if !ok {
			log.Debugf("%s: dropping %v, no such system call", to.Name, e)
			continue
		}
		if seen[uint32(nr)] {
			continue
		}
		seen[uint32(nr)] = true
		out = append(out, seccomp.AllowEntry{Name: name, Nr: uint32(nr)})
	}
	return out, nil
}
