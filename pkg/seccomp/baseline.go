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
	"fmt"

	"github.com/google/btree"
	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/bpf"
)

const (
	// baselineEndLabel is placed right after the last baseline instruction.
	baselineEndLabel = "baseline_end"

	// sysnoSetDegree is the degree of the tree holding system call numbers
	// while they are sorted and deduplicated.
	sysnoSetDegree = 8
)

// sysRange is an inclusive range of system call numbers.
type sysRange struct {
	lo, hi uint32
}

// node represents a tree node.
type node struct {
	value sysRange
	left  *node
	right *node
	root  bool
}

// label returns the label corresponding to this node.
//
// If n is nil, then baselineEndLabel is returned.
func (n *node) label() string {
	if n == nil {
		return baselineEndLabel
	}
	return fmt.Sprintf("range_%d_%d", n.value.lo, n.value.hi)
}

// coalesce sorts sysnos and merges consecutive numbers into ranges.
func coalesce(sysnos []uint32) []sysRange {
	set := btree.NewOrderedG[uint32](sysnoSetDegree)
	for _, nr := range sysnos {
		set.ReplaceOrInsert(nr)
	}

	var ranges []sysRange
	set.Ascend(func(nr uint32) bool {
		if n := len(ranges); n > 0 && nr == ranges[n-1].hi+1 {
			ranges[n-1].hi = nr
			return true
		}
		ranges = append(ranges, sysRange{lo: nr, hi: nr})
		return true
	})
	return ranges
}

// createBST converts a sorted range slice into a balanced BST.
// Panics if ranges is empty.
func createBST(ranges []sysRange) *node {
	i := len(ranges) / 2
	parent := node{value: ranges[i]}
	if i > 0 {
		parent.left = createBST(ranges[:i])
	}
	if i+1 < len(ranges) {
		parent.right = createBST(ranges[i+1:])
	}
	return &parent
}

// BuildBaseline generates a baseline that allows the given system calls. It
// expects the system call number in A. Allowed numbers return
// SECCOMP_RET_ALLOW, others fall through past the last instruction with A
// unchanged.
//
// Numbers are grouped into ranges and searched with a balanced binary tree.
// For example, for {0, 1, 2, 35, 50}:
//
//	range_35_35:  // root
//	  (A >= 35) ? continue : goto range_0_2
//	  (A > 35) ? goto range_50_50 : ret ALLOW
//	range_0_2:  // leaf
//	  (A >= 0) ? continue : goto baseline_end
//	  (A > 2) ? goto baseline_end : ret ALLOW
//	...
//	baseline_end:
//
// Tree edges use direct jumps, so the size of the baseline is not limited by
// the reach of a conditional jump.
func BuildBaseline(sysnos []uint32) ([]linux.BPFInstruction, error) {
	ranges := coalesce(sysnos)
	if len(ranges) == 0 {
		return nil, nil
	}
	root := createBST(ranges)
	root.root = true

	p := bpf.NewProgramBuilder()
	if err := root.traverse(p); err != nil {
		return nil, err
	}
	if err := p.AddLabel(baselineEndLabel); err != nil {
		return nil, err
	}
	return p.Fragment()
}

func (n *node) traverse(p *bpf.ProgramBuilder) error {
	if n == nil {
		return nil
	}
	if err := n.emit(p); err != nil {
		return err
	}
	if err := n.left.traverse(p); err != nil {
		return err
	}
	return n.right.traverse(p)
}

func (n *node) emit(p *bpf.ProgramBuilder) error {
	// Root node is never referenced by label, skip it.
	if !n.root {
		if err := p.AddLabel(n.label()); err != nil {
			return err
		}
	}
	p.AddJump(bpf.Jmp|bpf.Jge|bpf.K, n.value.lo, 1, 0)
	p.AddDirectJumpLabel(n.left.label())
	p.AddJump(bpf.Jmp|bpf.Jgt|bpf.K, n.value.hi, 0, 1)
	p.AddDirectJumpLabel(n.right.label())
	Allow(p)
	return nil
}
