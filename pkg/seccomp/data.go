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
	"encoding/binary"

	"gvisor.dev/syspolicy/pkg/abi/linux"
	"gvisor.dev/syspolicy/pkg/bpf"
)

// DataAsInput encodes d as struct seccomp_data, in the host's byte order.
func DataAsInput(d linux.SeccompData) bpf.Input {
	b := make([]byte, linux.SizeOfSeccompData)
	binary.NativeEndian.PutUint32(b[linux.SeccompDataOffsetNR:], uint32(d.Nr))
	binary.NativeEndian.PutUint32(b[linux.SeccompDataOffsetArch:], d.Arch)
	binary.NativeEndian.PutUint64(b[linux.SeccompDataOffsetIPLow:], d.InstructionPointer)
	for i, arg := range d.Args {
		binary.NativeEndian.PutUint64(b[linux.SeccompDataOffsetArgs+8*i:], arg)
	}
	return bpf.Input(b)
}
