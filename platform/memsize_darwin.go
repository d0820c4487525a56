// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"golang.org/x/sys/unix"
)

// MemSize returns the total RAM of the host in bytes.
func MemSize() (memSize uint64) {
	var (
		err error
	)

	memSize, err = unix.SysctlUint64("hw.memsize")
	if nil != err {
		panic(err)
	}

	return
}
