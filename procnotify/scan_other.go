// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// +build !linux

package procnotify

import (
	"github.com/NVIDIA/filerelay/blunder"
)

func scanProcesses() (processes map[int]int, err error) {
	err = blunder.NewError(blunder.NotSupportedError, "process table polling is only available on Linux")
	return
}
