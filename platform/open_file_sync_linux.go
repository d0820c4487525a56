// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenFileSync opens name such that writes are not reported complete until
// data and metadata are persisted.
//
// O_DIRECT is not requested: relay buffers are caller sized and carry no
// alignment guarantee.
func OpenFileSync(name string, flag int, perm os.FileMode) (file *os.File, err error) {
	file, err = os.OpenFile(name, flag|unix.O_SYNC, perm)
	return
}
