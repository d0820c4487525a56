// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenFileSync opens name such that reads and writes bypass the buffer cache
// and writes are not reported complete until data and metadata are persisted.
//
// The request for no caching is only honored if the file has not already
// entered the cache at the time of the call.
func OpenFileSync(name string, flag int, perm os.FileMode) (file *os.File, err error) {
	file, err = os.OpenFile(name, flag|unix.O_SYNC, perm)
	if nil != err {
		return
	}

	_, err = unix.FcntlInt(file.Fd(), unix.F_NOCACHE, 1)
	if nil != err {
		err = fmt.Errorf("fcntl(,F_NOCACHE,1) failed: %v", err)
		_ = file.Close()
		file = nil
	}

	return
}
