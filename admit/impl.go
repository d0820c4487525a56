// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package admit

import (
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/callermem"
	"github.com/NVIDIA/filerelay/logger"
)

// pinRegion returns a nil interface, not a typed nil, on failure.
func pinRegion(space *callermem.AddressSpace, address uint64, length uint64, access callermem.Access) (memoryObject bufaccess.MemoryObject, err error) {
	pinned, err := space.Pin(callermem.Address(address), length, access, globals.requiredAlignment())
	if nil != err {
		return
	}
	memoryObject = pinned
	return
}

func reject(request *bufaccess.Request, err error) {
	globals.stats.Rejected.Increment()
	logger.TracefWithRequest(request.ID(), "admission failed: %v", err)
	_ = request.Fail(err)
}
