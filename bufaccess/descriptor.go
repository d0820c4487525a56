// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package bufaccess

import (
	"github.com/NVIDIA/cstruct"

	"github.com/NVIDIA/filerelay/blunder"
)

// RawDescriptor is the block through which a MethodNeither request passes its
// bare caller addresses. On the wire it is four little-endian uint64s.
type RawDescriptor struct {
	InputAddress  uint64
	InputLength   uint64
	OutputAddress uint64
	OutputLength  uint64
}

// RawDescriptorSize is the packed size of a RawDescriptor.
const RawDescriptorSize = 32

func PackRawDescriptor(descriptor RawDescriptor) (buf []byte, err error) {
	buf, err = cstruct.Pack(descriptor, cstruct.LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.PackError, "cstruct.Pack(RawDescriptor) failed: %v", err)
	}
	return
}

// UnpackRawDescriptor fails with blunder.ValidationError unless buf is exactly
// RawDescriptorSize bytes.
func UnpackRawDescriptor(buf []byte) (descriptor RawDescriptor, err error) {
	var (
		bytesConsumed uint64
	)

	if RawDescriptorSize != len(buf) {
		err = blunder.NewError(blunder.ValidationError, "raw descriptor is %d bytes, expected %d", len(buf), RawDescriptorSize)
		return
	}

	bytesConsumed, err = cstruct.Unpack(buf, &descriptor, cstruct.LittleEndian)
	if nil != err {
		err = blunder.NewError(blunder.ValidationError, "cstruct.Unpack(RawDescriptor) failed: %v", err)
		return
	}
	if RawDescriptorSize != bytesConsumed {
		err = blunder.NewError(blunder.ValidationError, "cstruct.Unpack(RawDescriptor) consumed %d bytes", bytesConsumed)
		return
	}

	err = nil
	return
}
