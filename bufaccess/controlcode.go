// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package bufaccess

import (
	"fmt"
)

// Method selects how a control request's buffers move between caller and relay.
type Method uint32

const (
	MethodBuffered  Method = 0 // input and output share one system buffer, copied both ways
	MethodInDirect  Method = 1 // input copied; output slot is caller-populated, mapped directly
	MethodOutDirect Method = 2 // input copied; output mapped directly for relay-to-caller data
	MethodNeither   Method = 3 // bare caller addresses; must be admitted (probed and pinned)
)

// Required access bits of a ControlCode.
const (
	FileAnyAccess   uint32 = 0
	FileReadAccess  uint32 = 1
	FileWriteAccess uint32 = 2
)

// DeviceTypeRelay is the device type of every control code the relay defines.
const DeviceTypeRelay uint32 = 40000

// ControlCode packs device type, required access, function and method into 32 bits:
//
//   bits 31..16 device type
//   bits 15..14 access
//   bits 13..2  function
//   bits  1..0  method
//
type ControlCode uint32

// CtlCode assembles a ControlCode.
func CtlCode(deviceType uint32, function uint32, method Method, access uint32) ControlCode {
	return ControlCode((deviceType << 16) | (access << 14) | (function << 2) | uint32(method))
}

var (
	IoctlMethodInDirect  = CtlCode(DeviceTypeRelay, 0x900, MethodInDirect, FileAnyAccess)
	IoctlMethodOutDirect = CtlCode(DeviceTypeRelay, 0x901, MethodOutDirect, FileAnyAccess)
	IoctlMethodBuffered  = CtlCode(DeviceTypeRelay, 0x902, MethodBuffered, FileAnyAccess)
	IoctlMethodNeither   = CtlCode(DeviceTypeRelay, 0x903, MethodNeither, FileAnyAccess)
)

func (code ControlCode) Method() Method {
	return Method(uint32(code) & 0x3)
}

func (code ControlCode) Function() uint32 {
	return (uint32(code) >> 2) & 0xFFF
}

func (code ControlCode) Access() uint32 {
	return (uint32(code) >> 14) & 0x3
}

func (code ControlCode) DeviceType() uint32 {
	return uint32(code) >> 16
}

func (code ControlCode) String() string {
	return fmt.Sprintf("0x%08X", uint32(code))
}

func (method Method) String() string {
	switch method {
	case MethodBuffered:
		return "MethodBuffered"
	case MethodInDirect:
		return "MethodInDirect"
	case MethodOutDirect:
		return "MethodOutDirect"
	case MethodNeither:
		return "MethodNeither"
	default:
		return fmt.Sprintf("Method(%d)", uint32(method))
	}
}
