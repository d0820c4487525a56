// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package handler executes dispatched relay requests. Handlers keep no state of
// their own: a control request is answered from the fixed Payload, a read or
// write goes to the session's backing store.
package handler

import (
	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/bufaccess"
)

// PayloadString is the canonical control response, including its terminating NUL.
const PayloadString = "this String is from Device Driver !!!\x00"

// PayloadLength is len(PayloadString).
const PayloadLength = uint64(len(PayloadString))

// BackingStore is the part of a backing store handle the read and write
// handlers use.
type BackingStore interface {
	ReadAt0(dst []byte) (bytesRead uint64, err error)
	WriteAt0(src []byte) (bytesWritten uint64, err error)
}

// Payload returns a copy of the canonical control response.
func Payload() []byte {
	return []byte(PayloadString)
}

// Execute routes request to Read, Write or Control by its kind.
func Execute(request *bufaccess.Request, store BackingStore) (information uint64, err error) {
	switch request.Kind() {
	case bufaccess.KindRead:
		information, err = Read(request, store)
	case bufaccess.KindWrite:
		information, err = Write(request, store)
	case bufaccess.KindControl:
		information, err = Control(request)
	default:
		err = blunder.NewError(blunder.UnsupportedOperation, "request %v of unknown kind %v", request.ID(), request.Kind())
	}
	return
}

// Control executes a control request according to its code:
//
//   IoctlMethodBuffered   inspect input, then overwrite output with the payload
//   IoctlMethodInDirect   inspect input and the caller-populated output slot; write nothing
//   IoctlMethodOutDirect  inspect input, write the payload to the direct output
//   IoctlMethodNeither    as IoctlMethodOutDirect, on pinned caller memory
//
// The payload is truncated to the output length. Any other code fails with
// blunder.UnsupportedOperation without touching a buffer.
func Control(request *bufaccess.Request) (information uint64, err error) {
	err = bufaccess.CheckLengths(request)
	if nil != err {
		return
	}

	switch request.Code() {
	case bufaccess.IoctlMethodBuffered:
		information, err = controlBuffered(request)
	case bufaccess.IoctlMethodInDirect:
		information, err = controlInDirect(request)
	case bufaccess.IoctlMethodOutDirect:
		information, err = controlOutDirect(request)
	case bufaccess.IoctlMethodNeither:
		information, err = controlNeither(request)
	default:
		err = blunder.NewError(blunder.UnsupportedOperation, "unrecognized control code %v", request.Code())
	}

	return
}

// Read fills the caller's buffer from offset 0 of store and reports the bytes
// read. A nil store fails with blunder.NotActiveError.
func Read(request *bufaccess.Request, store BackingStore) (information uint64, err error) {
	information, err = read(request, store)
	return
}

// Write writes the caller's buffer at offset 0 of store and reports the bytes
// written. A nil store fails with blunder.NotActiveError.
func Write(request *bufaccess.Request, store BackingStore) (information uint64, err error) {
	information, err = write(request, store)
	return
}
