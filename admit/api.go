// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package admit runs a request through caller-context preprocessing. It must
// be called on the issuing caller's goroutine, before the request is handed to
// a dispatcher, since only there is the caller's address space known to be the
// one the request's raw addresses refer to.
//
// Admit is the only constructor of Admitted, and a dispatcher accepts nothing
// else, so no request can be executed without having been admitted.
package admit

import (
	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/callermem"
	"github.com/NVIDIA/filerelay/logger"
)

// Admitted is a request that passed preprocessing.
type Admitted struct {
	request *bufaccess.Request
}

// Request returns the admitted request.
func (admitted *Admitted) Request() *bufaccess.Request {
	return admitted.request
}

// Admit preprocesses request against the caller's address space.
//
// Every request first has its lengths checked. A control request must carry a
// raw descriptor exactly when its code uses MethodNeither; otherwise it fails
// with blunder.InvalidParameterError. A MethodNeither control request
// then has its raw descriptor unpacked and both regions probed and pinned:
// input for read, output for write. Each pinned length is reconciled against
// the length the request declares. Other requests pass through untouched.
//
// On failure the request is completed with err, anything pinned is released
// and nil is returned.
func Admit(request *bufaccess.Request, space *callermem.AddressSpace) (admitted *Admitted, err error) {
	var (
		context    *bufaccess.RequestContext
		descriptor bufaccess.RawDescriptor
	)

	err = bufaccess.CheckLengths(request)
	if nil != err {
		reject(request, err)
		return
	}

	if bufaccess.KindControl == request.Kind() {
		if request.IsRaw() && (bufaccess.MethodNeither != request.Method()) {
			err = blunder.NewError(blunder.InvalidParameterError, "request %v code %v carries a raw descriptor but uses %v",
				request.ID(), request.Code(), request.Method())
			reject(request, err)
			return
		}
		if !request.IsRaw() && (bufaccess.MethodNeither == request.Method()) {
			err = blunder.NewError(blunder.InvalidParameterError, "request %v code %v uses %v but carries no raw descriptor",
				request.ID(), request.Code(), request.Method())
			reject(request, err)
			return
		}
	}

	if (bufaccess.KindControl != request.Kind()) || (bufaccess.MethodNeither != request.Method()) {
		globals.stats.PassedThrough.Increment()
		admitted = &Admitted{request: request}
		return
	}

	descriptor, err = request.RawDescriptor()
	if nil != err {
		reject(request, err)
		return
	}

	if nil == space {
		err = blunder.NewError(blunder.ValidationError, "request %v has raw addresses but no caller address space", request.ID())
		reject(request, err)
		return
	}

	// Attached up front so that completing the request releases whatever
	// gets pinned below.
	context = &bufaccess.RequestContext{}
	request.AttachContext(context)

	context.InputMemory, err = pinRegion(space, descriptor.InputAddress, descriptor.InputLength, callermem.AccessRead)
	if nil != err {
		reject(request, err)
		return
	}

	context.OutputMemory, err = pinRegion(space, descriptor.OutputAddress, descriptor.OutputLength, callermem.AccessWrite)
	if nil != err {
		reject(request, err)
		return
	}

	if context.InputMemory.Length() != request.InputLength() {
		err = blunder.NewError(blunder.ValidationError, "request %v pinned input length %d but declares %d",
			request.ID(), context.InputMemory.Length(), request.InputLength())
		reject(request, err)
		return
	}
	if context.OutputMemory.Length() != request.OutputLength() {
		err = blunder.NewError(blunder.ValidationError, "request %v pinned output length %d but declares %d",
			request.ID(), context.OutputMemory.Length(), request.OutputLength())
		reject(request, err)
		return
	}

	request.MarkPreprocessed()
	globals.stats.Pinned.Increment()

	logger.TracefWithRequest(request.ID(), "pinned input 0x%X+%d output 0x%X+%d",
		descriptor.InputAddress, descriptor.InputLength, descriptor.OutputAddress, descriptor.OutputLength)

	admitted = &Admitted{request: request}
	err = nil
	return
}
