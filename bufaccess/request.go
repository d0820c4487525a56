// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package bufaccess

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/logger"
)

func newRequest(kind Kind, code ControlCode) (request *Request) {
	request = &Request{
		id:       uuid.New(),
		kind:     kind,
		code:     code,
		state:    StateCreated,
		doneChan: make(chan struct{}),
	}

	if KindControl == kind {
		request.conv = conventionForMethod(code.Method())
	} else {
		request.conv = conventionForMethod(MethodBuffered)
	}

	return
}

// CheckLengths rejects a request with a zero length it cannot do without:
// both lengths of a control request, the output length of a read, the input
// length of a write. It touches no buffer.
func CheckLengths(request *Request) (err error) {
	switch request.kind {
	case KindRead:
		if 0 == request.outputLength {
			err = blunder.NewError(blunder.InvalidParameterError, "read request %v has zero length", request.id)
			return
		}
	case KindWrite:
		if 0 == request.inputLength {
			err = blunder.NewError(blunder.InvalidParameterError, "write request %v has zero length", request.id)
			return
		}
	case KindControl:
		if (0 == request.inputLength) || (0 == request.outputLength) {
			err = blunder.NewError(blunder.InvalidParameterError, "control request %v code %v has inputLength %d outputLength %d",
				request.id, request.code, request.inputLength, request.outputLength)
			return
		}
	}

	err = nil
	return
}

func (request *Request) transition(to State, from ...State) {
	request.Lock()
	defer request.Unlock()

	for _, legal := range from {
		if legal == request.state {
			request.state = to
			return
		}
	}

	panic(fmt.Sprintf("bufaccess: illegal transition of request %v from %v to %v", request.id, request.state, to))
}

func (request *Request) assertExecuting(accessor string) {
	request.Lock()
	state := request.state
	request.Unlock()

	if StateExecuting != state {
		panic(fmt.Sprintf("bufaccess: %s() on request %v in state %v", accessor, request.id, state))
	}
}

func (buffer *ResolvedBuffer) assertHandOut() {
	if Unvalidated == buffer.Tag {
		panic("bufaccess: attempt to hand out an Unvalidated buffer")
	}
}

func (request *Request) complete(status error, information uint64) (completion Completion) {
	request.Lock()

	if StateCompleted == request.state {
		request.Unlock()
		panic(fmt.Sprintf("bufaccess: request %v completed twice", request.id))
	}
	if (nil == status) && (StateExecuting != request.state) {
		request.Unlock()
		panic(fmt.Sprintf("bufaccess: Finish() of request %v in state %v", request.id, request.state))
	}

	if nil == status {
		request.conv.copyBack(request, information)
	}

	if nil != request.systemBuffer {
		request.systemBuffer.Release()
		request.systemBuffer = nil
	}
	if nil != request.systemInput {
		request.systemInput.Release()
		request.systemInput = nil
	}
	if nil != request.context {
		request.context.Release()
	}

	request.completion = Completion{Status: status, Information: information}
	request.state = StateCompleted
	completion = request.completion

	request.Unlock()

	close(request.doneChan)

	if nil == status {
		logger.TracefWithRequest(request.id.String(), "%v request completed with %d bytes", request.kind, information)
	} else {
		logger.TracefWithRequest(request.id.String(), "%v request failed: %v", request.kind, status)
	}

	return
}
