// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package bufaccess

import (
	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/refcntpool"
)

// convention is one buffer-transfer contract. Exactly one implementation exists
// per Method.
type convention interface {
	method() Method
	inputBuffer(request *Request, minimumRequired uint64) (buffer *ResolvedBuffer, err error)
	outputBuffer(request *Request, minimumRequired uint64) (buffer *ResolvedBuffer, err error)
	copyBack(request *Request, information uint64)
}

type bufferedConvention struct{}
type inDirectConvention struct{}
type outDirectConvention struct{}
type neitherConvention struct{}

func conventionForMethod(method Method) convention {
	switch method {
	case MethodBuffered:
		return bufferedConvention{}
	case MethodInDirect:
		return inDirectConvention{}
	case MethodOutDirect:
		return outDirectConvention{}
	default:
		return neitherConvention{}
	}
}

func checkMinimum(request *Request, which string, length uint64, minimumRequired uint64) (err error) {
	if length < minimumRequired {
		err = blunder.NewError(blunder.InvalidParameterError, "request %v %s buffer is %d bytes, %d required",
			request.id, which, length, minimumRequired)
		return
	}
	err = nil
	return
}

func getSystemBuffer(request *Request, size uint64) (bufp *refcntpool.RefCntBuf, err error) {
	globals.RLock()
	bufPoolSet := globals.bufPoolSet
	globals.RUnlock()

	if nil == bufPoolSet {
		err = blunder.NewError(blunder.NotActiveError, "bufaccess not up: no system buffer pool for request %v", request.id)
		return
	}

	bufp, err = bufPoolSet.GetRefCntBuf(size)
	if nil != err {
		globals.stats.SystemBufferFailures.Increment()
		err = blunder.AddError(err, blunder.InsufficientResources)
		return
	}
	globals.stats.SystemBufferBytes.Add(size)
	return
}

// MethodBuffered: one system buffer of max(inputLength, outputLength) bytes,
// pre-filled with the caller's input, serves as both input and output. Writing
// the output overwrites the input in place.

func (bufferedConvention) method() Method {
	return MethodBuffered
}

func (bufferedConvention) systemBuffer(request *Request) (buf []byte, err error) {
	if nil == request.systemBuffer {
		size := request.inputLength
		if request.outputLength > size {
			size = request.outputLength
		}
		request.systemBuffer, err = getSystemBuffer(request, size)
		if nil != err {
			return
		}
		copy(request.systemBuffer.Buf[:request.inputLength], request.callerInput)
	}
	buf = request.systemBuffer.Buf
	err = nil
	return
}

func (conv bufferedConvention) inputBuffer(request *Request, minimumRequired uint64) (buffer *ResolvedBuffer, err error) {
	var (
		buf []byte
	)

	err = checkMinimum(request, "input", request.inputLength, minimumRequired)
	if nil != err {
		return
	}
	buf, err = conv.systemBuffer(request)
	if nil != err {
		return
	}

	buffer = &ResolvedBuffer{
		Bytes:     buf[:request.inputLength],
		Length:    request.inputLength,
		Direction: DirectionIn,
		Tag:       SystemCopied,
	}
	return
}

func (conv bufferedConvention) outputBuffer(request *Request, minimumRequired uint64) (buffer *ResolvedBuffer, err error) {
	var (
		buf []byte
	)

	err = checkMinimum(request, "output", request.outputLength, minimumRequired)
	if nil != err {
		return
	}
	buf, err = conv.systemBuffer(request)
	if nil != err {
		return
	}

	buffer = &ResolvedBuffer{
		Bytes:     buf[:request.outputLength],
		Length:    request.outputLength,
		Direction: DirectionOut,
		Tag:       SystemCopied,
	}
	return
}

func (bufferedConvention) copyBack(request *Request, information uint64) {
	if (nil == request.systemBuffer) || (0 == request.outputLength) {
		return
	}
	if information > request.outputLength {
		information = request.outputLength
	}
	copy(request.callerOutput, request.systemBuffer.Buf[:information])
	globals.stats.CopyBackBytes.Add(information)
}

// MethodInDirect and MethodOutDirect copy the input into a system buffer of
// its own.

func directInputBuffer(request *Request, minimumRequired uint64) (buffer *ResolvedBuffer, err error) {
	err = checkMinimum(request, "input", request.inputLength, minimumRequired)
	if nil != err {
		return
	}
	if nil == request.systemInput {
		request.systemInput, err = getSystemBuffer(request, request.inputLength)
		if nil != err {
			return
		}
		copy(request.systemInput.Buf, request.callerInput)
	}

	buffer = &ResolvedBuffer{
		Bytes:     request.systemInput.Buf,
		Length:    request.inputLength,
		Direction: DirectionIn,
		Tag:       SystemCopied,
	}
	return
}

func directOutputBuffer(request *Request, minimumRequired uint64, direction Direction) (buffer *ResolvedBuffer, err error) {
	err = checkMinimum(request, "output", request.outputLength, minimumRequired)
	if nil != err {
		return
	}
	if uint64(len(request.callerOutput)) < request.outputLength {
		err = blunder.NewError(blunder.InvalidParameterError, "request %v has no caller output buffer of %d bytes",
			request.id, request.outputLength)
		return
	}

	buffer = &ResolvedBuffer{
		Bytes:     request.callerOutput[:request.outputLength:request.outputLength],
		Length:    request.outputLength,
		Direction: direction,
		Tag:       DirectMapped,
	}
	return
}

func (inDirectConvention) method() Method {
	return MethodInDirect
}

func (inDirectConvention) inputBuffer(request *Request, minimumRequired uint64) (*ResolvedBuffer, error) {
	return directInputBuffer(request, minimumRequired)
}

// The output slot of MethodInDirect carries caller-populated data to the relay.
func (inDirectConvention) outputBuffer(request *Request, minimumRequired uint64) (*ResolvedBuffer, error) {
	return directOutputBuffer(request, minimumRequired, DirectionIn)
}

func (inDirectConvention) copyBack(request *Request, information uint64) {}

func (outDirectConvention) method() Method {
	return MethodOutDirect
}

func (outDirectConvention) inputBuffer(request *Request, minimumRequired uint64) (*ResolvedBuffer, error) {
	return directInputBuffer(request, minimumRequired)
}

func (outDirectConvention) outputBuffer(request *Request, minimumRequired uint64) (*ResolvedBuffer, error) {
	return directOutputBuffer(request, minimumRequired, DirectionOut)
}

func (outDirectConvention) copyBack(request *Request, information uint64) {}

// MethodNeither buffers exist only as memory pinned during admission. Each
// pinned length is reconciled against the length the request declares; a
// mismatch means the caller changed its descriptor after admission read it.

func pinnedBuffer(request *Request, which string, memoryObject MemoryObject, declaredLength uint64, minimumRequired uint64, direction Direction, tag SafetyTag) (buffer *ResolvedBuffer, err error) {
	if nil == memoryObject {
		err = blunder.NewError(blunder.InvalidParameterError, "request %v has no pinned %s buffer", request.id, which)
		return
	}
	if (memoryObject.Length() != declaredLength) || (uint64(len(memoryObject.Bytes())) != declaredLength) {
		err = blunder.NewError(blunder.ValidationError, "request %v pinned %s length %d does not match declared length %d",
			request.id, which, memoryObject.Length(), declaredLength)
		return
	}
	err = checkMinimum(request, which, declaredLength, minimumRequired)
	if nil != err {
		return
	}

	buffer = &ResolvedBuffer{
		Bytes:     memoryObject.Bytes(),
		Length:    declaredLength,
		Direction: direction,
		Tag:       tag,
	}
	return
}

func (neitherConvention) method() Method {
	return MethodNeither
}

func (neitherConvention) inputBuffer(request *Request, minimumRequired uint64) (buffer *ResolvedBuffer, err error) {
	var (
		memoryObject MemoryObject
	)

	if nil != request.context {
		memoryObject = request.context.InputMemory
	}
	buffer, err = pinnedBuffer(request, "input", memoryObject, request.inputLength, minimumRequired, DirectionIn, PinnedRead)
	return
}

func (neitherConvention) outputBuffer(request *Request, minimumRequired uint64) (buffer *ResolvedBuffer, err error) {
	var (
		memoryObject MemoryObject
	)

	if nil != request.context {
		memoryObject = request.context.OutputMemory
	}
	buffer, err = pinnedBuffer(request, "output", memoryObject, request.outputLength, minimumRequired, DirectionOut, PinnedWrite)
	return
}

func (neitherConvention) copyBack(request *Request, information uint64) {}
