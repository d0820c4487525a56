// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package bufaccess implements the four buffer-transfer conventions of relay
// requests and the Request they operate on.
//
// A Request is read, write or control. Read and write always use the buffered
// convention; a control request uses the Method encoded in its ControlCode.
// Handlers reach buffers only through RetrieveInputBuffer and
// RetrieveOutputBuffer, which yield a ResolvedBuffer tagged with how safe it
// is to touch. An Unvalidated buffer is never handed out.
//
// A Request moves Created -> (Preprocessed) -> Queued -> Executing -> Completed.
// Any other transition is a programming error and panics.
package bufaccess

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/NVIDIA/filerelay/refcntpool"
)

type Kind uint8

const (
	KindRead Kind = iota
	KindWrite
	KindControl
)

type State uint8

const (
	StateCreated State = iota
	StatePreprocessed
	StateQueued
	StateExecuting
	StateCompleted
)

// SafetyTag says who owns the bytes of a ResolvedBuffer and whether they may be
// dereferenced.
type SafetyTag uint8

const (
	SystemCopied SafetyTag = iota // private to the relay; not visible to the caller until copy-back
	DirectMapped                  // shared with caller memory
	Unvalidated                   // bare caller address, never handed out
	PinnedRead                    // probed and pinned caller memory, readable
	PinnedWrite                   // probed and pinned caller memory, writable
)

type Direction uint8

const (
	DirectionIn  Direction = iota // caller to relay
	DirectionOut                  // relay to caller
)

// ResolvedBuffer is a buffer a handler may touch.
type ResolvedBuffer struct {
	Bytes     []byte
	Length    uint64
	Direction Direction
	Tag       SafetyTag
}

// MemoryObject is pinned caller memory as produced by admission.
type MemoryObject interface {
	Bytes() []byte
	Length() uint64
	Release()
}

// RequestContext carries the pinned memory of a MethodNeither request.
// Release() must be called exactly once; the Request does that on completion.
type RequestContext struct {
	sync.Mutex
	InputMemory  MemoryObject
	OutputMemory MemoryObject
	released     bool
}

// Completion is the definitive outcome of a Request.
type Completion struct {
	Status      error
	Information uint64 // bytes transferred
}

// Request is one in-flight read, write or control operation.
type Request struct {
	sync.Mutex
	id            uuid.UUID
	kind          Kind
	code          ControlCode
	state         State
	conv          convention
	inputLength   uint64
	outputLength  uint64
	callerInput   []byte
	callerOutput  []byte
	rawDescriptor []byte
	raw           bool // built by NewRawControlRequest
	context       *RequestContext
	systemBuffer  *refcntpool.RefCntBuf // shared in/out buffer (MethodBuffered)
	systemInput   *refcntpool.RefCntBuf // copied input (MethodInDirect, MethodOutDirect)
	completion    Completion
	doneChan      chan struct{}
}

// NewReadRequest returns a request to read up to len(dst) bytes into dst.
func NewReadRequest(dst []byte) (request *Request) {
	request = newRequest(KindRead, 0)
	request.outputLength = uint64(len(dst))
	request.callerOutput = dst
	return
}

// NewWriteRequest returns a request to write src.
func NewWriteRequest(src []byte) (request *Request) {
	request = newRequest(KindWrite, 0)
	request.inputLength = uint64(len(src))
	request.callerInput = src
	return
}

// NewControlRequest returns a control request whose buffers are caller slices.
//
// For a MethodNeither code use NewRawControlRequest instead; slices passed here
// for such a code are never dereferenced.
func NewControlRequest(code ControlCode, input []byte, output []byte) (request *Request) {
	request = newRequest(KindControl, code)
	request.inputLength = uint64(len(input))
	request.outputLength = uint64(len(output))
	request.callerInput = input
	request.callerOutput = output
	return
}

// NewRawControlRequest returns a control request whose buffers are described by
// a packed RawDescriptor of bare caller addresses. inputLength and
// outputLength are the lengths the caller declares for the request itself.
func NewRawControlRequest(code ControlCode, descriptor []byte, inputLength uint64, outputLength uint64) (request *Request) {
	request = newRequest(KindControl, code)
	request.inputLength = inputLength
	request.outputLength = outputLength
	request.rawDescriptor = descriptor
	request.raw = true
	return
}

func (request *Request) ID() string {
	return request.id.String()
}

func (request *Request) Kind() Kind {
	return request.kind
}

func (request *Request) Code() ControlCode {
	return request.code
}

// Method is the convention the request's buffers follow.
func (request *Request) Method() Method {
	return request.conv.method()
}

func (request *Request) InputLength() uint64 {
	return request.inputLength
}

func (request *Request) OutputLength() uint64 {
	return request.outputLength
}

func (request *Request) State() (state State) {
	request.Lock()
	state = request.state
	request.Unlock()
	return
}

// RawDescriptor unpacks the request's raw descriptor. Only MethodNeither
// control requests built by NewRawControlRequest have one.
func (request *Request) RawDescriptor() (descriptor RawDescriptor, err error) {
	descriptor, err = UnpackRawDescriptor(request.rawDescriptor)
	return
}

// IsRaw reports whether the request was built by NewRawControlRequest.
func (request *Request) IsRaw() bool {
	return request.raw
}

// Context returns the attached RequestContext, or nil.
func (request *Request) Context() *RequestContext {
	return request.context
}

// AttachContext attaches pinned memory. Only legal before the request is queued.
func (request *Request) AttachContext(context *RequestContext) {
	request.Lock()
	defer request.Unlock()

	if (StateCreated != request.state) && (StatePreprocessed != request.state) {
		panic(fmt.Sprintf("bufaccess: AttachContext() on request %v in state %v", request.id, request.state))
	}
	if nil != request.context {
		panic(fmt.Sprintf("bufaccess: AttachContext() on request %v that already has one", request.id))
	}
	request.context = context
}

// MarkPreprocessed records that admission processed the request's buffers.
func (request *Request) MarkPreprocessed() {
	request.transition(StatePreprocessed, StateCreated)
}

// MarkQueued records that the request entered the dispatch queue.
func (request *Request) MarkQueued() {
	request.transition(StateQueued, StateCreated, StatePreprocessed)
}

// MarkExecuting records that the request left the queue for its handler.
func (request *Request) MarkExecuting() {
	request.transition(StateExecuting, StateQueued)
}

// RetrieveInputBuffer returns the input buffer. It fails with
// blunder.InvalidArgError if the buffer is shorter than minimumRequired and with
// blunder.InsufficientResources if no system buffer could be obtained.
func (request *Request) RetrieveInputBuffer(minimumRequired uint64) (buffer *ResolvedBuffer, err error) {
	request.assertExecuting("RetrieveInputBuffer")
	buffer, err = request.conv.inputBuffer(request, minimumRequired)
	if nil == err {
		buffer.assertHandOut()
	}
	return
}

// RetrieveOutputBuffer returns the output buffer, failing as RetrieveInputBuffer does.
func (request *Request) RetrieveOutputBuffer(minimumRequired uint64) (buffer *ResolvedBuffer, err error) {
	request.assertExecuting("RetrieveOutputBuffer")
	buffer, err = request.conv.outputBuffer(request, minimumRequired)
	if nil == err {
		buffer.assertHandOut()
	}
	return
}

// Finish completes the request successfully having transferred information
// bytes. System-copied output is copied back to the caller, request-scoped
// memory is released.
func (request *Request) Finish(information uint64) (completion Completion) {
	completion = request.complete(nil, information)
	return
}

// Fail completes the request with status and zero bytes transferred. Nothing is
// copied back.
func (request *Request) Fail(status error) (completion Completion) {
	if nil == status {
		panic(fmt.Sprintf("bufaccess: Fail(nil) on request %v", request.id))
	}
	completion = request.complete(status, 0)
	return
}

// Completion returns the request's outcome. Only valid once Completed.
func (request *Request) Completion() (completion Completion) {
	request.Lock()
	defer request.Unlock()

	if StateCompleted != request.state {
		panic(fmt.Sprintf("bufaccess: Completion() on request %v in state %v", request.id, request.state))
	}
	completion = request.completion
	return
}

// Done is closed when the request completes.
func (request *Request) Done() <-chan struct{} {
	return request.doneChan
}

// Release releases both memory objects. A second Release() panics.
func (context *RequestContext) Release() {
	context.Lock()
	defer context.Unlock()

	if context.released {
		panic(fmt.Sprintf("bufaccess: RequestContext at %p released twice", context))
	}
	context.released = true

	if nil != context.InputMemory {
		context.InputMemory.Release()
	}
	if nil != context.OutputMemory {
		context.OutputMemory.Release()
	}
}

func (context *RequestContext) Released() (released bool) {
	context.Lock()
	released = context.released
	context.Unlock()
	return
}

func (kind Kind) String() string {
	switch kind {
	case KindRead:
		return "Read"
	case KindWrite:
		return "Write"
	case KindControl:
		return "Control"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(kind))
	}
}

func (state State) String() string {
	switch state {
	case StateCreated:
		return "Created"
	case StatePreprocessed:
		return "Preprocessed"
	case StateQueued:
		return "Queued"
	case StateExecuting:
		return "Executing"
	case StateCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("State(%d)", uint8(state))
	}
}

func (tag SafetyTag) String() string {
	switch tag {
	case SystemCopied:
		return "SystemCopied"
	case DirectMapped:
		return "DirectMapped"
	case Unvalidated:
		return "Unvalidated"
	case PinnedRead:
		return "PinnedRead"
	case PinnedWrite:
		return "PinnedWrite"
	default:
		return fmt.Sprintf("SafetyTag(%d)", uint8(tag))
	}
}
