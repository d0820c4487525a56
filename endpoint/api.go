// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package endpoint is the relay's single control endpoint. It is brought up by
// transitions.Up, under the name given by Endpoint.DeviceName, and admits at
// most one open Session at a time. Each Session owns the backing store handle
// and the caller address space its requests are resolved against; every request
// from it is admitted on the caller's goroutine and then executed, one at a
// time, by the endpoint's dispatcher.
package endpoint

import (
	"time"

	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/callermem"
	"github.com/NVIDIA/filerelay/trackedlock"
)

// Session is one caller's open handle on the endpoint.
type Session struct {
	trackedlock.RWMutex // held shared by each in-flight request, exclusively by Close()
	space               *callermem.AddressSpace
	store               backingStore
	storeName           string
	openedAt            time.Time
	closed              bool
}

// StatusStruct is a snapshot of the endpoint, as served on /endpoint.
type StatusStruct struct {
	DeviceName                 string
	ConfiguredBackingStoreName string // used by an Open() naming no backing file
	Up                         bool
	SessionOpen                bool
	SessionOpenedAt            time.Time `json:",omitempty"`
	BackingStoreName           string    `json:",omitempty"`
	QueueDepth                 int
	Opens                      uint64
	BusyRejections             uint64
	Requests                   uint64
}

// Open opens a Session, resolving raw buffer addresses against space. space may
// be nil for a caller that never issues a request using the unvalidated-pointer
// convention.
//
// name is "<device>" or "<device>/<backing file name>". The backing file name
// is relative to BackingStore.Directory; when absent, Endpoint.BackingStoreName
// is used.
//
// Open fails with blunder.NotActiveError when the endpoint is down,
// blunder.NoDeviceError when <device> does not match, and blunder.DevBusyError
// while another Session is open; in the last case the open Session is left
// untouched.
func Open(name string, space *callermem.AddressSpace) (session *Session, err error) {
	session, err = open(name, space)
	return
}

// Status returns a snapshot of the endpoint.
func Status() (status StatusStruct) {
	status = snapshot()
	return
}

// Read reads from offset 0 of the backing store into dst.
func (session *Session) Read(dst []byte) (completion bufaccess.Completion) {
	globals.stats.Reads.Increment()
	completion = session.submit(bufaccess.NewReadRequest(dst))
	return
}

// Write writes src at offset 0 of the backing store.
func (session *Session) Write(src []byte) (completion bufaccess.Completion) {
	globals.stats.Writes.Increment()
	completion = session.submit(bufaccess.NewWriteRequest(src))
	return
}

// Control issues a control request whose buffers are the Go slices input and
// output.
func (session *Session) Control(code bufaccess.ControlCode, input []byte, output []byte) (completion bufaccess.Completion) {
	globals.stats.Controls.Increment()
	completion = session.submit(bufaccess.NewControlRequest(code, input, output))
	return
}

// ControlRaw issues a control request described only by a packed
// bufaccess.RawDescriptor. The descriptor's addresses are resolved against the
// Session's address space for codes using bufaccess.MethodNeither.
func (session *Session) ControlRaw(code bufaccess.ControlCode, descriptor []byte, inputLength uint64, outputLength uint64) (completion bufaccess.Completion) {
	globals.stats.Controls.Increment()
	completion = session.submit(bufaccess.NewRawControlRequest(code, descriptor, inputLength, outputLength))
	return
}

// Close waits for the Session's in-flight requests, then closes its backing
// store handle. Closing a closed Session fails with blunder.NotActiveError.
func (session *Session) Close() (err error) {
	err = session.close()
	return
}

// Closed reports whether Close() has been called.
func (session *Session) Closed() (closed bool) {
	session.RLock()
	closed = session.closed
	session.RUnlock()
	return
}
