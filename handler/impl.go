// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"github.com/creachadair/cityhash"

	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/logger"
)

// Printable renders buf with every byte outside ' '..'~' shown as '.'.
func Printable(buf []byte) string {
	printable := make([]byte, len(buf))
	for i, c := range buf {
		if (c > 31) && (c < 127) {
			printable[i] = c
		} else {
			printable[i] = '.'
		}
	}
	return string(printable)
}

func inspect(request *bufaccess.Request, label string, buf []byte) {
	if !logger.TraceEnabled("handler") {
		return
	}
	logger.TracefWithRequest(request.ID(), "%s: %d bytes cityhash64:%016X \"%s\"",
		label, len(buf), cityhash.Hash64(buf), Printable(buf))
}

func writePayload(request *bufaccess.Request, output *bufaccess.ResolvedBuffer) (information uint64) {
	information = output.Length
	if information > PayloadLength {
		information = PayloadLength
	}
	copy(output.Bytes[:information], PayloadString)
	inspect(request, "data to caller", output.Bytes[:information])
	return
}

// controlBuffered reads the input before writing the output: both share storage.
func controlBuffered(request *bufaccess.Request) (information uint64, err error) {
	var (
		input  *bufaccess.ResolvedBuffer
		output *bufaccess.ResolvedBuffer
	)

	input, err = request.RetrieveInputBuffer(0)
	if nil != err {
		return
	}
	inspect(request, "data from caller", input.Bytes)

	output, err = request.RetrieveOutputBuffer(0)
	if nil != err {
		return
	}

	information = writePayload(request, output)
	return
}

func controlInDirect(request *bufaccess.Request) (information uint64, err error) {
	var (
		input  *bufaccess.ResolvedBuffer
		output *bufaccess.ResolvedBuffer
	)

	input, err = request.RetrieveInputBuffer(0)
	if nil != err {
		return
	}
	inspect(request, "data from caller", input.Bytes)

	output, err = request.RetrieveOutputBuffer(0)
	if nil != err {
		return
	}
	inspect(request, "data from caller (output slot)", output.Bytes)

	information = output.Length
	return
}

func controlOutDirect(request *bufaccess.Request) (information uint64, err error) {
	var (
		input  *bufaccess.ResolvedBuffer
		output *bufaccess.ResolvedBuffer
	)

	input, err = request.RetrieveInputBuffer(0)
	if nil != err {
		return
	}
	inspect(request, "data from caller", input.Bytes)

	output, err = request.RetrieveOutputBuffer(0)
	if nil != err {
		return
	}

	information = writePayload(request, output)
	return
}

// controlNeither retrieves both pinned buffers before touching either, so a
// missing or mismatched one leaves the other untouched too.
func controlNeither(request *bufaccess.Request) (information uint64, err error) {
	var (
		input  *bufaccess.ResolvedBuffer
		output *bufaccess.ResolvedBuffer
	)

	input, err = request.RetrieveInputBuffer(0)
	if nil != err {
		return
	}
	output, err = request.RetrieveOutputBuffer(0)
	if nil != err {
		return
	}

	inspect(request, "data from caller", input.Bytes)

	information = writePayload(request, output)
	return
}

func read(request *bufaccess.Request, store BackingStore) (information uint64, err error) {
	var (
		output *bufaccess.ResolvedBuffer
	)

	if nil == store {
		err = blunder.NewError(blunder.NotActiveError, "read request %v: no backing store open", request.ID())
		return
	}
	err = bufaccess.CheckLengths(request)
	if nil != err {
		return
	}

	output, err = request.RetrieveOutputBuffer(0)
	if nil != err {
		return
	}

	information, err = store.ReadAt0(output.Bytes)
	if nil != err {
		information = 0
		return
	}

	inspect(request, "read from backing store", output.Bytes[:information])
	return
}

func write(request *bufaccess.Request, store BackingStore) (information uint64, err error) {
	var (
		input *bufaccess.ResolvedBuffer
	)

	if nil == store {
		err = blunder.NewError(blunder.NotActiveError, "write request %v: no backing store open", request.ID())
		return
	}
	err = bufaccess.CheckLengths(request)
	if nil != err {
		return
	}

	input, err = request.RetrieveInputBuffer(0)
	if nil != err {
		return
	}

	inspect(request, "write to backing store", input.Bytes)

	information, err = store.WriteAt0(input.Bytes)
	if nil != err {
		information = 0
		return
	}

	return
}
