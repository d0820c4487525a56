// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// The relayworkout program drives an in-process relay endpoint from many
// goroutines at once and reports the resulting request rate.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/callermem"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/endpoint"
	"github.com/NVIDIA/filerelay/transitions"
)

const workoutBufferSize = 256

var (
	doNextStepChan    chan bool
	mix               string
	requestsPerThread uint64
	session           *endpoint.Session
	space             *callermem.AddressSpace
	stepErrChan       chan error
	threads           uint64
)

func usage(file *os.File) {
	fmt.Fprintf(file, "Usage:\n")
	fmt.Fprintf(file, "    %v [rwbideM]+ threads requests-per-thread conf-file [section.option=value]*\n", os.Args[0])
	fmt.Fprintf(file, "  where:\n")
	fmt.Fprintf(file, "    r                         read from the backing store\n")
	fmt.Fprintf(file, "    w                         write to the backing store\n")
	fmt.Fprintf(file, "    b                         control request using the buffered convention\n")
	fmt.Fprintf(file, "    i                         control request using the in-direct convention\n")
	fmt.Fprintf(file, "    o                         control request using the out-direct convention\n")
	fmt.Fprintf(file, "    n                         control request using the neither (raw pointer) convention\n")
	fmt.Fprintf(file, "    threads                   number of threads\n")
	fmt.Fprintf(file, "    requests-per-thread       number of requests each thread will issue, cycling through the selectors\n")
	fmt.Fprintf(file, "    conf-file                 input to conf.MakeConfMapFromFile()\n")
	fmt.Fprintf(file, "    [section.option=value]*   optional input to conf.UpdateFromStrings()\n")
}

func main() {
	var (
		confMap                      conf.ConfMap
		deviceName                   string
		durationOfMeasuredOperations time.Duration
		err                          error
		latencyPerOpInMicroSeconds   float64
		opsPerSecond                 float64
		timeAfterMeasuredOperations  time.Time
		timeBeforeMeasuredOperations time.Time
	)

	// Parse arguments

	if 5 > len(os.Args) {
		usage(os.Stderr)
		os.Exit(1)
	}

	mix = os.Args[1]
	for _, selector := range mix {
		switch selector {
		case 'r', 'w', 'b', 'i', 'o', 'n':
		default:
			fmt.Fprintf(os.Stderr, "os.Args[1] ('%v') must consist of 'r', 'w', 'b', 'i', 'o', or 'n'\n", mix)
			os.Exit(1)
		}
	}

	threads, err = strconv.ParseUint(os.Args[2], 10, 64)
	if nil != err {
		fmt.Fprintf(os.Stderr, "strconv.ParseUint(\"%v\", 10, 64) of threads failed: %v\n", os.Args[2], err)
		os.Exit(1)
	}
	if 0 == threads {
		fmt.Fprintf(os.Stderr, "threads must be a positive number\n")
		os.Exit(1)
	}

	requestsPerThread, err = strconv.ParseUint(os.Args[3], 10, 64)
	if nil != err {
		fmt.Fprintf(os.Stderr, "strconv.ParseUint(\"%v\", 10, 64) of requests-per-thread failed: %v\n", os.Args[3], err)
		os.Exit(1)
	}
	if 0 == requestsPerThread {
		fmt.Fprintf(os.Stderr, "requests-per-thread must be a positive number\n")
		os.Exit(1)
	}

	confMap, err = conf.MakeConfMapFromFile(os.Args[4])
	if nil != err {
		fmt.Fprintf(os.Stderr, "conf.MakeConfMapFromFile(\"%v\") failed: %v\n", os.Args[4], err)
		os.Exit(1)
	}

	if 5 < len(os.Args) {
		err = confMap.UpdateFromStrings(os.Args[5:])
		if nil != err {
			fmt.Fprintf(os.Stderr, "confMap.UpdateFromStrings(%#v) failed: %v\n", os.Args[5:], err)
			os.Exit(1)
		}
	}

	// The workout stands alone; never contend for the dæmon's port
	err = confMap.UpdateFromString("HTTPServer.TCPPort=0")
	if nil != err {
		fmt.Fprintf(os.Stderr, "confMap.UpdateFromString() failed: %v\n", err)
		os.Exit(1)
	}

	// Start up relay components

	err = transitions.Up(confMap)
	if nil != err {
		fmt.Fprintf(os.Stderr, "transitions.Up() failed: %v\n", err)
		os.Exit(1)
	}

	deviceName = endpoint.Status().DeviceName

	space = callermem.NewAddressSpace()

	session, err = endpoint.Open(deviceName, space)
	if nil != err {
		fmt.Fprintf(os.Stderr, "endpoint.Open(\"%v\",) failed: %v\n", deviceName, err)
		os.Exit(1)
	}

	// Perform tests

	stepErrChan = make(chan error, 0)
	doNextStepChan = make(chan bool, 0)

	// Do initialization step
	for threadIndex := uint64(0); threadIndex < threads; threadIndex++ {
		go relayWorkout(threadIndex)
	}
	for threadIndex := uint64(0); threadIndex < threads; threadIndex++ {
		err = <-stepErrChan
		if nil != err {
			fmt.Fprintf(os.Stderr, "relayWorkout() initialization step returned: %v\n", err)
			os.Exit(1)
		}
	}

	// Do measured operations step
	timeBeforeMeasuredOperations = time.Now()
	for threadIndex := uint64(0); threadIndex < threads; threadIndex++ {
		doNextStepChan <- true
	}
	for threadIndex := uint64(0); threadIndex < threads; threadIndex++ {
		err = <-stepErrChan
		if nil != err {
			fmt.Fprintf(os.Stderr, "relayWorkout() measured operations step returned: %v\n", err)
			os.Exit(1)
		}
	}
	timeAfterMeasuredOperations = time.Now()

	// Stop relay components launched above

	err = session.Close()
	if nil != err {
		fmt.Fprintf(os.Stderr, "session.Close() failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(bucketstats.SprintStats("dispatch", deviceName))

	err = transitions.Down(confMap)
	if nil != err {
		fmt.Fprintf(os.Stderr, "transitions.Down() failed: %v\n", err)
		os.Exit(1)
	}

	// Report results

	durationOfMeasuredOperations = timeAfterMeasuredOperations.Sub(timeBeforeMeasuredOperations)

	opsPerSecond = float64(threads*requestsPerThread*1000*1000*1000) / float64(durationOfMeasuredOperations.Nanoseconds())
	latencyPerOpInMicroSeconds = float64(durationOfMeasuredOperations.Nanoseconds()) / float64(requestsPerThread*1000)

	fmt.Printf("opsPerSecond = %10.2f\n", opsPerSecond)
	fmt.Printf("latencyPerOp = %10.2f us\n", latencyPerOpInMicroSeconds)
}

type threadBuffersStruct struct {
	input      []byte
	output     []byte
	descriptor []byte
}

func relayWorkout(threadIndex uint64) {
	var (
		buffers      threadBuffersStruct
		completion   bufaccess.Completion
		err          error
		inAddress    callermem.Address
		outAddress   callermem.Address
		requestIndex uint64
		selector     byte
		callerIn     []byte
	)

	// Do initialization step

	buffers.input = []byte(fmt.Sprintf("relayworkout thread %016X", threadIndex))
	buffers.output = make([]byte, workoutBufferSize)

	inAddress, err = space.Map(workoutBufferSize, callermem.AccessRead)
	if nil == err {
		outAddress, err = space.Map(workoutBufferSize, callermem.AccessReadWrite)
	}
	if nil == err {
		callerIn, err = space.Bytes(inAddress, uint64(len(buffers.input)))
	}
	if nil == err {
		copy(callerIn, buffers.input)
		buffers.descriptor, err = bufaccess.PackRawDescriptor(bufaccess.RawDescriptor{
			InputAddress:  uint64(inAddress),
			InputLength:   uint64(len(buffers.input)),
			OutputAddress: uint64(outAddress),
			OutputLength:  workoutBufferSize,
		})
	}

	stepErrChan <- err
	if nil != err {
		return
	}

	// Do measured operations step

	_ = <-doNextStepChan

	for requestIndex = 0; requestIndex < requestsPerThread; requestIndex++ {
		selector = mix[requestIndex%uint64(len(mix))]

		switch selector {
		case 'r':
			completion = session.Read(buffers.output)
		case 'w':
			completion = session.Write(buffers.input)
		case 'b':
			completion = session.Control(bufaccess.IoctlMethodBuffered, buffers.input, buffers.output)
		case 'i':
			completion = session.Control(bufaccess.IoctlMethodInDirect, buffers.input, buffers.output)
		case 'o':
			completion = session.Control(bufaccess.IoctlMethodOutDirect, buffers.input, buffers.output)
		case 'n':
			completion = session.ControlRaw(bufaccess.IoctlMethodNeither, buffers.descriptor, uint64(len(buffers.input)), workoutBufferSize)
		}

		if nil != completion.Status {
			stepErrChan <- fmt.Errorf("request %d ('%c') of thread %d failed: %v", requestIndex, selector, threadIndex, completion.Status)
			return
		}
	}

	stepErrChan <- nil
}

