// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/dispatch"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/procnotify"
	"github.com/NVIDIA/filerelay/trackedlock"
	"github.com/NVIDIA/filerelay/transitions"
)

const (
	defaultDeviceName       = "NONPNP"
	defaultBackingStoreName = "example.txt"
)

type statsStruct struct {
	Opens          bucketstats.Total
	BusyRejections bucketstats.Total
	Closes         bucketstats.Total
	Requests       bucketstats.Total
	Reads          bucketstats.Total
	Writes         bucketstats.Total
	Controls       bucketstats.Total
}

type globalsStruct struct {
	trackedlock.Mutex
	up               bool
	deviceName       string
	backingStoreName string
	dispatcher       *dispatch.Dispatcher
	session          *Session
	stats            statsStruct
}

var globals globalsStruct

func init() {
	transitions.Register("endpoint", &globals)
}

func fetchNames(confMap conf.ConfMap) (deviceName string, backingStoreName string) {
	var (
		err error
	)

	deviceName, err = confMap.FetchOptionValueString("Endpoint", "DeviceName")
	if (nil != err) || ("" == deviceName) {
		deviceName = defaultDeviceName
	}

	backingStoreName, err = confMap.FetchOptionValueString("Endpoint", "BackingStoreName")
	if (nil != err) || ("" == backingStoreName) {
		backingStoreName = defaultBackingStoreName
	}

	return
}

func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	globals.Lock()
	defer globals.Unlock()

	globals.deviceName, globals.backingStoreName = fetchNames(confMap)

	err = procnotify.Register("endpoint", observeProcess)
	if nil != err {
		return
	}

	globals.stats = statsStruct{}
	bucketstats.Register("endpoint", "", &globals.stats)

	globals.dispatcher = dispatch.New(globals.deviceName, dispatch.ExecutorFunc(execute))
	globals.session = nil
	globals.up = true

	err = nil
	return
}

// SignaledStart leaves an open Session and its requests undisturbed.
func (dummy *globalsStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	err = nil
	return
}

// SignaledFinish picks up a new BackingStoreName for Sessions opened from now on.
// The endpoint keeps the DeviceName it came up with.
func (dummy *globalsStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	var (
		deviceName string
	)

	globals.Lock()
	defer globals.Unlock()

	deviceName, globals.backingStoreName = fetchNames(confMap)
	if deviceName != globals.deviceName {
		logger.Warnf("endpoint: Endpoint.DeviceName change from \"%s\" to \"%s\" ignored until restart", globals.deviceName, deviceName)
	}

	err = nil
	return
}

// Down closes a Session left open, which completes its in-flight requests, then
// stops the dispatcher.
func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	var (
		deviceName string
		session    *Session
	)

	globals.Lock()
	globals.up = false
	deviceName = globals.deviceName
	session = globals.session
	globals.Unlock()

	if nil != session {
		logger.Warnf("endpoint \"%s\" going down with a session open; closing it", deviceName)
		err = session.Close()
		if nil != err {
			logger.WarnfWithError(err, "endpoint: closing session during Down failed")
		}
	}

	_ = procnotify.Unregister("endpoint")

	// Stop() waits for the worker, which takes globals in execute()
	dispatcher := currentDispatcher()
	dispatcher.Stop()

	globals.Lock()
	globals.dispatcher = nil
	globals.Unlock()

	bucketstats.UnRegister("endpoint", "")

	err = nil
	return
}
