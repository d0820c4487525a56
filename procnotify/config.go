// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package procnotify

import (
	"sync"
	"time"

	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/transitions"
)

type statsStruct struct {
	Events         bucketstats.Total
	Deliveries     bucketstats.Total
	ObserverPanics bucketstats.Total
	ScanFailures   bucketstats.Total
}

type globalsStruct struct {
	sync.Mutex
	observers    map[string]Observer
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
	stats        statsStruct
}

var globals globalsStruct

func init() {
	transitions.Register("procnotify", &globals)
	globals.observers = make(map[string]Observer)
}

// Up leaves starting the poller to the SignaledFinish that transitions.Up
// follows it with.
func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	globals.stats = statsStruct{}
	bucketstats.Register("procnotify", "", &globals.stats)

	err = nil
	return
}

func (dummy *globalsStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	stopPoller()

	err = nil
	return
}

func (dummy *globalsStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	err = startPoller(confMap)
	return
}

// Down leaves registered observers in place; each registrant removes its own.
func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	stopPoller()
	bucketstats.UnRegister("procnotify", "")

	err = nil
	return
}

// startPoller replaces any running poller. The priming scan is taken before
// startPoller returns, so processes created afterwards are reported.
func startPoller(confMap conf.ConfMap) (err error) {
	var (
		previous map[int]int
	)

	stopPoller()

	globals.pollInterval, err = confMap.FetchOptionValueDuration("ProcNotify", "PollInterval")
	if nil != err {
		globals.pollInterval = time.Duration(0)
	}

	if time.Duration(0) == globals.pollInterval {
		err = nil
		return
	}

	previous, err = scanProcesses()
	if nil != err {
		logger.WarnfWithError(err, "procnotify poller disabled")
		err = nil
		return
	}

	globals.stopChan = make(chan struct{})
	globals.doneChan = make(chan struct{})
	go poller(globals.pollInterval, previous, globals.stopChan, globals.doneChan)

	err = nil
	return
}

func stopPoller() {
	if nil == globals.stopChan {
		return
	}

	close(globals.stopChan)
	<-globals.doneChan

	globals.stopChan = nil
	globals.doneChan = nil
}
