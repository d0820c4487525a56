// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package trackedlock

import (
	"time"

	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/transitions"
)

const minimumTrackedDuration = 100 * time.Millisecond

func parseConfMap(confMap conf.ConfMap) (lockHoldTimeLimit time.Duration, lockCheckPeriod time.Duration) {
	var (
		err error
	)

	lockHoldTimeLimit, err = confMap.FetchOptionValueDuration("TrackedLock", "LockHoldTimeLimit")
	if nil != err {
		lockHoldTimeLimit = 0
	}
	if (0 != lockHoldTimeLimit) && (lockHoldTimeLimit < minimumTrackedDuration) {
		logger.Warnf("config variable 'TrackedLock.LockHoldTimeLimit' value less than %v; defaulting to '40s'", minimumTrackedDuration)
		lockHoldTimeLimit = 40 * time.Second
	}

	lockCheckPeriod, err = confMap.FetchOptionValueDuration("TrackedLock", "LockCheckPeriod")
	if nil != err {
		lockCheckPeriod = 0
	}
	if (0 != lockCheckPeriod) && (lockCheckPeriod < minimumTrackedDuration) {
		logger.Warnf("config variable 'TrackedLock.LockCheckPeriod' value less than %v; defaulting to '20s'", minimumTrackedDuration)
		lockCheckPeriod = 20 * time.Second
	}

	return
}

// unwatchAllLocked empties globals.watched; caller holds globals.Mutex
func unwatchAllLocked() {
	for lt := range globals.watched {
		lt.Lock()
		lt.watched = false
		lt.Unlock()
		delete(globals.watched, lt)
	}
}

func init() {
	transitions.Register("trackedlock", &globals)
}

func startWatcher() {
	if (0 == globals.lockCheckPeriod) || (0 == globals.lockHoldTimeLimit) {
		return
	}

	globals.stopChan = make(chan struct{})
	globals.doneChan = make(chan struct{})
	globals.lockCheckTicker = time.NewTicker(globals.lockCheckPeriod)

	go lockWatcher(globals.lockCheckTicker.C, globals.stopChan, globals.doneChan)
}

func stopWatcher() {
	if nil == globals.lockCheckTicker {
		return
	}

	globals.lockCheckTicker.Stop()
	globals.lockCheckTicker = nil
	globals.stopChan <- struct{}{}
	<-globals.doneChan
}

// Up initializes the package. Locks are tracked from the first Lock() call after it returns.
func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	lockHoldTimeLimit, lockCheckPeriod := parseConfMap(confMap)

	globals.Lock()
	globals.lockHoldTimeLimit = lockHoldTimeLimit
	globals.lockCheckPeriod = lockCheckPeriod
	globals.lockWatcherLocksLogged = 16
	globals.watched = make(map[*lockTracker]interface{})
	globals.Unlock()

	logger.Infof("trackedlock.Up(): LockHoldTimeLimit %v LockCheckPeriod %v", lockHoldTimeLimit, lockCheckPeriod)

	startWatcher()

	err = nil
	return
}

func (dummy *globalsStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	err = nil
	return
}

// SignaledFinish applies any change to LockHoldTimeLimit/LockCheckPeriod
func (dummy *globalsStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	lockHoldTimeLimit, lockCheckPeriod := parseConfMap(confMap)

	globals.Lock()
	unchanged := (lockHoldTimeLimit == globals.lockHoldTimeLimit) && (lockCheckPeriod == globals.lockCheckPeriod)
	globals.Unlock()

	if unchanged {
		err = nil
		return
	}

	logger.Infof("trackedlock LockHoldTimeLimit/LockCheckPeriod changing to %v/%v", lockHoldTimeLimit, lockCheckPeriod)

	stopWatcher()

	globals.Lock()
	globals.lockHoldTimeLimit = lockHoldTimeLimit
	globals.lockCheckPeriod = lockCheckPeriod
	if 0 == lockCheckPeriod {
		unwatchAllLocked()
	}
	globals.Unlock()

	startWatcher()

	err = nil
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	stopWatcher()

	globals.Lock()
	globals.lockHoldTimeLimit = 0
	globals.lockCheckPeriod = 0
	unwatchAllLocked()
	globals.watched = nil
	globals.Unlock()

	err = nil
	return
}
