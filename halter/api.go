// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package halter provides named crash points. A trigger armed with a count
// HALTs the process (SIGKILL-style exit, no cleanup) on that many'th call to
// Trigger() for its label, which lets crash-consistency of the backing store
// be exercised at precise points in request execution.
package halter

import (
	"fmt"
	"os"
	"sort"
	"syscall"
)

// Note 1: Following const block and HaltLabelStrings should be kept in sync
// Note 2: HaltLabelStrings should be easily parseable as URL components

const (
	apiTestHaltLabel1 = iota
	apiTestHaltLabel2
	BackingStoreReadAt0
	BackingStoreWriteAt0
	DispatchExecute
	EndpointSessionClose
)

var (
	HaltLabelStrings = []string{
		"halter.testHaltLabel1",
		"halter.testHaltLabel2",
		"backingstore.ReadAt0",
		"backingstore.WriteAt0",
		"dispatch.execute",
		"endpoint.Session.Close",
	}
)

// Arm sets up a HALT on the haltAfterCount'd call to Trigger()
func Arm(haltLabelString string, haltAfterCount uint32) (err error) {
	globals.Lock()
	defer globals.Unlock()

	haltLabel, ok := globals.triggerNamesToNumbers[haltLabelString]
	if !ok {
		err = fmt.Errorf("halter.Arm(haltLabelString='%v',) - label unknown", haltLabelString)
		return
	}
	if 0 == haltAfterCount {
		err = fmt.Errorf("halter.Arm(haltLabel==%v,) called with haltAfterCount==0", haltLabelString)
		return
	}

	globals.armedTriggers[haltLabel] = haltAfterCount

	err = nil
	return
}

// Disarm removes a previously armed trigger via a call to Arm()
func Disarm(haltLabelString string) (err error) {
	globals.Lock()
	defer globals.Unlock()

	haltLabel, ok := globals.triggerNamesToNumbers[haltLabelString]
	if !ok {
		err = fmt.Errorf("halter.Disarm(haltLabelString='%v') - label unknown", haltLabelString)
		return
	}

	delete(globals.armedTriggers, haltLabel)

	err = nil
	return
}

// Trigger decrements the haltAfterCount if armed and, should it reach 0, HALTs
func Trigger(haltLabel uint32) {
	globals.Lock()
	numTriggersRemaining, armed := globals.armedTriggers[haltLabel]
	if !armed {
		globals.Unlock()
		return
	}
	numTriggersRemaining--
	if 0 == numTriggersRemaining {
		delete(globals.armedTriggers, haltLabel)
		testModeHaltCB := globals.testModeHaltCB
		globals.Unlock()
		haltWithErr(fmt.Errorf("halter.Trigger(haltLabelString==%v) triggered HALT", globals.triggerNumbersToNames[haltLabel]), testModeHaltCB)
		return
	}
	globals.armedTriggers[haltLabel] = numTriggersRemaining
	globals.Unlock()
}

// Dump returns a map of currently armed triggers and their remaining trigger count
func Dump() (armedTriggers map[string]uint32) {
	globals.Lock()
	armedTriggers = make(map[string]uint32)
	for k, v := range globals.armedTriggers {
		armedTriggers[globals.triggerNumbersToNames[k]] = v
	}
	globals.Unlock()
	return
}

// List returns a sorted slice of available triggers
func List() (availableTriggers []string) {
	availableTriggers = make([]string, 0, len(HaltLabelStrings))
	availableTriggers = append(availableTriggers, HaltLabelStrings...)
	sort.Strings(availableTriggers)
	return
}

// ConfigureTestModeHaltCB replaces the process exit performed on HALT with a call to
// testHalt (nil restores the exit). Intended only for tests.
func ConfigureTestModeHaltCB(testHalt func(err error)) {
	globals.Lock()
	globals.testModeHaltCB = testHalt
	globals.Unlock()
}

func haltWithErr(err error, testModeHaltCB func(err error)) {
	if nil == testModeHaltCB {
		fmt.Println(err)
		os.Exit(int(syscall.SIGKILL))
	}
	testModeHaltCB(err)
}
