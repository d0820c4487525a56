// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package procnotify

import (
	"sort"
	"time"

	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/logger"
)

func register(name string, observer Observer) (err error) {
	globals.Lock()
	defer globals.Unlock()

	if nil == observer {
		err = blunder.NewError(blunder.InvalidArgError, "procnotify.Register(\"%s\") given a nil observer", name)
		return
	}
	if _, ok := globals.observers[name]; ok {
		err = blunder.NewError(blunder.InvalidArgError, "procnotify observer \"%s\" already registered", name)
		return
	}

	globals.observers[name] = observer

	err = nil
	return
}

func unregister(name string) (err error) {
	globals.Lock()
	defer globals.Unlock()

	if _, ok := globals.observers[name]; !ok {
		err = blunder.NewError(blunder.NotFoundError, "procnotify observer \"%s\" not registered", name)
		return
	}

	delete(globals.observers, name)

	err = nil
	return
}

func observers() (names []string) {
	globals.Lock()
	names = make([]string, 0, len(globals.observers))
	for name := range globals.observers {
		names = append(names, name)
	}
	globals.Unlock()

	sort.Strings(names)
	return
}

func notify(event Event) {
	globals.Lock()
	globals.stats.Events.Increment()
	for name, observer := range globals.observers {
		globals.stats.Deliveries.Increment()
		go deliver(name, observer, event)
	}
	globals.Unlock()
}

func deliver(name string, observer Observer, event Event) {
	defer func() {
		if r := recover(); nil != r {
			globals.stats.ObserverPanics.Increment()
			logger.Warnf("procnotify observer \"%s\" panicked on %v: %v", name, event, r)
		}
	}()

	observer(event)
}

// poller diffs successive process table scans, starting from previous, until
// stopChan closes.
func poller(interval time.Duration, previous map[int]int, stopChan chan struct{}, doneChan chan struct{}) {
	var (
		current map[int]int
		err     error
	)

	defer close(doneChan)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
		}

		current, err = scanProcesses()
		if nil != err {
			globals.stats.ScanFailures.Increment()
			logger.TracefWithError(err, "procnotify scan failed")
			continue
		}

		for _, event := range diffProcesses(previous, current) {
			notify(event)
		}

		previous = current
	}
}

// diffProcesses maps pid to parent pid in both tables. Events are ordered by pid,
// exits before creations.
func diffProcesses(previous map[int]int, current map[int]int) (events []Event) {
	var (
		created []Event
		exited  []Event
	)

	for pid, ppid := range previous {
		if _, ok := current[pid]; !ok {
			exited = append(exited, Event{ParentID: ppid, ProcessID: pid, Create: false})
		}
	}
	for pid, ppid := range current {
		if _, ok := previous[pid]; !ok {
			created = append(created, Event{ParentID: ppid, ProcessID: pid, Create: true})
		}
	}

	sort.Slice(exited, func(i, j int) bool { return exited[i].ProcessID < exited[j].ProcessID })
	sort.Slice(created, func(i, j int) bool { return created[i].ProcessID < created[j].ProcessID })

	events = append(exited, created...)
	return
}
