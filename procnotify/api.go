// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package procnotify tells registered observers about processes being created
// and exiting. Delivery is fire-and-forget: each observer runs on its own
// goroutine, its outcome is not inspected, and a panicking observer is logged
// and otherwise ignored.
//
// Events come from Notify() and, when ProcNotify.PollInterval is non-zero, from
// a poller that diffs the host's process table (Linux only).
package procnotify

import (
	"fmt"
)

// Event describes one process creation or exit.
type Event struct {
	ParentID  int
	ProcessID int
	Create    bool // false for an exit
}

// Observer is called once per Event.
type Observer func(event Event)

func (event Event) String() string {
	if event.Create {
		return fmt.Sprintf("process %d created by %d", event.ProcessID, event.ParentID)
	}
	return fmt.Sprintf("process %d (parent %d) exited", event.ProcessID, event.ParentID)
}

// Register adds observer under name. Registering a name twice fails with
// blunder.InvalidArgError.
func Register(name string, observer Observer) (err error) {
	err = register(name, observer)
	return
}

// Unregister removes the observer registered under name. Events already handed
// to it may still be delivered.
func Unregister(name string) (err error) {
	err = unregister(name)
	return
}

// Notify delivers event to every registered observer and returns without
// waiting for any of them.
func Notify(event Event) {
	notify(event)
}

// Observers returns the sorted names of the registered observers.
func Observers() (names []string) {
	names = observers()
	return
}
