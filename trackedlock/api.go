// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package trackedlock provides sync.Mutex and sync.RWMutex work-alikes that
// additionally track how long they are held in exclusive mode.
//
// If "TrackedLock.LockHoldTimeLimit" is non-zero, an Unlock() of a lock held
// longer than that limit logs a warning including the stack at Lock() and at
// Unlock(). If "TrackedLock.LockCheckPeriod" is also non-zero, a watcher
// goroutine periodically logs locks that are still held past the limit (e.g. a
// relay request stuck in execution).
//
// Locks may be used before the package is brought up by transitions.Up(); they
// are simply not tracked until then.
//
package trackedlock

import (
	"sync"
)

// Mutex wraps sync.Mutex to add tracking of lock hold time and the stack trace of the locker.
type Mutex struct {
	wrappedMutex sync.Mutex
	tracker      lockTracker
}

// RWMutex wraps sync.RWMutex. Only exclusive (writer) holds are tracked.
type RWMutex struct {
	wrappedRWMutex sync.RWMutex
	tracker        lockTracker
}

func (m *Mutex) Lock() {
	m.wrappedMutex.Lock()
	m.tracker.lockTrack(m)
}

func (m *Mutex) Unlock() {
	m.tracker.unlockTrack(m)
	m.wrappedMutex.Unlock()
}

func (m *RWMutex) Lock() {
	m.wrappedRWMutex.Lock()
	m.tracker.lockTrack(m)
}

func (m *RWMutex) Unlock() {
	m.tracker.unlockTrack(m)
	m.wrappedRWMutex.Unlock()
}

func (m *RWMutex) RLock() {
	m.wrappedRWMutex.RLock()
}

func (m *RWMutex) RUnlock() {
	m.wrappedRWMutex.RUnlock()
}

// LongHoldCount returns the number of times a tracked lock was found (at
// Unlock() or by the watcher) to have been held longer than LockHoldTimeLimit.
func LongHoldCount() uint64 {
	return longHoldCount()
}
