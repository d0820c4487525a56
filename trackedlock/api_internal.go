// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package trackedlock

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/utils"
)

type globalsStruct struct {
	sync.Mutex                                        // protects watched and the config fields below
	watched                map[*lockTracker]interface{} // the locks being watched (value is the wrapping lock)
	lockHoldTimeLimit      time.Duration                // locks held longer then this get logged
	lockCheckPeriod        time.Duration                // check locks once each period
	lockWatcherLocksLogged int                          // max overlimit locks logged by lockWatcher()
	stopChan               chan struct{}                // time to shutdown and go home
	doneChan               chan struct{}                // shutdown complete
	lockCheckTicker        *time.Ticker                 // ticker for lock check time
	longHoldCount          uint64                       // updated atomically
}

var globals globalsStruct

// stackTraceBuf is the storage required to hold one stack trace. We keep a pool of them around.
type stackTraceBuf [4040]byte

var stackTraceBufPool = sync.Pool{
	New: func() interface{} {
		return &stackTraceBuf{}
	},
}

// lockTracker records the most recent exclusive hold of a lock
type lockTracker struct {
	sync.Mutex                // protects the fields below (never held while acquiring the wrapped lock)
	locked     bool
	watched    bool           // true if on globals.watched
	lockTime   time.Time      // time last lock operation completed
	lockerGID  uint64         // goroutine ID of the last locker
	lockStackB *stackTraceBuf // backing storage for lockStack
	lockStack  []byte         // stack trace when object was last locked
}

func holdTimeLimit() (lockHoldTimeLimit time.Duration, lockCheckPeriod time.Duration) {
	globals.Lock()
	lockHoldTimeLimit = globals.lockHoldTimeLimit
	lockCheckPeriod = globals.lockCheckPeriod
	globals.Unlock()
	return
}

func (lt *lockTracker) lockTrack(wrappedLock interface{}) {
	lockHoldTimeLimit, lockCheckPeriod := holdTimeLimit()

	lt.Lock()
	lt.locked = true
	lt.lockTime = time.Now()

	if 0 == lockHoldTimeLimit {
		lt.Unlock()
		return
	}

	lt.lockStackB = stackTraceBufPool.Get().(*stackTraceBuf)
	cnt := runtime.Stack(lt.lockStackB[:], false)
	lt.lockStack = lt.lockStackB[:cnt]
	lt.lockerGID = utils.GetGID()

	needWatch := !lt.watched && (0 != lockCheckPeriod)
	lt.watched = lt.watched || needWatch
	lt.Unlock()

	if needWatch {
		globals.Lock()
		if nil != globals.watched {
			globals.watched[lt] = wrappedLock
		}
		globals.Unlock()
	}
}

func (lt *lockTracker) unlockTrack(wrappedLock interface{}) {
	lockHoldTimeLimit, _ := holdTimeLimit()

	lt.Lock()

	if (0 != lockHoldTimeLimit) && lt.locked {
		heldFor := time.Since(lt.lockTime)
		if heldFor >= lockHoldTimeLimit {
			var buf stackTraceBuf
			cnt := runtime.Stack(buf[:], false)

			lockStr := "locked before lock tracking enabled\n"
			if nil != lt.lockStack {
				lockStr = string(lt.lockStack)
			}

			atomic.AddUint64(&globals.longHoldCount, 1)
			logger.Warnf("Unlock(): %T at %p locked for %f sec; stack at call to Lock():\n%s stack at Unlock():\n%s",
				wrappedLock, wrappedLock, heldFor.Seconds(), lockStr, string(buf[:cnt]))
		}
	}

	lt.locked = false
	if nil != lt.lockStackB {
		stackTraceBufPool.Put(lt.lockStackB)
		lt.lockStackB = nil
		lt.lockStack = nil
	}

	lt.Unlock()
}

func longHoldCount() uint64 {
	return atomic.LoadUint64(&globals.longHoldCount)
}

// longLockHolder describes a lock that is held too long
type longLockHolder struct {
	lockPtr      interface{}
	lockTime     time.Time
	lockerGID    uint64
	lockStackStr string
}

// lockWatcher periodically checks for locks that have been held too long
func lockWatcher(lockCheckChan <-chan time.Time, stopChan chan struct{}, doneChan chan struct{}) {
	for {
		select {
		case <-stopChan:
			logger.Infof("trackedlock lock watcher shutting down")
			doneChan <- struct{}{}
			return
		case <-lockCheckChan:
		}

		checkLocks()
	}
}

func checkLocks() {
	var (
		longLockHolders []*longLockHolder
		now             = time.Now()
	)

	globals.Lock()
	lockHoldTimeLimit := globals.lockHoldTimeLimit
	lockCheckPeriod := globals.lockCheckPeriod
	lockWatcherLocksLogged := globals.lockWatcherLocksLogged

	for lt, lockPtr := range globals.watched {
		lt.Lock()
		if !lt.locked {
			// Drop locks idle for a full check period from the watched set
			if now.Sub(lt.lockTime) >= lockCheckPeriod {
				lt.watched = false
				delete(globals.watched, lt)
			}
		} else if now.Sub(lt.lockTime) > lockHoldTimeLimit {
			longLockHolders = append(longLockHolders, &longLockHolder{
				lockPtr:      lockPtr,
				lockTime:     lt.lockTime,
				lockerGID:    lt.lockerGID,
				lockStackStr: string(lt.lockStack),
			})
		}
		lt.Unlock()
	}
	globals.Unlock()

	sort.Slice(longLockHolders, func(i, j int) bool {
		return longLockHolders[i].lockTime.Before(longLockHolders[j].lockTime)
	})

	if len(longLockHolders) > lockWatcherLocksLogged {
		longLockHolders = longLockHolders[:lockWatcherLocksLogged]
	}

	for i, longLockHolder := range longLockHolders {
		atomic.AddUint64(&globals.longHoldCount, 1)
		logger.Warnf("trackedlock watcher: %T at %p locked by goroutine %d for %f sec rank %d; stack at call to Lock():\n%s",
			longLockHolder.lockPtr, longLockHolder.lockPtr, longLockHolder.lockerGID,
			now.Sub(longLockHolder.lockTime).Seconds(), i, longLockHolder.lockStackStr)
	}
}
