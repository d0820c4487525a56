// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package trackedlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/transitions"
)

func testSetup(t *testing.T, confStrings []string) (confMap conf.ConfMap) {
	confMap, err := conf.MakeConfMapFromStrings(append([]string{"Logging.LogFilePath=/dev/null"}, confStrings...))
	require.NoError(t, err)

	err = transitions.Up(confMap)
	require.NoError(t, err)

	return
}

func testTeardown(t *testing.T, confMap conf.ConfMap) {
	err := transitions.Down(confMap)
	require.NoError(t, err)
}

func TestUntracked(t *testing.T) {
	var (
		m  Mutex
		rw RWMutex
	)

	// Usable before Up()
	m.Lock()
	m.Unlock()

	confMap := testSetup(t, []string{"TrackedLock.LockHoldTimeLimit=0s", "TrackedLock.LockCheckPeriod=0s"})
	defer testTeardown(t, confMap)

	before := LongHoldCount()

	m.Lock()
	time.Sleep(20 * time.Millisecond)
	m.Unlock()

	rw.RLock()
	rw.RLock()
	rw.RUnlock()
	rw.RUnlock()
	rw.Lock()
	rw.Unlock()

	assert.Equal(t, before, LongHoldCount())
}

func TestLongHoldAtUnlock(t *testing.T) {
	var (
		m      Mutex
		target logger.LogTarget
	)

	confMap := testSetup(t, []string{"TrackedLock.LockHoldTimeLimit=100ms", "TrackedLock.LockCheckPeriod=0s"})
	defer testTeardown(t, confMap)

	target.Init(10)
	logger.AddLogTarget(target)

	before := LongHoldCount()

	m.Lock()
	m.Unlock()
	assert.Equal(t, before, LongHoldCount(), "short hold must not be reported")

	m.Lock()
	time.Sleep(150 * time.Millisecond)
	m.Unlock()

	assert.Equal(t, before+1, LongHoldCount())
	assert.True(t, target.Contains("Unlock(): *trackedlock.Mutex"))
}

func TestLockWatcher(t *testing.T) {
	var (
		rw RWMutex
	)

	confMap := testSetup(t, []string{"TrackedLock.LockHoldTimeLimit=100ms", "TrackedLock.LockCheckPeriod=100ms"})
	defer testTeardown(t, confMap)

	before := LongHoldCount()

	rw.Lock()
	time.Sleep(350 * time.Millisecond)

	// The watcher has reported the held lock at least once before Unlock()
	assert.True(t, LongHoldCount() >= before+1)

	rw.Unlock()
}

func TestReconfigure(t *testing.T) {
	confMap := testSetup(t, []string{"TrackedLock.LockHoldTimeLimit=0s", "TrackedLock.LockCheckPeriod=0s"})

	err := confMap.UpdateFromStrings([]string{"TrackedLock.LockHoldTimeLimit=1s", "TrackedLock.LockCheckPeriod=1s"})
	require.NoError(t, err)
	err = transitions.Signaled(confMap)
	require.NoError(t, err)

	lockHoldTimeLimit, lockCheckPeriod := holdTimeLimit()
	assert.Equal(t, time.Second, lockHoldTimeLimit)
	assert.Equal(t, time.Second, lockCheckPeriod)

	err = confMap.UpdateFromString("TrackedLock.LockHoldTimeLimit=10ms")
	require.NoError(t, err)
	err = transitions.Signaled(confMap)
	require.NoError(t, err)

	lockHoldTimeLimit, _ = holdTimeLimit()
	assert.Equal(t, 40*time.Second, lockHoldTimeLimit, "too-small limit falls back to default")

	testTeardown(t, confMap)

	lockHoldTimeLimit, lockCheckPeriod = holdTimeLimit()
	assert.Zero(t, lockHoldTimeLimit)
	assert.Zero(t, lockCheckPeriod)
}
