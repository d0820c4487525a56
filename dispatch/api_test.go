// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/filerelay/admit"
	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/halter"
	"github.com/NVIDIA/filerelay/trackedlock"
	"github.com/NVIDIA/filerelay/transitions"
)

var testConfMap conf.ConfMap

func testSetup(t *testing.T) {
	var (
		err error
	)

	testConfMap, err = conf.MakeConfMapFromStrings([]string{
		"Logging.LogFilePath=/dev/null",
		"TrackedLock.LockHoldTimeLimit=100ms",
		"TrackedLock.LockCheckPeriod=0s",
	})
	require.NoError(t, err)

	err = transitions.Up(testConfMap)
	require.NoError(t, err)
}

func testTeardown(t *testing.T) {
	err := transitions.Down(testConfMap)
	require.NoError(t, err)
}

func admitWrite(t *testing.T, payload string) *admit.Admitted {
	admitted, err := admit.Admit(bufaccess.NewWriteRequest([]byte(payload)), nil)
	require.NoError(t, err)
	return admitted
}

// intervalRecorder records the [entry, exit) interval of each execution.
type intervalRecorder struct {
	sync.Mutex
	inFlight    int32
	maxInFlight int32
	order       []string
	entries     []time.Time
	exits       []time.Time
}

func (recorder *intervalRecorder) Execute(request *bufaccess.Request) (information uint64, err error) {
	entry := time.Now()

	inFlight := atomic.AddInt32(&recorder.inFlight, 1)
	recorder.Lock()
	if inFlight > recorder.maxInFlight {
		recorder.maxInFlight = inFlight
	}
	recorder.Unlock()

	in, err := request.RetrieveInputBuffer(1)
	if nil != err {
		atomic.AddInt32(&recorder.inFlight, -1)
		return
	}

	time.Sleep(time.Millisecond)

	atomic.AddInt32(&recorder.inFlight, -1)

	recorder.Lock()
	recorder.order = append(recorder.order, string(in.Bytes))
	recorder.entries = append(recorder.entries, entry)
	recorder.exits = append(recorder.exits, time.Now())
	recorder.Unlock()

	information = in.Length
	return
}

func TestFIFO(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	recorder := &intervalRecorder{}
	dispatcher := New("fifo", recorder)
	defer dispatcher.Stop()

	for i := 0; i < 10; i++ {
		payload := fmt.Sprintf("request-%d", i)
		completion := dispatcher.Submit(admitWrite(t, payload))
		require.NoError(t, completion.Status)
		assert.Equal(t, uint64(len(payload)), completion.Information)
	}

	for i, payload := range recorder.order {
		assert.Equal(t, fmt.Sprintf("request-%d", i), payload)
	}
}

func TestConcurrentRequestsSerialized(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	recorder := &intervalRecorder{}
	dispatcher := New("serialized", recorder)
	defer dispatcher.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			admitted, err := admit.Admit(bufaccess.NewWriteRequest([]byte(fmt.Sprintf("%02d", i))), nil)
			if nil != err {
				t.Errorf("admit.Admit() failed: %v", err)
				return
			}
			completion := dispatcher.Submit(admitted)
			assert.NoError(t, completion.Status)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), recorder.maxInFlight)
	require.Equal(t, 32, len(recorder.entries))
	for i := 1; i < len(recorder.entries); i++ {
		assert.False(t, recorder.entries[i].Before(recorder.exits[i-1]),
			"execution %d began before execution %d ended", i, i-1)
	}
	assert.Contains(t, bucketstats.SprintStats("dispatch", "serialized"), "dispatch.serialized.Executed total:32")
}

func TestExecutorFailure(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	dispatcher := New("failure", ExecutorFunc(func(request *bufaccess.Request) (uint64, error) {
		return 99, blunder.NewError(blunder.IOError, "backing store fell over")
	}))
	defer dispatcher.Stop()

	admitted := admitWrite(t, "x")
	completion := dispatcher.Submit(admitted)
	assert.True(t, blunder.Is(completion.Status, blunder.IOError))
	assert.Equal(t, uint64(0), completion.Information)
	assert.Equal(t, bufaccess.StateCompleted, admitted.Request().State())

	// the failure does not poison later requests
	ok := New("after-failure", ExecutorFunc(func(request *bufaccess.Request) (uint64, error) {
		return request.InputLength(), nil
	}))
	defer ok.Stop()
	assert.NoError(t, ok.Submit(admitWrite(t, "fine")).Status)
}

func TestStop(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var executed int32

	dispatcher := New("stop", ExecutorFunc(func(request *bufaccess.Request) (uint64, error) {
		started <- struct{}{}
		<-release
		atomic.AddInt32(&executed, 1)
		return 0, nil
	}))

	completions := make(chan bufaccess.Completion, 3)
	go func() { completions <- dispatcher.Submit(admitWrite(t, "first")) }()
	<-started

	for i := 0; i < 2; i++ {
		go func() { completions <- dispatcher.Submit(admitWrite(t, "queued")) }()
	}
	require.Eventually(t, func() bool { return 2 == dispatcher.QueueDepth() }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		dispatcher.Stop()
		close(stopped)
	}()

	close(release)
	<-stopped

	// queued requests were drained, not dropped
	assert.Equal(t, int32(3), atomic.LoadInt32(&executed))
	for i := 0; i < 3; i++ {
		assert.NoError(t, (<-completions).Status)
	}

	completion := dispatcher.Submit(admitWrite(t, "late"))
	assert.True(t, blunder.Is(completion.Status, blunder.NotActiveError))
	assert.Equal(t, int32(3), atomic.LoadInt32(&executed))

	dispatcher.Stop()
}

func TestLongExecutionIsReported(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	dispatcher := New("long", ExecutorFunc(func(request *bufaccess.Request) (uint64, error) {
		time.Sleep(150 * time.Millisecond)
		return 0, nil
	}))
	defer dispatcher.Stop()

	before := trackedlock.LongHoldCount()
	assert.NoError(t, dispatcher.Submit(admitWrite(t, "slow")).Status)
	assert.True(t, trackedlock.LongHoldCount() > before)
}

func TestHaltDuringExecution(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	var executed int32
	dispatcher := New("halt", ExecutorFunc(func(request *bufaccess.Request) (uint64, error) {
		atomic.AddInt32(&executed, 1)
		return 0, nil
	}))
	defer dispatcher.Stop()

	halted := make(chan error, 1)
	halter.ConfigureTestModeHaltCB(func(err error) { halted <- err })
	defer halter.ConfigureTestModeHaltCB(nil)

	require.NoError(t, halter.Arm("dispatch.execute", 2))

	assert.NoError(t, dispatcher.Submit(admitWrite(t, "one")).Status)
	assert.Equal(t, 0, len(halted))
	assert.NoError(t, dispatcher.Submit(admitWrite(t, "two")).Status)
	assert.Equal(t, 1, len(halted))
	assert.Equal(t, int32(2), atomic.LoadInt32(&executed))
}
