// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"sync"

	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/halter"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/utils"
)

type statsStruct struct {
	Submitted   bucketstats.Total
	Executed    bucketstats.Total
	Failed      bucketstats.Total
	Rejected    bucketstats.Total
	QueueDepth  bucketstats.Average
	ExecuteUsec bucketstats.BucketLog2Round
	WaitUsec    bucketstats.BucketLog2Round
}

func newDispatcher(name string, executor Executor) (dispatcher *Dispatcher) {
	dispatcher = &Dispatcher{
		name:     name,
		executor: executor,
		queue:    make([]*bufaccess.Request, 0),
		doneChan: make(chan struct{}),
	}
	dispatcher.cond = sync.NewCond(&dispatcher.Mutex)

	bucketstats.Register("dispatch", name, &dispatcher.stats)

	go dispatcher.worker()

	return
}

func (dispatcher *Dispatcher) submit(request *bufaccess.Request) (completion bufaccess.Completion) {
	stopwatch := utils.NewStopwatch()

	dispatcher.Lock()

	if dispatcher.stopping {
		dispatcher.Unlock()
		dispatcher.stats.Rejected.Increment()
		completion = request.Fail(blunder.NewError(blunder.NotActiveError, "dispatcher %s stopped", dispatcher.name))
		return
	}

	request.MarkQueued()
	dispatcher.queue = append(dispatcher.queue, request)
	dispatcher.stats.Submitted.Increment()
	dispatcher.stats.QueueDepth.Add(uint64(len(dispatcher.queue)))
	dispatcher.cond.Signal()

	dispatcher.Unlock()

	<-request.Done()

	dispatcher.stats.WaitUsec.Add(uint64(stopwatch.ElapsedUs()))

	completion = request.Completion()
	return
}

func (dispatcher *Dispatcher) worker() {
	var (
		request *bufaccess.Request
	)

	for {
		dispatcher.Lock()
		for (0 == len(dispatcher.queue)) && !dispatcher.stopping {
			dispatcher.cond.Wait()
		}
		if 0 == len(dispatcher.queue) {
			dispatcher.Unlock()
			close(dispatcher.doneChan)
			return
		}
		request = dispatcher.queue[0]
		dispatcher.queue[0] = nil
		dispatcher.queue = dispatcher.queue[1:]
		dispatcher.Unlock()

		dispatcher.execute(request)
	}
}

func (dispatcher *Dispatcher) execute(request *bufaccess.Request) {
	var (
		err         error
		information uint64
	)

	dispatcher.slot.Lock()
	defer dispatcher.slot.Unlock()

	stopwatch := utils.NewStopwatch()

	request.MarkExecuting()

	halter.Trigger(halter.DispatchExecute)

	logger.TracefWithRequest(request.ID(), "executing %v request code %v", request.Kind(), request.Code())

	information, err = dispatcher.executor.Execute(request)
	if nil == err {
		_ = request.Finish(information)
		dispatcher.stats.Executed.Increment()
	} else {
		_ = request.Fail(err)
		dispatcher.stats.Failed.Increment()
	}

	dispatcher.stats.ExecuteUsec.Add(uint64(stopwatch.ElapsedUs()))
}

func (dispatcher *Dispatcher) stop() {
	dispatcher.Lock()
	alreadyStopping := dispatcher.stopping
	dispatcher.stopping = true
	dispatcher.cond.Broadcast()
	dispatcher.Unlock()

	<-dispatcher.doneChan

	if !alreadyStopping {
		bucketstats.UnRegister("dispatch", dispatcher.name)
	}
}
