// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package dispatch serializes admitted requests. A Dispatcher owns a single
// worker goroutine that executes requests strictly one at a time in arrival
// order. There is no priority, cancellation or timeout: once submitted, a
// request runs to completion.
package dispatch

import (
	"sync"

	"github.com/NVIDIA/filerelay/admit"
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/trackedlock"
)

// Executor performs one request. It reports the bytes transferred or an error;
// the Dispatcher completes the request accordingly.
type Executor interface {
	Execute(request *bufaccess.Request) (information uint64, err error)
}

// ExecutorFunc adapts a function to an Executor.
type ExecutorFunc func(request *bufaccess.Request) (information uint64, err error)

func (executorFunc ExecutorFunc) Execute(request *bufaccess.Request) (information uint64, err error) {
	return executorFunc(request)
}

// Dispatcher is a single-slot FIFO request queue.
type Dispatcher struct {
	sync.Mutex                      // protects queue and stopping
	cond       *sync.Cond           // signaled on enqueue and on Stop()
	name       string               // bucketstats group
	executor   Executor
	queue      []*bufaccess.Request
	stopping   bool
	slot       trackedlock.Mutex // held across each execution
	doneChan   chan struct{}     // closed when the worker exits
	stats      statsStruct
}

// New starts a Dispatcher feeding executor. name must be unique among running
// Dispatchers; it labels the Dispatcher's statistics.
func New(name string, executor Executor) (dispatcher *Dispatcher) {
	dispatcher = newDispatcher(name, executor)
	return
}

// Submit queues an admitted request and blocks until it completes.
//
// After Stop() the request is completed with blunder.NotActiveError without
// being executed.
func (dispatcher *Dispatcher) Submit(admitted *admit.Admitted) (completion bufaccess.Completion) {
	completion = dispatcher.submit(admitted.Request())
	return
}

// Stop executes whatever is already queued, then stops the worker. It is safe
// to call more than once.
func (dispatcher *Dispatcher) Stop() {
	dispatcher.stop()
}

// QueueDepth returns the number of requests waiting (not counting one executing).
func (dispatcher *Dispatcher) QueueDepth() (depth int) {
	dispatcher.Lock()
	depth = len(dispatcher.queue)
	dispatcher.Unlock()
	return
}

func (dispatcher *Dispatcher) Name() string {
	return dispatcher.name
}
