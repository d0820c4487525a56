// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"strings"
	"time"

	"github.com/NVIDIA/filerelay/admit"
	"github.com/NVIDIA/filerelay/backingstore"
	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/callermem"
	"github.com/NVIDIA/filerelay/dispatch"
	"github.com/NVIDIA/filerelay/halter"
	"github.com/NVIDIA/filerelay/handler"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/procnotify"
)

// backingStore is what a Session needs of its backing store handle.
type backingStore interface {
	handler.BackingStore
	Close() error
}

// openBackingStore is replaced by tests.
var openBackingStore = func(name string) (store backingStore, err error) {
	var (
		handle *backingstore.Handle
	)

	handle, err = backingstore.Open(name)
	if nil != err {
		return
	}

	store = handle
	return
}

// splitOpenName splits "<device>[/<backing file name>]" at the first '/'.
func splitOpenName(name string) (deviceName string, storeName string) {
	slash := strings.IndexByte(name, '/')
	if slash < 0 {
		deviceName = name
		return
	}

	deviceName = name[:slash]
	storeName = name[slash+1:]
	return
}

func open(name string, space *callermem.AddressSpace) (session *Session, err error) {
	var (
		deviceName string
		store      backingStore
		storeName  string
	)

	deviceName, storeName = splitOpenName(name)

	globals.Lock()
	defer globals.Unlock()

	if !globals.up {
		err = blunder.NewError(blunder.NotActiveError, "endpoint is down")
		return
	}
	if deviceName != globals.deviceName {
		err = blunder.NewError(blunder.NoDeviceError, "no endpoint named \"%s\" (endpoint is \"%s\")", name, globals.deviceName)
		return
	}
	if nil != globals.session {
		globals.stats.BusyRejections.Increment()
		err = blunder.NewError(blunder.ExclusiveAccessError, "endpoint \"%s\" already has an open session", deviceName)
		return
	}

	if "" == storeName {
		storeName = globals.backingStoreName
	}

	store, err = openBackingStore(storeName)
	if nil != err {
		return
	}

	session = &Session{
		space:     space,
		store:     store,
		storeName: storeName,
		openedAt:  time.Now(),
	}

	globals.session = session
	globals.stats.Opens.Increment()

	logger.Infof("endpoint \"%s\" opened session on backing store \"%s\"", deviceName, storeName)

	err = nil
	return
}

// submit holds the Session shared until the request completes, so Close()
// never pulls the backing store out from under an executing request.
func (session *Session) submit(request *bufaccess.Request) (completion bufaccess.Completion) {
	var (
		admitted *admit.Admitted
		err      error
	)

	session.RLock()
	defer session.RUnlock()

	if session.closed {
		completion = request.Fail(blunder.NewError(blunder.NotActiveError, "request %v on a closed session", request.ID()))
		return
	}

	globals.stats.Requests.Increment()

	admitted, err = admit.Admit(request, session.space)
	if nil != err {
		completion = request.Completion()
		return
	}

	completion = currentDispatcher().Submit(admitted)
	return
}

func (session *Session) close() (err error) {
	session.Lock()
	defer session.Unlock()

	if session.closed {
		err = blunder.NewError(blunder.NotActiveError, "session already closed")
		return
	}

	halter.Trigger(halter.EndpointSessionClose)

	session.closed = true
	err = session.store.Close()

	globals.Lock()
	if session == globals.session {
		globals.session = nil
	}
	globals.stats.Closes.Increment()
	globals.Unlock()

	if nil != err {
		logger.WarnfWithError(err, "closing backing store \"%s\" failed", session.storeName)
		return
	}

	logger.Infof("endpoint session on backing store \"%s\" closed", session.storeName)
	return
}

func currentDispatcher() (dispatcher *dispatch.Dispatcher) {
	globals.Lock()
	dispatcher = globals.dispatcher
	globals.Unlock()
	return
}

// execute runs on the dispatcher's worker. The Session issuing request holds
// itself shared, so globals.session is that Session.
func execute(request *bufaccess.Request) (information uint64, err error) {
	var (
		store handler.BackingStore
	)

	globals.Lock()
	if nil != globals.session {
		store = globals.session.store
	}
	globals.Unlock()

	information, err = handler.Execute(request, store)
	return
}

func observeProcess(event procnotify.Event) {
	globals.Lock()
	deviceName := globals.deviceName
	globals.Unlock()

	logger.Infof("endpoint \"%s\": %v", deviceName, event)
}

func snapshot() (status StatusStruct) {
	globals.Lock()
	defer globals.Unlock()

	status = StatusStruct{
		DeviceName:                 globals.deviceName,
		ConfiguredBackingStoreName: globals.backingStoreName,
		Up:                         globals.up,
		SessionOpen:                nil != globals.session,
		Opens:                      globals.stats.Opens.TotalGet(),
		BusyRejections:             globals.stats.BusyRejections.TotalGet(),
		Requests:                   globals.stats.Requests.TotalGet(),
	}

	if nil != globals.session {
		status.SessionOpenedAt = globals.session.openedAt
		status.BackingStoreName = globals.session.storeName
	}
	if nil != globals.dispatcher {
		status.QueueDepth = globals.dispatcher.QueueDepth()
	}

	return
}
