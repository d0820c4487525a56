// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package transitions

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/logger"
)

type loggerCallbacksInterfaceStruct struct {
}

var loggerCallbacksInterface loggerCallbacksInterfaceStruct

type registrationItemStruct struct {
	packageName string
	callbacks   Callbacks
}

type globalsStruct struct {
	sync.Mutex       // Serializes Register() against Up()/Signaled()/Down()
	registrationList *list.List
	registrationSet  map[string]*registrationItemStruct // Key: registrationItemStruct.packageName
	up               bool
}

var globals globalsStruct

func init() {
	globals.Lock()
	globals.registrationList = list.New()
	globals.registrationSet = make(map[string]*registrationItemStruct)
	globals.Unlock()

	Register("logger", &loggerCallbacksInterface)
}

func register(packageName string, callbacks Callbacks) {
	var (
		alreadyRegisted  bool
		registrationItem *registrationItemStruct
	)

	globals.Lock()
	_, alreadyRegisted = globals.registrationSet[packageName]
	if alreadyRegisted {
		globals.Unlock()
		logger.Fatalf("transitions.Register(%s,) called twice", packageName)
		return
	}
	registrationItem = &registrationItemStruct{packageName, callbacks}
	_ = globals.registrationList.PushBack(registrationItem)
	globals.registrationSet[packageName] = registrationItem
	globals.Unlock()
}

func registeredPackages() (packageNames []string) {
	globals.Lock()
	packageNames = namesLocked()
	globals.Unlock()
	return
}

// forward issues callback against each registered package from Front() to Back()
func forward(callbackName string, callback func(callbacks Callbacks) error) (err error) {
	var (
		registrationItem        *registrationItemStruct
		registrationListElement *list.Element
	)

	registrationListElement = globals.registrationList.Front()

	for nil != registrationListElement {
		registrationItem = registrationListElement.Value.(*registrationItemStruct)
		logger.Tracef("transitions calling %s.%s()", registrationItem.packageName, callbackName)
		err = callback(registrationItem.callbacks)
		if nil != err {
			logger.Errorf("transitions call to %s.%s() failed: %v", registrationItem.packageName, callbackName, err)
			err = fmt.Errorf("%s.%s() failed: %v", registrationItem.packageName, callbackName, err)
			return
		}
		registrationListElement = registrationListElement.Next()
	}

	err = nil
	return
}

// reverse issues callback against each registered package from Back() to Front()
func reverse(callbackName string, callback func(callbacks Callbacks) error) (err error) {
	var (
		registrationItem        *registrationItemStruct
		registrationListElement *list.Element
	)

	registrationListElement = globals.registrationList.Back()

	for nil != registrationListElement {
		registrationItem = registrationListElement.Value.(*registrationItemStruct)
		logger.Tracef("transitions calling %s.%s()", registrationItem.packageName, callbackName)
		err = callback(registrationItem.callbacks)
		if nil != err {
			logger.Errorf("transitions call to %s.%s() failed: %v", registrationItem.packageName, callbackName, err)
			err = fmt.Errorf("%s.%s() failed: %v", registrationItem.packageName, callbackName, err)
			return
		}
		registrationListElement = registrationListElement.Prev()
	}

	err = nil
	return
}

func up(confMap conf.ConfMap) (err error) {
	globals.Lock()
	defer globals.Unlock()

	defer func() {
		if nil == err {
			logger.Infof("transitions.Up() returning successfully")
		} else {
			// On the relatively good likelihood that at least logger.Up() worked...
			logger.Errorf("transitions.Up() returning with failure: %v", err)
		}
	}()

	if globals.up {
		err = fmt.Errorf("transitions.Up() called while already up")
		return
	}

	err = forward("Up", func(callbacks Callbacks) error { return callbacks.Up(confMap) })
	if nil != err {
		return
	}

	globals.up = true

	logger.Infof("transitions package registration list: %v", namesLocked())

	err = forward("SignaledFinish", func(callbacks Callbacks) error { return callbacks.SignaledFinish(confMap) })

	return
}

func signaled(confMap conf.ConfMap) (err error) {
	globals.Lock()
	defer globals.Unlock()

	logger.Infof("transitions.Signaled() called")
	defer func() {
		if nil == err {
			logger.Infof("transitions.Signaled() returning successfully")
		} else {
			logger.Errorf("transitions.Signaled() returning with failure: %v", err)
		}
	}()

	if !globals.up {
		err = fmt.Errorf("transitions.Signaled() called while not up")
		return
	}

	err = reverse("SignaledStart", func(callbacks Callbacks) error { return callbacks.SignaledStart(confMap) })
	if nil != err {
		return
	}

	err = forward("SignaledFinish", func(callbacks Callbacks) error { return callbacks.SignaledFinish(confMap) })

	return
}

func down(confMap conf.ConfMap) (err error) {
	globals.Lock()
	defer globals.Unlock()

	logger.Infof("transitions.Down() called")
	defer func() {
		if nil != err {
			// On the relatively good likelihood that the failure occurred before calling logger.Down()...
			logger.Errorf("transitions.Down() returning with failure: %v", err)
		}
	}()

	if !globals.up {
		err = fmt.Errorf("transitions.Down() called while not up")
		return
	}

	err = reverse("SignaledStart", func(callbacks Callbacks) error { return callbacks.SignaledStart(confMap) })
	if nil != err {
		return
	}

	globals.up = false

	err = reverse("Down", func(callbacks Callbacks) error { return callbacks.Down(confMap) })

	return
}

func namesLocked() (packageNames []string) {
	packageNames = make([]string, 0, globals.registrationList.Len())
	for registrationListElement := globals.registrationList.Front(); nil != registrationListElement; registrationListElement = registrationListElement.Next() {
		packageNames = append(packageNames, registrationListElement.Value.(*registrationItemStruct).packageName)
	}
	return
}

func (loggerCallbacksInterface *loggerCallbacksInterfaceStruct) Up(confMap conf.ConfMap) (err error) {
	return logger.Up(confMap)
}

func (loggerCallbacksInterface *loggerCallbacksInterfaceStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	return logger.SignaledStart(confMap)
}

func (loggerCallbacksInterface *loggerCallbacksInterfaceStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	return logger.SignaledFinish(confMap)
}

func (loggerCallbacksInterface *loggerCallbacksInterfaceStruct) Down(confMap conf.ConfMap) (err error) {
	return logger.Down(confMap)
}
