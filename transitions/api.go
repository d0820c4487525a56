// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package transitions sequences the start-up, reconfiguration, and shutdown of
// every package in a filerelay program.
package transitions

import (
	"github.com/NVIDIA/filerelay/conf"
)

// Callbacks is the interface implemented by each package desiring notification of
// configuration changes. Each such package should implement a struct with pointer
// receivers for each API listed below even when there is no interest in being
// notified of a particular condition.
//
// By calling transitions.Register() in the package's init() func, the proper order
// of registration will be ensured. In specific, the following callbacks will be
// issued in the same order as package init() func calls have registered:
//
//   Up()
//   SignaledFinish()
//
// By contrast, the following callbacks will be issued in the reverse order as package
// init() func calls have registered:
//
//   SignaledStart()
//   Down()
//
type Callbacks interface {
	Up(confMap conf.ConfMap) (err error)
	SignaledStart(confMap conf.ConfMap) (err error)
	SignaledFinish(confMap conf.ConfMap) (err error)
	Down(confMap conf.ConfMap) (err error)
}

// Register should be called from a package's init() func should the package be interested
// in one or more of the callbacks that they will receive. Each callback func should receive
// a struct implementing the Callbacks interface by reference.
//
// As an example, consider the following:
//
//   package foo
//
//   import "github.com/NVIDIA/filerelay/conf"
//   import "github.com/NVIDIA/filerelay/transitions"
//
//   type transitionsCallbackInterfaceStruct struct {
//   }
//
//   var transitionsCallbackInterface transitionsCallbackInterfaceStruct
//
//   func init() {
//       transitions.Register("foo", &transitionsCallbackInterface)
//   }
//
//   func (transitionsCallbackInterface *transitionsCallbackInterfaceStruct) Up(confMap conf.ConfMap) (err error) {
//       // Perform start-up initialization derived from confMap
//       return
//   }
//
// A special exception to the need for registration is the package logger. Package
// transitions performs the registration for package logger itself so that logging
// is the first package brought up and the last taken down.
//
func Register(packageName string, callbacks Callbacks) {
	register(packageName, callbacks)
}

// Up should be called at startup by the main() (or setup func) of each program including
// any of the packages needing callback notifications. Following the Up() callbacks, each
// package's SignaledFinish() is called as well so that packages may share code between
// initial configuration and reconfiguration.
//
func Up(confMap conf.ConfMap) (err error) {
	return up(confMap)
}

// Signaled should be called during execution of a signal handler for e.g. SIGHUP. All
// SignaledStart() callbacks (reverse registration order) precede all SignaledFinish()
// callbacks (registration order).
//
func Signaled(confMap conf.ConfMap) (err error) {
	return signaled(confMap)
}

// Down should be called just before shutdown by the main() (or teardown func) of each
// program. Prior to the Down() callbacks, each package's SignaledStart() is called.
//
func Down(confMap conf.ConfMap) (err error) {
	return down(confMap)
}

// RegisteredPackages returns the names of all registered packages in registration order.
func RegisteredPackages() (packageNames []string) {
	return registeredPackages()
}
