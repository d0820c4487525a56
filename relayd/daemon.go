// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package relayd runs the relay as a long-lived dæmon: every registered package
// is brought up from a .conf file plus overrides, SIGHUP re-reads both and
// re-applies them, and any other caught signal brings everything down.
package relayd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/transitions"

	// Force importing of the following "top-most" packages
	_ "github.com/NVIDIA/filerelay/endpoint"
	_ "github.com/NVIDIA/filerelay/httpserver"
	_ "github.com/NVIDIA/filerelay/statslogger"
)

func computeConfMap(confFile string, confStrings []string) (confMap conf.ConfMap, err error) {
	confMap, err = conf.MakeConfMapFromFile(confFile)
	if nil != err {
		return
	}

	err = confMap.UpdateFromStrings(confStrings)
	return
}

// Daemon is launched as a GoRoutine that brings up the relay. During startup, the parent should read errChan
// to await Daemon getting to the point where it is ready to handle the specified signal set. Any errors
// encountered before or after this point will be sent to errChan (and be non-nil of course).
func Daemon(confFile string, confStrings []string, errChan chan error, wg *sync.WaitGroup, execArgs []string, signals ...os.Signal) {
	var (
		confMap        conf.ConfMap
		err            error
		signalReceived os.Signal
	)

	confMap, err = computeConfMap(confFile, confStrings)
	if nil != err {
		errChan <- err
		return
	}

	// Note: signalChan must be buffered to avoid race with window between
	// arming handler and blocking on the chan read when signals might
	// otherwise be lost.  No signals will be processed until
	// transitions.Up() finishes, but an incoming SIGHUP will not cause the
	// process to immediately exit.
	signalChan := make(chan os.Signal, 16)

	// if signals is empty it means "catch all signals" it is possible to catch
	signal.Notify(signalChan, signals...)
	defer signal.Stop(signalChan)

	err = transitions.Up(confMap)
	if nil != err {
		errChan <- err
		return
	}
	wg.Add(1)
	logger.Infof("relayd is starting up (PID %d); invoked as '%s'", os.Getpid(), strings.Join(execArgs, "' '"))
	defer func() {
		logger.Infof("relayd is shutting down (PID %d)", os.Getpid())
		err = transitions.Down(confMap)
		if nil != err {
			logger.Errorf("transitions.Down() failed: %v", err)
		}
		errChan <- err
		wg.Done()
	}()

	// indicate transitions finished and signal handlers have been armed successfully
	errChan <- nil

	// Await a signal - reloading confFile each SIGHUP - exiting otherwise
	for {
		signalReceived = <-signalChan
		logger.Infof("Received signal: '%v'", signalReceived)

		// these signals are normally ignored, but if "signals..." above is empty
		// they are delivered via the channel.  we should simply ignore them.
		if signalReceived == unix.SIGCHLD || signalReceived == unix.SIGURG ||
			signalReceived == unix.SIGWINCH || signalReceived == unix.SIGCONT ||
			signalReceived == unix.SIGPIPE {
			logger.Infof("Ignored signal: '%v'", signalReceived)
			continue
		}

		// SIGHUP means reconfig but any other signal means time to exit
		if unix.SIGHUP != signalReceived {
			logger.Infof("signal catcher is shutting down relayd (PID %d)", os.Getpid())

			if signalReceived != unix.SIGTERM && signalReceived != unix.SIGINT {
				logger.Errorf("relayd received unexpected signal: %v", signalReceived)
			}

			return
		}

		// caught SIGHUP -- recompute confMap and re-apply; a bad file keeps the old confMap
		newConfMap, newErr := computeConfMap(confFile, confStrings)
		if nil != newErr {
			logger.ErrorfWithError(newErr, "SIGHUP: failed to load updated config; keeping current one")
			continue
		}

		err = transitions.Signaled(newConfMap)
		if nil != err {
			err = fmt.Errorf("transitions.Signaled() failed: %v", err)
			logger.ErrorfWithError(err, "SIGHUP: shutting down")
			return
		}

		confMap = newConfMap
	}
}
