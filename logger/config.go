// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/NVIDIA/filerelay/conf"
)

// multiWriter fans each log entry out to the log file, console, and any added targets
type multiWriter struct {
	sync.Mutex
	writers []io.Writer
}

func (mw *multiWriter) addWriter(writer io.Writer) {
	mw.Lock()
	mw.writers = append(mw.writers, writer)
	mw.Unlock()
}

func (mw *multiWriter) clear() {
	mw.Lock()
	mw.writers = nil
	mw.Unlock()
}

func (mw *multiWriter) Write(p []byte) (n int, err error) {
	mw.Lock()
	defer mw.Unlock()

	for _, writer := range mw.writers {
		n, err = writer.Write(p)
		if nil != err {
			return
		}
	}

	n = len(p)
	err = nil
	return
}

var (
	logFile   *os.File
	logOutput = &multiWriter{writers: []io.Writer{os.Stderr}}
	logTargets []io.Writer
)

func init() {
	log.SetFormatter(&log.TextFormatter{DisableColors: true})
	log.SetOutput(logOutput)
	log.SetLevel(log.DebugLevel)
}

func addLogTarget(writer io.Writer) {
	logTargets = append(logTargets, writer)
	logOutput.addWriter(writer)
}

func openLogFile(confMap conf.ConfMap) (err error) {
	logFilePath, _ := confMap.FetchOptionValueString("Logging", "LogFilePath")

	logToConsole, err := confMap.FetchOptionValueBool("Logging", "LogToConsole")
	if nil != err {
		logToConsole = false
	}

	logOutput.clear()

	if "" == logFilePath {
		// Accept default destination of stderr
		logOutput.addWriter(os.Stderr)
	} else {
		logFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if nil != err {
			logOutput.addWriter(os.Stderr)
			log.Errorf("couldn't open log file: %v", err)
			return
		}
		logOutput.addWriter(logFile)
		if logToConsole {
			logOutput.addWriter(os.Stderr)
		}
	}

	for _, target := range logTargets {
		logOutput.addWriter(target)
	}

	err = nil
	return
}

func closeLogFile() {
	if nil != logFile {
		_ = logFile.Close()
		logFile = nil
	}
}

func Up(confMap conf.ConfMap) (err error) {
	err = openLogFile(confMap)
	if nil != err {
		return
	}

	traceConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	setTraceLoggingLevel(traceConfSlice)

	Infof("logger is starting up")

	err = nil
	return
}

func SignaledStart(confMap conf.ConfMap) (err error) {
	err = nil
	return
}

// SignaledFinish reopens the log file (supporting log rotation) and re-reads trace settings.
func SignaledFinish(confMap conf.ConfMap) (err error) {
	closeLogFile()

	err = openLogFile(confMap)
	if nil != err {
		return
	}

	traceConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	setTraceLoggingLevel(traceConfSlice)

	err = nil
	return
}

func Down(confMap conf.ConfMap) (err error) {
	Infof("logger is shutting down")

	closeLogFile()

	logOutput.clear()
	logOutput.addWriter(os.Stderr)
	for _, target := range logTargets {
		logOutput.addWriter(target)
	}

	setTraceLoggingLevel(nil)

	err = nil
	return
}
