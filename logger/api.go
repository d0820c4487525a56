// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides logging wrappers
//
// These wrappers allow us to standardize logging while still using a third-party
// logging package.
//
// This package is implemented on top of the sirupsen/logrus package:
//   https://github.com/sirupsen/logrus
//
// The APIs here add package, calling function, and goroutine to all logs.
//
// Logging of trace logs is enabled/disabled on a per package basis.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/NVIDIA/filerelay/utils"
)

type Level int

// Our logging levels - These are the different logging levels supported by this package.
//
// We have more detailed logging levels than the logrus log package.
// As a result, when we do our logging we need to map from our levels
// to the logrus ones before calling logrus APIs.
const (
	// PanicLevel corresponds to logrus.PanicLevel; Logrus will log and then call panic with the log message
	PanicLevel Level = iota
	// FatalLevel corresponds to logrus.FatalLevel; Logrus will log and then calls `os.Exit(1)`.
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel

	// TraceLevel is used for operational logs that trace success path through the relay.
	// Whether these are logged is controlled on a per-package basis by Logging.TraceLevelLogging.
	// When enabled, these are logged at logrus.InfoLevel.
	TraceLevel
)

// packageTraceSettings controls whether tracing is enabled for particular packages.
//
// Note: In order to enable tracing for a package using the "Logging.TraceLevelLogging"
// config variable, the package must be in this map.
//
var packageTraceSettings = map[string]bool{
	"admit":        false,
	"backingstore": false,
	"bufaccess":    false,
	"callermem":    false,
	"dispatch":     false,
	"endpoint":     false,
	"handler":      false,
	"httpserver":   false,
	"logger":       false,
	"procnotify":   false,
	"relayd":       false,
	"transitions":  false,
}

var (
	traceSettingsLock sync.RWMutex
	traceLevelEnabled bool
)

func setTraceLoggingLevel(confStrSlice []string) {
	traceSettingsLock.Lock()

	for pkg := range packageTraceSettings {
		packageTraceSettings[pkg] = false
	}
	traceLevelEnabled = false

HandlePkgs:
	for _, pkg := range confStrSlice {
		switch pkg {
		case "none":
			break HandlePkgs
		case "all":
			for pkg := range packageTraceSettings {
				packageTraceSettings[pkg] = true
			}
			traceLevelEnabled = true
		default:
			if _, ok := packageTraceSettings[pkg]; ok {
				packageTraceSettings[pkg] = true
				traceLevelEnabled = true
			}
		}
	}

	enabledPackages := make([]string, 0, len(packageTraceSettings))
	for pkg, isEnabled := range packageTraceSettings {
		if isEnabled {
			enabledPackages = append(enabledPackages, pkg)
		}
	}

	traceSettingsLock.Unlock()

	if 0 < len(enabledPackages) {
		Infof("trace logging enabled for: %s", strings.Join(enabledPackages, ","))
	}
}

// TraceEnabled returns whether tracing is enabled for the named package.
func TraceEnabled(pkg string) bool {
	traceSettingsLock.RLock()
	isEnabled := traceLevelEnabled && packageTraceSettings[pkg]
	traceSettingsLock.RUnlock()
	return isEnabled
}

// Log fields supported by logger:
const (
	packageKey  string = "package"
	functionKey string = "function"
	errorKey    string = "error"
	gidKey      string = "goroutine"
	requestKey  string = "request" // Request ID, for packages admit/dispatch/handler
)

// FuncCtx saves the fields common between log calls within a function so that
// package and function are only extracted once.
type FuncCtx struct {
	funcContext *log.Entry
}

func (ctx *FuncCtx) getPackage() string {
	pkg, ok := ctx.funcContext.Data[packageKey].(string)
	if ok {
		return pkg
	}
	return ""
}

func newFuncCtxWithFields(level int, fields log.Fields) (ctx *FuncCtx) {
	fn, pkg, gid := utils.GetFuncPackage(level + 1)

	fields[functionKey] = fn
	fields[packageKey] = pkg
	fields[gidKey] = gid

	ctx = &FuncCtx{funcContext: log.WithFields(fields)}
	return
}

func newFuncCtx(level int) (ctx *FuncCtx) {
	return newFuncCtxWithFields(level+1, make(log.Fields))
}

func newFuncCtxWithField(level int, key string, value interface{}) (ctx *FuncCtx) {
	fields := make(log.Fields)
	fields[key] = value
	return newFuncCtxWithFields(level+1, fields)
}

var backtraceOneLevel int = 1

func logEnabled(level Level) bool {
	if TraceLevel == level {
		traceSettingsLock.RLock()
		enabled := traceLevelEnabled
		traceSettingsLock.RUnlock()
		return enabled
	}
	return true
}

// EXTERNAL logging APIs
// These APIs are in the style of those provided by the logrus package.

func Error(args ...interface{}) {
	level := ErrorLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(level, fmt.Sprint(args...))
}

func Info(args ...interface{}) {
	level := InfoLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(level, fmt.Sprint(args...))
}

func Errorf(format string, args ...interface{}) {
	level := ErrorLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func Fatalf(format string, args ...interface{}) {
	level := FatalLevel
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	level := InfoLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...interface{}) {
	level := TraceLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	level := WarnLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func ErrorfWithError(err error, format string, args ...interface{}) {
	level := ErrorLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func FatalfWithError(err error, format string, args ...interface{}) {
	level := FatalLevel
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func InfofWithError(err error, format string, args ...interface{}) {
	level := InfoLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func PanicfWithError(err error, format string, args ...interface{}) {
	level := PanicLevel
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func TracefWithError(err error, format string, args ...interface{}) {
	level := TraceLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(level, fmt.Sprintf(format, args...))
}

func WarnfWithError(err error, format string, args ...interface{}) {
	level := WarnLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(level, fmt.Sprintf(format, args...))
}

// TracefWithRequest emits a trace log tagged with the ID of the relay request it concerns.
func TracefWithRequest(requestID string, format string, args ...interface{}) {
	level := TraceLevel
	if !logEnabled(level) {
		return
	}
	ctx := newFuncCtxWithField(backtraceOneLevel, requestKey, requestID)
	ctx.log(level, fmt.Sprintf(format, args...))
}

// TraceEnter logs entry to the calling function and returns a FuncCtx with which
// the matching TraceExit/TraceExitErr call should be made.
func TraceEnter(argsPrefix string, args ...interface{}) (ctx FuncCtx) {
	ctx = *newFuncCtx(backtraceOneLevel)
	if !logEnabled(TraceLevel) {
		return
	}
	ctx.traceInternal(">> called", argsPrefix, args...)
	return
}

func (ctx *FuncCtx) TraceExit(argsPrefix string, args ...interface{}) {
	if !logEnabled(TraceLevel) {
		return
	}
	ctx.traceInternal("<< returning", argsPrefix, args...)
}

func (ctx *FuncCtx) TraceExitErr(argsPrefix string, err error, args ...interface{}) {
	if !logEnabled(TraceLevel) {
		return
	}
	errCtx := FuncCtx{funcContext: ctx.funcContext.WithField(errorKey, err)}
	errCtx.traceInternal("<< returning", argsPrefix, args...)
}

func (ctx *FuncCtx) traceInternal(formatPrefix string, argsPrefix string, args ...interface{}) {
	format := formatPrefix + " %s" + strings.Repeat(" %+v", len(args))
	newArgs := append([]interface{}{argsPrefix}, args...)
	ctx.log(TraceLevel, fmt.Sprintf(format, newArgs...))
}

// log is the common low-level logging function used internal to this package.
//
// Following the example of logrus.entry.go's equivalent function, it is not
// declared with a pointer receiver.
//
func (ctx FuncCtx) log(level Level, args ...interface{}) {
	if (level == TraceLevel) && !TraceEnabled(ctx.getPackage()) {
		return
	}

	switch level {
	case PanicLevel:
		ctx.funcContext.Panic(args...)
	case FatalLevel:
		ctx.funcContext.Fatal(args...)
	case ErrorLevel:
		ctx.funcContext.Error(args...)
	case WarnLevel:
		ctx.funcContext.Warn(args...)
	case TraceLevel:
		ctx.funcContext.Info(args...)
	case InfoLevel:
		ctx.funcContext.Info(args...)
	}
}

// AddLogTarget adds another target for log messages to be written to. writer is
// called once for each log message.
//
func AddLogTarget(writer io.Writer) {
	addLogTarget(writer)
}

// LogBuffer captures the most recent log entries. Useful for writing test cases.
type LogBuffer struct {
	sync.Mutex
	LogEntries   []string // most recent log entry is [0]
	TotalEntries int      // count of all entries seen
}

type LogTarget struct {
	LogBuf *LogBuffer
}

// Init prepares a LogTarget to hold up to nEntry log entries.
func (target *LogTarget) Init(nEntry int) {
	target.LogBuf = &LogBuffer{TotalEntries: 0}
	target.LogBuf.LogEntries = make([]string, nEntry)
}

// Write is called by logrus for each log entry
func (target LogTarget) Write(p []byte) (n int, err error) {
	target.LogBuf.Lock()
	defer target.LogBuf.Unlock()

	target.LogBuf.TotalEntries++

	copy(target.LogBuf.LogEntries[1:], target.LogBuf.LogEntries[:len(target.LogBuf.LogEntries)-1])
	target.LogBuf.LogEntries[0] = strings.TrimRight(string(p), " \t\n")

	n = len(p)
	err = nil
	return
}

// Contains reports whether any captured entry contains substr.
func (target LogTarget) Contains(substr string) bool {
	target.LogBuf.Lock()
	defer target.LogBuf.Unlock()

	for _, entry := range target.LogBuf.LogEntries {
		if strings.Contains(entry, substr) {
			return true
		}
	}
	return false
}
