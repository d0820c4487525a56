// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package blunder provides error-handling wrappers
//
// These wrappers allow callers to attach an errno-style classification to Go errors
// while still conforming to the Go error interface. Every failure a relay request can
// complete with is expressed as one of the RelayError constants below, so a caller
// may classify a Completion's status with Is().
//
// This package is implemented on top of the ansel1/merry package:
//   https://github.com/ansel1/merry
//
// merry always attaches a stack trace; Details() and Stacktrace() expose it.
package blunder

import (
	"fmt"

	"github.com/ansel1/merry"
	"golang.org/x/sys/unix"

	"github.com/NVIDIA/filerelay/logger"
)

// RelayError is the errno value carried by an annotated error.
//
// The constants below correspond to linux/POSIX errnos as defined in errno.h. Aliases
// name the relay-specific failure classes in terms of those errnos.
//
type RelayError int

const (
	NotPermError      RelayError = RelayError(int(unix.EPERM))   // Operation not permitted
	NotFoundError     RelayError = RelayError(int(unix.ENOENT))  // No such file or directory
	IOError           RelayError = RelayError(int(unix.EIO))     // I/O error
	BadFileError      RelayError = RelayError(int(unix.EBADF))   // Bad file number
	TryAgainError     RelayError = RelayError(int(unix.EAGAIN))  // Try again
	OutOfMemoryError  RelayError = RelayError(int(unix.ENOMEM))  // Out of memory
	PermDeniedError   RelayError = RelayError(int(unix.EACCES))  // Permission denied
	BadAddressError   RelayError = RelayError(int(unix.EFAULT))  // Bad address
	DevBusyError      RelayError = RelayError(int(unix.EBUSY))   // Device or resource busy
	NoDeviceError     RelayError = RelayError(int(unix.ENODEV))  // No such device
	InvalidArgError   RelayError = RelayError(int(unix.EINVAL))  // Invalid argument
	NoSpaceError      RelayError = RelayError(int(unix.ENOSPC))  // No space left on device
	OutOfRangeError   RelayError = RelayError(int(unix.ERANGE))  // Math result not representable
	NotSupportedError RelayError = RelayError(int(unix.ENOTSUP)) // Operation not supported
	TimedOut          RelayError = RelayError(int(unix.ETIMEDOUT))
)

// Relay failure classes expressed in terms of the errnos above
const (
	NotActiveError         RelayError = NotFoundError     // Endpoint/session/dispatcher not in a usable state
	InsufficientResources  RelayError = OutOfMemoryError  // System buffer or request context unobtainable
	ValidationError        RelayError = BadAddressError   // Caller memory failed probe/pin or length reconcile
	UnsupportedOperation   RelayError = NotSupportedError // Unrecognized control code
	InvalidParameterError  RelayError = InvalidArgError   // Zero length or undersized buffer
	ExclusiveAccessError   RelayError = DevBusyError      // Endpoint already open or region pinned
	BackingStoreReadError  RelayError = IOError
	BackingStoreWriteError RelayError = IOError
)

const SuccessError RelayError = 0

const ( // reset iota to 0
	// Errors that are internal/specific to filerelay
	UnpackError RelayError = 1000 + iota
	PackError
)

const successErrno = 0
const failureErrno = -1

var relayErrorNames = map[RelayError]string{
	SuccessError:      "SuccessError",
	NotPermError:      "NotPermError",
	NotFoundError:     "NotFoundError",
	IOError:           "IOError",
	BadFileError:      "BadFileError",
	TryAgainError:     "TryAgainError",
	OutOfMemoryError:  "OutOfMemoryError",
	PermDeniedError:   "PermDeniedError",
	BadAddressError:   "BadAddressError",
	DevBusyError:      "DevBusyError",
	NoDeviceError:     "NoDeviceError",
	InvalidArgError:   "InvalidArgError",
	NoSpaceError:      "NoSpaceError",
	OutOfRangeError:   "OutOfRangeError",
	NotSupportedError: "NotSupportedError",
	TimedOut:          "TimedOut",
	UnpackError:       "UnpackError",
	PackError:         "PackError",
}

// Value returns the int value for the specified RelayError constant
func (errValue RelayError) Value() int {
	return int(errValue)
}

func (errValue RelayError) String() string {
	name, ok := relayErrorNames[errValue]
	if ok {
		return name
	}
	return fmt.Sprintf("RelayError(%d)", int(errValue))
}

// NewError creates a new merry/blunder.RelayError-annotated error using the given
// format string and arguments.
func NewError(errValue RelayError, format string, a ...interface{}) error {
	return merry.WrapSkipping(fmt.Errorf(format, a...), 1).WithValue("errno", int(errValue))
}

// AddError is used to add relay error detail to a Go error.
//
// NOTE: merry replaces any previously attached errno; a replacement is logged
//       to help catch unintended reclassification.
//
func AddError(e error, errValue RelayError) error {
	if e == nil {
		// The caller obviously intends a non-nil error here
		return merry.New("regular error").WithValue("errno", int(errValue))
	}

	prevValue := Errno(e)
	if prevValue != successErrno && prevValue != failureErrno && prevValue != int(errValue) {
		logger.Warnf("replacing error value %v with value %v for error %v", prevValue, int(errValue), e)
	}

	return merry.WrapSkipping(e, 1).WithValue("errno", int(errValue))
}

// Errno extracts errno from the error, if it was previously wrapped.
// Otherwise a default value is returned.
//
func Errno(e error) int {
	if e == nil {
		return successErrno
	}

	var errno = failureErrno
	tmp := merry.Value(e, "errno")
	if tmp != nil {
		errno = tmp.(int)
	}

	return errno
}

// ErrorString returns e's message followed by its errno, if one is attached.
func ErrorString(e error) string {
	if e == nil {
		return ""
	}

	errPlusVal := e.Error()

	tmp := merry.Value(e, "errno")
	if tmp != nil {
		errPlusVal = fmt.Sprintf("%s. Error Value: %v", errPlusVal, tmp.(int))
	}

	return errPlusVal
}

// Is checks if an error matches a particular RelayError
//
// NOTE: Because the value of the underlying errno is used to do this check, one cannot
//       use this API to distinguish between aliases sharing an errno value
//       (e.g. ValidationError and BadAddressError).
//
func Is(e error, theError RelayError) bool {
	return Errno(e) == theError.Value()
}

func IsNot(e error, theError RelayError) bool {
	return Errno(e) != theError.Value()
}

func IsSuccess(e error) bool {
	return Errno(e) == successErrno
}

func IsNotSuccess(e error) bool {
	return Errno(e) != successErrno
}

// Location returns the file and line number of the code that generated the error.
// Returns zero values if e has no stacktrace.
func Location(e error) (file string, line int) {
	file, line = merry.Location(e)
	return
}

// Details wraps merry.Details, which returns all error details including stacktrace in a string.
func Details(e error) string {
	return merry.Details(e)
}

// Stacktrace wraps merry.Stacktrace, which returns error stacktrace (if set) in a string.
func Stacktrace(e error) string {
	return merry.Stacktrace(e)
}
