// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package blunder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/transitions"
)

var testConfMap conf.ConfMap

func testSetup(t *testing.T) {
	var (
		err error
	)

	testConfMap, err = conf.MakeConfMapFromStrings([]string{"Logging.LogFilePath=/dev/null"})
	require.NoError(t, err)

	err = transitions.Up(testConfMap)
	require.NoError(t, err)
}

func testTeardown(t *testing.T) {
	err := transitions.Down(testConfMap)
	require.NoError(t, err)
}

func TestValues(t *testing.T) {
	assert.Equal(t, int(unix.ENOMEM), OutOfMemoryError.Value())
	assert.Equal(t, int(unix.EFAULT), BadAddressError.Value())
	assert.Equal(t, int(unix.EIO), IOError.Value())
	assert.Equal(t, int(unix.ENOTSUP), NotSupportedError.Value())
	assert.Equal(t, int(unix.EINVAL), InvalidArgError.Value())
	assert.Equal(t, int(unix.EBUSY), DevBusyError.Value())

	assert.Equal(t, NotFoundError, NotActiveError)
	assert.Equal(t, BadAddressError, ValidationError)
	assert.Equal(t, OutOfMemoryError, InsufficientResources)

	assert.Equal(t, "BadAddressError", BadAddressError.String())
	assert.Equal(t, "RelayError(4242)", RelayError(4242).String())
}

func TestDefaultErrno(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	var err error

	assert.Equal(t, successErrno, Errno(err))
	assert.True(t, IsSuccess(err))
	assert.False(t, IsNotSuccess(err))
	assert.Equal(t, "", ErrorString(err))

	err = fmt.Errorf("This is an ordinary error")

	assert.Equal(t, failureErrno, Errno(err))
	assert.False(t, IsSuccess(err))
	assert.True(t, IsNotSuccess(err))

	err = AddError(err, InvalidArgError)
	assert.Equal(t, InvalidArgError.Value(), Errno(err))
	assert.Contains(t, ErrorString(err), "This is an ordinary error")
}

func TestAddValue(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	// Add value to a nil error (not recommended as a strategy, but it needs to work anyway)
	var err error
	err = AddError(err, DevBusyError)
	assert.True(t, Is(err, DevBusyError))
	assert.False(t, Is(err, NotFoundError))
	assert.True(t, IsNot(err, InvalidArgError))
	assert.True(t, IsNotSuccess(err))

	err = fmt.Errorf("This is an ordinary error")
	err = AddError(err, BadAddressError)
	assert.True(t, Is(err, ValidationError))

	// Replacing the value is permitted (and logged)
	err = AddError(err, IOError)
	assert.True(t, Is(err, IOError))
	assert.False(t, Is(err, BadAddressError))
}

func TestNewError(t *testing.T) {
	err := NewError(NotSupportedError, "control code %08X not recognized", 0x12345678)
	require.Error(t, err)
	assert.Equal(t, "control code 12345678 not recognized", err.Error())
	assert.True(t, Is(err, UnsupportedOperation))

	file, line := Location(err)
	assert.Contains(t, file, "api_test.go")
	assert.NotZero(t, line)
	assert.NotEmpty(t, Stacktrace(err))
	assert.Contains(t, Details(err), "control code")
}
