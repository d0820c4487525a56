// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/transitions"
)

const testDeviceName = "relaytest"

var (
	testConfMap conf.ConfMap
	testDir     string
)

func testSetup(t *testing.T, extraConfStrings ...string) {
	var (
		err error
	)

	testDir, err = ioutil.TempDir("", "endpoint")
	require.NoError(t, err)

	confStrings := []string{
		"Logging.LogFilePath=/dev/null",
		"Logging.TraceLevelLogging=endpoint handler",
		"BackingStore.Directory=" + filepath.Join(testDir, "store"),
		"BufferAccess.MaxSystemBufferSize=65536",
		"Endpoint.DeviceName=" + testDeviceName,
		"Endpoint.BackingStoreName=relay.dat",
	}
	confStrings = append(confStrings, extraConfStrings...)

	testConfMap, err = conf.MakeConfMapFromStrings(confStrings)
	require.NoError(t, err)

	err = transitions.Up(testConfMap)
	require.NoError(t, err)
}

func testTeardown(t *testing.T) {
	err := transitions.Down(testConfMap)
	require.NoError(t, err)

	_ = os.RemoveAll(testDir)
}
