// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/transitions"
)

const testTCPPort = "53461"

var (
	testConfMap conf.ConfMap
	testDir     string
)

func testSetup(t *testing.T) {
	var (
		err                error
		testConfMapStrings []string
	)

	testDir, err = ioutil.TempDir("", "httpserver")
	if nil != err {
		t.Fatalf("ioutil.TempDir() failed: %v", err)
	}

	testConfMapStrings = []string{
		"Logging.LogFilePath=/dev/null",
		"Logging.LogToConsole=false",
		"BackingStore.Directory=" + filepath.Join(testDir, "store"),
		"Endpoint.DeviceName=httptest",
		"HTTPServer.IPAddr=localhost",
		"HTTPServer.TCPPort=" + testTCPPort,
	}

	testConfMap, err = conf.MakeConfMapFromStrings(testConfMapStrings)
	if nil != err {
		t.Fatalf("conf.MakeConfMapFromStrings() failed: %v", err)
	}

	err = transitions.Up(testConfMap)
	if nil != err {
		t.Fatalf("transitions.Up() failed: %v", err)
	}
}

func testTeardown(t *testing.T) {
	var (
		err error
	)

	err = transitions.Down(testConfMap)
	if nil != err {
		t.Fatalf("transitions.Down() failed: %v", err)
	}

	_ = os.RemoveAll(testDir)
}
