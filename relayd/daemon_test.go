// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package relayd

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/bufaccess"
	"github.com/NVIDIA/filerelay/endpoint"
	"github.com/NVIDIA/filerelay/handler"
)

const testConfTemplate = `
[Logging]
LogFilePath:      /dev/null
LogToConsole:     false

[BackingStore]
Directory:        %DIR%

[Endpoint]
DeviceName:       relaydtest
BackingStoreName: %NAME%
`

func writeTestConf(t *testing.T, confFile string, dir string, backingStoreName string) {
	confContents := testConfTemplate
	confContents = strings.ReplaceAll(confContents, "%DIR%", dir)
	confContents = strings.ReplaceAll(confContents, "%NAME%", backingStoreName)
	require.NoError(t, ioutil.WriteFile(confFile, []byte(confContents), 0600))
}

func TestDaemon(t *testing.T) {
	var (
		wg sync.WaitGroup
	)

	testDir, err := ioutil.TempDir("", "relayd")
	require.NoError(t, err)
	defer func() { _ = os.RemoveAll(testDir) }()

	confFile := filepath.Join(testDir, "relayd.conf")
	writeTestConf(t, confFile, filepath.Join(testDir, "store"), "first.dat")

	errChan := make(chan error, 1) // Must be buffered to avoid race

	go Daemon(confFile, []string{"HTTPServer.TCPPort=0"}, errChan, &wg, []string{"relayd.test"}, unix.SIGHUP, unix.SIGTERM)

	select {
	case err = <-errChan:
		require.NoError(t, err, "Daemon() failed to come up")
	case <-time.After(10 * time.Second):
		t.Fatal("Daemon() never came up")
	}

	session, err := endpoint.Open("relaydtest", nil)
	require.NoError(t, err)

	output := make([]byte, 64)
	completion := session.Control(bufaccess.IoctlMethodBuffered, []byte("hello relayd"), output)
	require.NoError(t, completion.Status)
	assert.Equal(t, handler.PayloadString, string(output[:completion.Information]))

	require.NoError(t, session.Write([]byte("survives SIGHUP")).Status)

	// SIGHUP re-reads the file; the open session is kept
	writeTestConf(t, confFile, filepath.Join(testDir, "store"), "second.dat")
	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGHUP))

	assert.Eventually(t, func() bool {
		return "second.dat" == endpoint.Status().ConfiguredBackingStoreName
	}, 10*time.Second, 20*time.Millisecond)

	assert.False(t, session.Closed())
	dst := make([]byte, 64)
	completion = session.Read(dst)
	require.NoError(t, completion.Status)
	assert.Equal(t, "survives SIGHUP", string(dst[:completion.Information]))
	require.NoError(t, session.Close())

	session, err = endpoint.Open("relaydtest", nil)
	require.NoError(t, err)
	assert.Equal(t, "second.dat", endpoint.Status().BackingStoreName)
	require.NoError(t, session.Close())

	// Send ourself a SIGTERM to signal normal termination of Daemon()
	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGTERM))

	select {
	case err = <-errChan:
		require.NoError(t, err, "Daemon() exited with error")
	case <-time.After(10 * time.Second):
		t.Fatal("Daemon() never exited")
	}

	wg.Wait()

	_, err = endpoint.Open("relaydtest", nil)
	assert.True(t, blunder.Is(err, blunder.NotActiveError))
}

func TestDaemonBadConfFile(t *testing.T) {
	var (
		wg sync.WaitGroup
	)

	errChan := make(chan error, 1)

	Daemon("/nonexistent/relayd.conf", nil, errChan, &wg, nil, unix.SIGTERM)

	assert.Error(t, <-errChan)
}
