// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfFile(t *testing.T, dir string, name string, contents string) (path string) {
	path = filepath.Join(dir, name)
	err := ioutil.WriteFile(path, []byte(contents), 0644)
	require.NoError(t, err)
	return
}

func TestUpdateFromFile(t *testing.T) {
	dir := t.TempDir()

	writeTestConfFile(t, dir, "included.conf",
		"[BackingStore]\n"+
			"Directory : /var/tmp/relay ; where the backing file lives\n"+
			"SyncWrites = false\n")

	mainPath := writeTestConfFile(t, dir, "main.conf",
		"# A comment on its own line\n"+
			"[Logging]\n"+
			"LogFilePath =\n"+
			"TraceLevelLogging : dispatch handler, admit\n"+
			"\n"+
			".include ./included.conf\n"+
			"\n"+
			"[BufferAccess]\n"+
			"MaxSystemBufferSize: 0x10000\n")

	confMap, err := MakeConfMapFromFile(mainPath)
	require.NoError(t, err)

	logFilePath, err := confMap.FetchOptionValueStringSlice("Logging", "LogFilePath")
	require.NoError(t, err)
	assert.Empty(t, logFilePath)

	traceLevelLogging, err := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	require.NoError(t, err)
	assert.Equal(t, []string{"dispatch", "handler", "admit"}, traceLevelLogging)

	directory, err := confMap.FetchOptionValueString("BackingStore", "Directory")
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/relay", directory)

	syncWrites, err := confMap.FetchOptionValueBool("BackingStore", "SyncWrites")
	require.NoError(t, err)
	assert.False(t, syncWrites)

	maxSystemBufferSize, err := confMap.FetchOptionValueUint64("BufferAccess", "MaxSystemBufferSize")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10000), maxSystemBufferSize)
}

func TestMalformedFiles(t *testing.T) {
	dir := t.TempDir()

	noSectionPath := writeTestConfFile(t, dir, "nosection.conf", "Option = Value\n")
	_, err := MakeConfMapFromFile(noSectionPath)
	assert.Error(t, err)

	badLinePath := writeTestConfFile(t, dir, "badline.conf", "[Section]\nthis is not an option line\n")
	_, err = MakeConfMapFromFile(badLinePath)
	assert.Error(t, err)

	_, err = MakeConfMapFromFile(filepath.Join(dir, "missing.conf"))
	assert.Error(t, err)
}

func TestUpdateFromStrings(t *testing.T) {
	confMap, err := MakeConfMapFromStrings([]string{
		"Endpoint.DeviceName=nonpnp",
		"TrackedLock.LockHoldTimeLimit=2s",
		"HTTPServer.TCPPort : 15346",
		"Admit.RequiredAlignment=8",
		"Section.Multi = a b,c",
	})
	require.NoError(t, err)

	deviceName, err := confMap.FetchOptionValueString("Endpoint", "DeviceName")
	require.NoError(t, err)
	assert.Equal(t, "nonpnp", deviceName)

	lockHoldTimeLimit, err := confMap.FetchOptionValueDuration("TrackedLock", "LockHoldTimeLimit")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, lockHoldTimeLimit)

	tcpPort, err := confMap.FetchOptionValueUint16("HTTPServer", "TCPPort")
	require.NoError(t, err)
	assert.Equal(t, uint16(15346), tcpPort)

	requiredAlignment, err := confMap.FetchOptionValueUint32("Admit", "RequiredAlignment")
	require.NoError(t, err)
	assert.Equal(t, uint32(8), requiredAlignment)

	_, err = confMap.FetchOptionValueString("Section", "Multi")
	assert.Error(t, err, "multi-valued option must not fetch as a single string")

	_, err = confMap.FetchOptionValueString("Endpoint", "Missing")
	assert.Error(t, err)
	_, err = confMap.FetchOptionValueString("Missing", "DeviceName")
	assert.Error(t, err)

	_, err = confMap.FetchOptionValueBool("Endpoint", "DeviceName")
	assert.Error(t, err)

	err = confMap.UpdateFromString("Endpoint.DeviceName=relay0")
	require.NoError(t, err)
	deviceName, err = confMap.FetchOptionValueString("Endpoint", "DeviceName")
	require.NoError(t, err)
	assert.Equal(t, "relay0", deviceName)

	err = confMap.UpdateFromString("   ")
	assert.Error(t, err)
	err = confMap.UpdateFromString("NoDotHere=value")
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	confMap, err := MakeConfMapFromStrings([]string{
		"B.Two=2",
		"B.One=1",
		"A.List=x,y",
	})
	require.NoError(t, err)

	assert.Equal(t, "[A]\nList: x, y\n\n[B]\nOne: 1\nTwo: 2\n", confMap.Dump())
}
