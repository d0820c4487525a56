// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package backingstore

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/halter"
	"github.com/NVIDIA/filerelay/transitions"
)

var (
	testConfMap conf.ConfMap
	testDir     string
)

func testSetup(t *testing.T, extraConfStrings ...string) {
	var (
		err error
	)

	testDir, err = ioutil.TempDir("", "backingstore")
	require.NoError(t, err)

	confStrings := []string{
		"Logging.LogFilePath=/dev/null",
		"BackingStore.Directory=" + filepath.Join(testDir, "store"),
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

func TestOpenCreatesWithoutTruncating(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	path := filepath.Join(testDir, "store", "relay.dat")
	require.NoError(t, ioutil.WriteFile(path, []byte("existing contents"), 0600))

	handle, err := Open("relay.dat")
	require.NoError(t, err)
	assert.Equal(t, "relay.dat", handle.Name())
	assert.Equal(t, path, handle.Path())

	dst := make([]byte, 64)
	n, err := handle.ReadAt0(dst)
	require.NoError(t, err)
	assert.Equal(t, "existing contents", string(dst[:n]))
	require.NoError(t, handle.Close())

	// absent file is created
	handle, err = Open("fresh.dat")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(testDir, "store", "fresh.dat"))
	assert.NoError(t, err)
	require.NoError(t, handle.Close())
}

func TestOpenNameConfinement(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	handle, err := Open("../../escape.dat")
	require.NoError(t, err)
	assert.Equal(t, "escape.dat", handle.Name())
	assert.True(t, strings.HasPrefix(handle.Path(), filepath.Join(testDir, "store")))
	require.NoError(t, handle.Close())

	for _, name := range []string{"", "/", ".", "../.."} {
		_, err = Open(name)
		assert.True(t, blunder.Is(err, blunder.InvalidArgError), "name %q", name)
	}

	// parent directory missing
	_, err = Open("no/such/dir/file")
	assert.True(t, blunder.Is(err, blunder.IOError))
}

func TestReadWriteAtZero(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	handle, err := Open("rw.dat")
	require.NoError(t, err)
	defer handle.Close()

	n, err := handle.WriteAt0([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)

	// second write lands at offset 0 again and keeps the tail
	n, err = handle.WriteAt0([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	dst := make([]byte, 4)
	n, err = handle.ReadAt0(dst)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
	assert.Equal(t, "abc3", string(dst))

	// every read starts at 0 again
	dst = make([]byte, 32)
	n, err = handle.ReadAt0(dst)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)
	assert.Equal(t, "abc3456789", string(dst[:n]))

	opens, reads, writes := Counts()
	assert.Equal(t, uint64(1), opens)
	assert.Equal(t, uint64(2), reads)
	assert.Equal(t, uint64(2), writes)

	assert.Contains(t, bucketstats.SprintStats("backingstore", "*"), "ReadAt0Calls total:2")
}

func TestTruncateOnWrite(t *testing.T) {
	testSetup(t, "BackingStore.TruncateOnWrite=true", "BackingStore.SyncWrites=true")
	defer testTeardown(t)

	handle, err := Open("trunc.dat")
	require.NoError(t, err)
	defer handle.Close()

	_, err = handle.WriteAt0([]byte("a longer record"))
	require.NoError(t, err)
	_, err = handle.WriteAt0([]byte("short"))
	require.NoError(t, err)

	buf, err := ioutil.ReadFile(handle.Path())
	require.NoError(t, err)
	assert.Equal(t, "short", string(buf))
}

func TestClosedHandle(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	handle, err := Open("closed.dat")
	require.NoError(t, err)
	require.NoError(t, handle.Close())

	err = handle.Close()
	assert.True(t, blunder.Is(err, blunder.BadFileError))

	_, err = handle.ReadAt0(make([]byte, 8))
	assert.True(t, blunder.Is(err, blunder.BadFileError))
	_, err = handle.WriteAt0([]byte("x"))
	assert.True(t, blunder.Is(err, blunder.BadFileError))
}

func TestIOErrorFromFile(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	handle, err := Open("ioerr.dat")
	require.NoError(t, err)

	// close the file underneath the handle so the OS call itself fails
	require.NoError(t, handle.file.Close())

	n, err := handle.ReadAt0(make([]byte, 8))
	assert.True(t, blunder.Is(err, blunder.IOError))
	assert.Equal(t, uint64(0), n)

	n, err = handle.WriteAt0([]byte("x"))
	assert.True(t, blunder.Is(err, blunder.IOError))
	assert.Equal(t, uint64(0), n)

	assert.Equal(t, uint64(2), globals.stats.IOErrors.TotalGet())
}

func TestHaltBeforeWrite(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	handle, err := Open("halt.dat")
	require.NoError(t, err)
	defer handle.Close()

	_, err = handle.WriteAt0([]byte("before"))
	require.NoError(t, err)

	halter.ConfigureTestModeHaltCB(func(err error) { panic(err) })
	defer halter.ConfigureTestModeHaltCB(nil)

	require.NoError(t, halter.Arm("backingstore.WriteAt0", 1))

	assert.Panics(t, func() { _, _ = handle.WriteAt0([]byte("after!")) })

	dst := make([]byte, 16)
	n, err := handle.ReadAt0(dst)
	require.NoError(t, err)
	assert.Equal(t, "before", string(dst[:n]))
}
