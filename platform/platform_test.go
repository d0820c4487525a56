// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileSync(t *testing.T) {
	dir, err := ioutil.TempDir("", "platform")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "sync")

	file, err := OpenFileSync(path, os.O_RDWR|os.O_CREATE, 0600)
	require.NoError(t, err)

	n, err := file.WriteAt([]byte("persisted"), 0)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	require.NoError(t, file.Close())

	buf, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(buf))

	_, err = OpenFileSync(filepath.Join(dir, "missing", "file"), os.O_RDWR, 0600)
	assert.Error(t, err)
}

func TestMemSize(t *testing.T) {
	assert.True(t, MemSize() > 0)
}
