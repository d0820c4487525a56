// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetFuncPackage(t *testing.T) {
	assert := assert.New(t)

	fn, pkg, gid := GetFuncPackage(0)
	assert.Equal("utils", pkg)
	assert.Equal("TestGetFuncPackage", fn)
	assert.NotEqual(uint64(0), gid)

	assert.Equal("utils.TestGetFuncPackage", GetFnName())
}

func TestStopwatch(t *testing.T) {
	assert := assert.New(t)

	sw := NewStopwatch()
	assert.True(sw.IsRunning)
	time.Sleep(10 * time.Millisecond)
	elapsed := sw.Stop()
	assert.False(sw.IsRunning)
	assert.True(elapsed >= 10*time.Millisecond)
	assert.Equal(elapsed, sw.Elapsed())
}

func TestJSONify(t *testing.T) {
	assert := assert.New(t)

	input := struct {
		Name  string
		Count uint64
	}{"relay", 3}

	assert.Equal(`{"Name":"relay","Count":3}`, JSONify(input, false))
	assert.Equal("{\n\t\"Name\": \"relay\",\n\t\"Count\": 3\n}", JSONify(input, true))
	assert.Contains(JSONify(make(chan int), false), "json.Marshal failed")
}
