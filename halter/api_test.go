// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package halter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testHaltErr error
)

func testHalt(err error) {
	testHaltErr = err
}

func TestAPI(t *testing.T) {
	ConfigureTestModeHaltCB(testHalt)
	defer ConfigureTestModeHaltCB(nil)

	assert.Empty(t, Dump())

	err := Arm("halter.testHaltLabel0", 1)
	require.Error(t, err)
	assert.Equal(t, "halter.Arm(haltLabelString='halter.testHaltLabel0',) - label unknown", err.Error())

	err = Arm("halter.testHaltLabel1", 0)
	require.Error(t, err)
	assert.Equal(t, "halter.Arm(haltLabel==halter.testHaltLabel1,) called with haltAfterCount==0", err.Error())

	require.NoError(t, Arm("halter.testHaltLabel1", 1))
	assert.Equal(t, map[string]uint32{"halter.testHaltLabel1": 1}, Dump())

	require.NoError(t, Arm("halter.testHaltLabel2", 2))
	assert.Equal(t, map[string]uint32{"halter.testHaltLabel1": 1, "halter.testHaltLabel2": 2}, Dump())

	require.NoError(t, Disarm("halter.testHaltLabel1"))
	assert.Equal(t, map[string]uint32{"halter.testHaltLabel2": 2}, Dump())

	assert.Error(t, Disarm("halter.testHaltLabel0"))

	testHaltErr = nil
	Trigger(apiTestHaltLabel1)
	assert.Nil(t, testHaltErr, "disarmed trigger must not halt")

	Trigger(apiTestHaltLabel2)
	assert.Nil(t, testHaltErr)
	assert.Equal(t, map[string]uint32{"halter.testHaltLabel2": 1}, Dump())

	Trigger(apiTestHaltLabel2)
	require.NotNil(t, testHaltErr)
	assert.Equal(t, "halter.Trigger(haltLabelString==halter.testHaltLabel2) triggered HALT", testHaltErr.Error())
	assert.Empty(t, Dump())

	availableTriggers := List()
	assert.Contains(t, availableTriggers, "backingstore.WriteAt0")
	assert.Equal(t, len(HaltLabelStrings), len(availableTriggers))
}
