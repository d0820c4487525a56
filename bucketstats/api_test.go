// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package bucketstats

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testRelayStats struct {
	RequestsSubmitted Total
	BytesTransferred  Average
	BufferSizes       BucketLog2Round
	Named             Total `json:"-"`
	notAStat          int
}

func TestLog2RoundIdx(t *testing.T) {
	var testCases = []struct {
		value uint64
		idx   uint
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 3}, {5, 3}, {6, 4}, {11, 4}, {12, 5}, {22, 5}, {23, 6},
		{1 << 20, 21}, {math.MaxUint64, 65},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.idx, log2RoundIdx(testCase.value), "value %d", testCase.value)
	}

	// Every bucket's RangeLow maps to that bucket and RangeLow-1 to the one below
	for idx := uint(3); idx < 65; idx++ {
		assert.Equal(t, idx, log2RoundIdx(log2RoundRangeLow(idx)))
		assert.Equal(t, idx-1, log2RoundIdx(log2RoundRangeLow(idx)-1))
	}
}

func TestRegisterAndSprint(t *testing.T) {
	var stats testRelayStats

	stats.Named.Name = "Renamed Stat"

	Register("relaytest", "group", &stats)
	defer UnRegister("relaytest", "group")

	assert.Equal(t, "RequestsSubmitted", stats.RequestsSubmitted.Name)
	assert.Equal(t, "Renamed_Stat", stats.Named.Name)
	assert.Equal(t, uint(65), stats.BufferSizes.NBucket)

	stats.RequestsSubmitted.Increment()
	stats.RequestsSubmitted.Add(2)
	assert.Equal(t, uint64(3), stats.RequestsSubmitted.TotalGet())

	assert.Equal(t, uint64(0), stats.BytesTransferred.AverageGet())
	stats.BytesTransferred.Add(38)
	stats.BytesTransferred.Add(62)
	assert.Equal(t, uint64(2), stats.BytesTransferred.CountGet())
	assert.Equal(t, uint64(50), stats.BytesTransferred.AverageGet())

	stats.BufferSizes.Add(4)
	stats.BufferSizes.Add(5)
	stats.BufferSizes.Add(4096)
	assert.Equal(t, uint64(3), stats.BufferSizes.CountGet())
	assert.Equal(t, uint64(4105), stats.BufferSizes.TotalGet())

	dist := stats.BufferSizes.DistGet()
	assert.Equal(t, 65, len(dist))
	assert.Equal(t, uint64(2), dist[3].Count)
	assert.Equal(t, uint64(4), dist[3].NominalVal)
	assert.Equal(t, uint64(3), dist[3].RangeLow)
	assert.Equal(t, uint64(5), dist[3].RangeHigh)
	assert.Equal(t, uint64(1), dist[13].Count)

	out := SprintStats("relaytest", "*")
	assert.Contains(t, out, "relaytest.group.RequestsSubmitted total:3\n")
	assert.Contains(t, out, "relaytest.group.BytesTransferred total:100 count:2 avg:50\n")
	assert.Contains(t, out, "relaytest.group.BufferSizes total:4105 count:3 avg:1368 4:2 2^12:1\n")
	assert.Equal(t, 4, strings.Count(out, "\n"))

	assert.Panics(t, func() { Register("relaytest", "group", &stats) })
	assert.Panics(t, func() { Register("", "", &stats) })
	assert.Panics(t, func() { Register("relaytest", "notapointer", stats) })
}

func TestUnRegister(t *testing.T) {
	var stats testRelayStats

	Register("relaytest2", "", &stats)
	assert.Contains(t, SprintStats("relaytest2", "*"), "relaytest2.RequestsSubmitted")

	UnRegister("relaytest2", "")
	assert.Equal(t, "", SprintStats("relaytest2", "*"))

	// Re-registration after UnRegister is permitted
	Register("relaytest2", "", &stats)
	UnRegister("relaytest2", "")
}
