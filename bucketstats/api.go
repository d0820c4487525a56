// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package bucketstats implements easy to use statistics collection and
// reporting, including bucketized statistics. Statistics start at zero and
// grow as they are added to.
//
// The statistics provided include totals (Total), averages (Average), and
// distributions (BucketLog2Round).
//
// One or more statistics is placed in a structure and registered, with a
// package name and group name, via a call to Register() before being used. The
// set of the statistics registered can be queried using SprintStats().
//
package bucketstats

import (
	"sync/atomic"
)

// A Totaler can be incremented, or added to, and tracks the total value of all
// values added.
//
type Totaler interface {
	Increment()
	Add(value uint64)
	TotalGet() (total uint64)
}

// An Averager is a Totaler that also counts the values added.
type Averager interface {
	Totaler
	CountGet() (count uint64)
	AverageGet() (avg uint64)
}

// BucketInfo describes an individual statistics bucket:
//
// Count the number of values added to the bucket
// NominalVal the nominal value of the bucket (2^n)
// RangeLow the smallest value mapped to the bucket
// RangeHigh the largest value mapped to the bucket
//
type BucketInfo struct {
	Count      uint64
	NominalVal uint64
	RangeLow   uint64
	RangeHigh  uint64
}

// A Bucketer is an Averager which also tracks the distribution of values.
type Bucketer interface {
	Averager
	DistGet() []BucketInfo
}

// Register initializes a set of statistics.
//
// statsStruct is a pointer to a structure which has one or more exported fields
// holding statistics. It may also contain other fields that are not bucketstats
// types. A statistic with an empty Name is named after its field.
//
// The combination of pkgName and statsGroupName must be unique. One or the
// other, but not both, can be the empty string.
//
func Register(pkgName string, statsGroupName string, statsStruct interface{}) {
	register(pkgName, statsGroupName, statsStruct)
}

// UnRegister a set of statistics. Once unregistered, the same or a different set
// of statistics can be registered using the same name.
//
func UnRegister(pkgName string, statsGroupName string) {
	unRegister(pkgName, statsGroupName)
}

// SprintStats returns the value of all statistics associated with pkgName and
// statsGroupName, one statistic per line, sorted by name.
//
// Use "*" to select all package names with a given group name, all
// groups with a given package name, or all groups.
//
func SprintStats(pkgName string, statsGroupName string) (values string) {
	return sprintStats(pkgName, statsGroupName)
}

// Total is a simple totaler.
type Total struct {
	total uint64 // Ensure 64-bit alignment
	Name  string
}

func (total *Total) Add(value uint64) {
	atomic.AddUint64(&total.total, value)
}

func (total *Total) Increment() {
	atomic.AddUint64(&total.total, 1)
}

func (total *Total) TotalGet() uint64 {
	return atomic.LoadUint64(&total.total)
}

// Average counts a number of items and their average size.
type Average struct {
	count uint64 // Ensure 64-bit alignment
	total uint64 // Ensure 64-bit alignment
	Name  string
}

func (average *Average) Add(value uint64) {
	atomic.AddUint64(&average.total, value)
	atomic.AddUint64(&average.count, 1)
}

func (average *Average) Increment() {
	average.Add(1)
}

func (average *Average) CountGet() uint64 {
	return atomic.LoadUint64(&average.count)
}

func (average *Average) TotalGet() uint64 {
	return atomic.LoadUint64(&average.total)
}

func (average *Average) AverageGet() uint64 {
	count := atomic.LoadUint64(&average.count)
	if 0 == count {
		return 0
	}
	return atomic.LoadUint64(&average.total) / count
}

// BucketLog2Round holds bucketized statistics where the stats value is placed in
// bucket N, determined by round(log2(value) + 1), where round() rounds to the
// nearest integer and value 0 goes in bucket 0 instead of negative infinity.
//
// NBucket determines the number of buckets and has a maximum value of 65 and a
// minimum value of 10. If NBucket is not set it defaults to 65. It must be set
// before the statistic is registered. Values beyond the last bucket are counted
// in the last bucket.
//
// Example mappings of values to buckets:
//
//  Values  Bucket
//       0       0
//       1       1
//       2       2
//   3 - 5       3
//  6 - 11       4
// 12 - 22       5
//     etc.
//
type BucketLog2Round struct {
	total       uint64 // Ensure 64-bit alignment
	Name        string
	NBucket     uint
	statBuckets [65]uint64
}

func (bucketer *BucketLog2Round) Add(value uint64) {
	idx := log2RoundIdx(value)
	if idx > bucketer.nBucket()-1 {
		idx = bucketer.nBucket() - 1
	}

	atomic.AddUint64(&bucketer.statBuckets[idx], 1)
	atomic.AddUint64(&bucketer.total, value)
}

func (bucketer *BucketLog2Round) Increment() {
	bucketer.Add(1)
}

func (bucketer *BucketLog2Round) CountGet() (count uint64) {
	for idx := uint(0); idx < bucketer.nBucket(); idx++ {
		count += atomic.LoadUint64(&bucketer.statBuckets[idx])
	}
	return
}

func (bucketer *BucketLog2Round) TotalGet() uint64 {
	return atomic.LoadUint64(&bucketer.total)
}

func (bucketer *BucketLog2Round) AverageGet() uint64 {
	count := bucketer.CountGet()
	if 0 == count {
		return 0
	}
	return bucketer.TotalGet() / count
}

// DistGet returns BucketInfo information for all the buckets.
func (bucketer *BucketLog2Round) DistGet() []BucketInfo {
	return bucketer.distGet()
}
