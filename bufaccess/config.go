// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package bufaccess

import (
	"fmt"

	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/platform"
	"github.com/NVIDIA/filerelay/refcntpool"
	"github.com/NVIDIA/filerelay/trackedlock"
	"github.com/NVIDIA/filerelay/transitions"
)

const (
	defaultMaxSystemBufferSize = uint64(1024 * 1024)

	// a single system buffer may not claim more than this fraction of RAM
	memSizeDivisor = uint64(16)
)

type statsStruct struct {
	SystemBufferBytes    bucketstats.BucketLog2Round
	SystemBufferFailures bucketstats.Total
	CopyBackBytes        bucketstats.BucketLog2Round
}

type globalsStruct struct {
	trackedlock.RWMutex
	maxSystemBufferSize uint64
	bufPoolSet          *refcntpool.RefCntBufPoolSet
	stats               statsStruct
}

var globals globalsStruct

func init() {
	transitions.Register("bufaccess", &globals)
}

func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	err = configureBufPoolSet(confMap)
	if nil != err {
		return
	}

	globals.stats = statsStruct{}
	bucketstats.Register("bufaccess", "", &globals.stats)

	err = nil
	return
}

func configureBufPoolSet(confMap conf.ConfMap) (err error) {
	var (
		maxSystemBufferSize uint64
	)

	maxSystemBufferSize, err = confMap.FetchOptionValueUint64("BufferAccess", "MaxSystemBufferSize")
	if nil != err {
		maxSystemBufferSize = defaultMaxSystemBufferSize
	}
	if 0 == maxSystemBufferSize {
		err = fmt.Errorf("[BufferAccess]MaxSystemBufferSize must be non-zero")
		return
	}
	if maxSystemBufferSize > (platform.MemSize() / memSizeDivisor) {
		err = fmt.Errorf("[BufferAccess]MaxSystemBufferSize (%d) exceeds 1/%d of RAM (%d)",
			maxSystemBufferSize, memSizeDivisor, platform.MemSize())
		return
	}

	globals.Lock()
	defer globals.Unlock()

	if (nil != globals.bufPoolSet) && (maxSystemBufferSize == globals.maxSystemBufferSize) {
		err = nil
		return
	}

	bufPoolSet := &refcntpool.RefCntBufPoolSet{}
	bufPoolSet.Init(refcntpool.SizesForMax(maxSystemBufferSize))

	globals.maxSystemBufferSize = maxSystemBufferSize
	globals.bufPoolSet = bufPoolSet

	err = nil
	return
}

func (dummy *globalsStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	err = nil
	return
}

// SignaledFinish may resize the pools. Buffers already handed out return to
// the pool set they came from.
func (dummy *globalsStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	err = configureBufPoolSet(confMap)
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	bucketstats.UnRegister("bufaccess", "")

	globals.Lock()
	globals.bufPoolSet = nil
	globals.Unlock()

	err = nil
	return
}
