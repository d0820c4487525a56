// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package admit

import (
	"fmt"
	"sync/atomic"

	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/transitions"
)

type statsStruct struct {
	PassedThrough bucketstats.Total
	Pinned        bucketstats.Total
	Rejected      bucketstats.Total
}

type globalsStruct struct {
	alignment uint64 // accessed atomically
	stats     statsStruct
}

var globals globalsStruct

func init() {
	transitions.Register("admit", &globals)
}

func (dummy *globalsStruct) requiredAlignment() uint64 {
	return atomic.LoadUint64(&globals.alignment)
}

func fetchRequiredAlignment(confMap conf.ConfMap) (alignment uint64, err error) {
	alignment, err = confMap.FetchOptionValueUint64("Admit", "RequiredAlignment")
	if nil != err {
		alignment = 1
	}
	if (0 == alignment) || (0 != (alignment & (alignment - 1))) {
		err = fmt.Errorf("[Admit]RequiredAlignment (%d) must be a power of 2", alignment)
		return
	}
	err = nil
	return
}

func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	var (
		alignment uint64
	)

	alignment, err = fetchRequiredAlignment(confMap)
	if nil != err {
		return
	}
	atomic.StoreUint64(&globals.alignment, alignment)

	globals.stats = statsStruct{}
	bucketstats.Register("admit", "", &globals.stats)

	err = nil
	return
}

func (dummy *globalsStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	err = nil
	return
}

func (dummy *globalsStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	var (
		alignment uint64
	)

	alignment, err = fetchRequiredAlignment(confMap)
	if nil != err {
		return
	}
	atomic.StoreUint64(&globals.alignment, alignment)

	err = nil
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	bucketstats.UnRegister("admit", "")

	err = nil
	return
}
