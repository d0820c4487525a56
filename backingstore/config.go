// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package backingstore

import (
	"fmt"
	"os"

	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/transitions"
)

type statsStruct struct {
	OpenCalls     bucketstats.Total
	ReadAt0Calls  bucketstats.Total
	WriteAt0Calls bucketstats.Total
	IOErrors      bucketstats.Total
	ReadAt0Bytes  bucketstats.BucketLog2Round
	WriteAt0Bytes bucketstats.BucketLog2Round
	ReadAt0Usec   bucketstats.BucketLog2Round
	WriteAt0Usec  bucketstats.BucketLog2Round
}

type globalsStruct struct {
	directory       string
	filePerm        os.FileMode
	syncWrites      bool
	truncateOnWrite bool
	stats           statsStruct
}

var globals globalsStruct

func init() {
	transitions.Register("backingstore", &globals)
}

func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	var (
		filePerm uint32
	)

	globals.directory, err = confMap.FetchOptionValueString("BackingStore", "Directory")
	if nil != err {
		err = fmt.Errorf("confMap.FetchOptionValueString(\"BackingStore\", \"Directory\") failed: %v", err)
		return
	}

	filePerm, err = confMap.FetchOptionValueUint32("BackingStore", "FilePerm")
	if nil != err {
		filePerm = 0600
	}
	globals.filePerm = os.FileMode(filePerm)

	globals.syncWrites, err = confMap.FetchOptionValueBool("BackingStore", "SyncWrites")
	if nil != err {
		globals.syncWrites = false
	}

	globals.truncateOnWrite, err = confMap.FetchOptionValueBool("BackingStore", "TruncateOnWrite")
	if nil != err {
		globals.truncateOnWrite = false
	}

	err = os.MkdirAll(globals.directory, 0700)
	if nil != err {
		err = fmt.Errorf("os.MkdirAll(\"%s\", 0700) failed: %v", globals.directory, err)
		return
	}

	globals.stats = statsStruct{}
	bucketstats.Register("backingstore", "", &globals.stats)

	err = nil
	return
}

func (dummy *globalsStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	err = nil
	return
}

// SignaledFinish picks up changes to the write options. A change of Directory
// only applies to handles opened afterwards.
func (dummy *globalsStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	var (
		directory string
	)

	directory, err = confMap.FetchOptionValueString("BackingStore", "Directory")
	if nil != err {
		err = fmt.Errorf("confMap.FetchOptionValueString(\"BackingStore\", \"Directory\") failed: %v", err)
		return
	}
	err = os.MkdirAll(directory, 0700)
	if nil != err {
		err = fmt.Errorf("os.MkdirAll(\"%s\", 0700) failed: %v", directory, err)
		return
	}
	globals.directory = directory

	globals.syncWrites, err = confMap.FetchOptionValueBool("BackingStore", "SyncWrites")
	if nil != err {
		globals.syncWrites = false
	}

	globals.truncateOnWrite, err = confMap.FetchOptionValueBool("BackingStore", "TruncateOnWrite")
	if nil != err {
		globals.truncateOnWrite = false
	}

	err = nil
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	bucketstats.UnRegister("backingstore", "")

	err = nil
	return
}
