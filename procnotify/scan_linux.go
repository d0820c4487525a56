// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package procnotify

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/NVIDIA/filerelay/blunder"
)

const procDir = "/proc"

func scanProcesses() (processes map[int]int, err error) {
	var (
		dir   *os.File
		names []string
		pid   int
		ppid  int
	)

	dir, err = os.Open(procDir)
	if nil != err {
		err = blunder.AddError(err, blunder.NotSupportedError)
		return
	}
	names, err = dir.Readdirnames(-1)
	_ = dir.Close()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	processes = make(map[int]int, len(names))

	for _, name := range names {
		pid, err = strconv.Atoi(name)
		if nil != err {
			continue
		}
		ppid, err = parentOf(pid)
		if nil != err {
			// exited between Readdirnames() and now
			continue
		}
		processes[pid] = ppid
	}

	err = nil
	return
}

// parentOf reads field 4 of /proc/<pid>/stat. Field 2 is the parenthesized
// command name, which may itself contain spaces and parentheses.
func parentOf(pid int) (ppid int, err error) {
	var (
		stat []byte
	)

	stat, err = ioutil.ReadFile(procDir + "/" + strconv.Itoa(pid) + "/stat")
	if nil != err {
		return
	}

	ppid, err = parseStatParent(string(stat))
	return
}

func parseStatParent(stat string) (ppid int, err error) {
	commEnd := strings.LastIndexByte(stat, ')')
	if 0 > commEnd {
		err = blunder.NewError(blunder.InvalidArgError, "malformed stat line %q", stat)
		return
	}

	fields := strings.Fields(stat[commEnd+1:])
	if 2 > len(fields) {
		err = blunder.NewError(blunder.InvalidArgError, "malformed stat line %q", stat)
		return
	}

	ppid, err = strconv.Atoi(fields[1])
	return
}
