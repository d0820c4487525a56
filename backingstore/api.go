// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package backingstore adapts the single file that backs a relay session.
//
// A Handle is opened create-if-absent under [BackingStore]Directory and is
// never truncated on open. Every read and every write starts at offset 0:
// the file is treated as one record that is slurped or replaced whole, not
// as a stream. Callers must serialize access to a Handle.
package backingstore

import (
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/halter"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/platform"
	"github.com/NVIDIA/filerelay/utils"
)

// Handle is an open backing file.
type Handle struct {
	name   string
	path   string
	file   *os.File
	closed bool
}

// Open creates or opens the backing file name relative to [BackingStore]Directory.
//
// name is cleaned and rooted so it cannot escape the directory.
func Open(name string) (handle *Handle, err error) {
	var (
		cleanName string
		file      *os.File
		flag      int
	)

	globals.stats.OpenCalls.Increment()

	cleanName = path.Clean("/" + name)[1:]
	if "" == cleanName {
		err = blunder.NewError(blunder.InvalidArgError, "backingstore.Open(\"%s\"): empty name", name)
		return
	}

	handle = &Handle{
		name: cleanName,
		path: filepath.Join(globals.directory, filepath.FromSlash(cleanName)),
	}

	flag = os.O_RDWR | os.O_CREATE

	if globals.syncWrites {
		file, err = platform.OpenFileSync(handle.path, flag, globals.filePerm)
	} else {
		file, err = os.OpenFile(handle.path, flag, globals.filePerm)
	}
	if nil != err {
		globals.stats.IOErrors.Increment()
		err = blunder.NewError(blunder.IOError, "backingstore.Open(\"%s\") of %s failed: %v", name, handle.path, err)
		handle = nil
		return
	}

	handle.file = file

	logger.Tracef("opened backing file %s", handle.path)

	err = nil
	return
}

// Name returns the cleaned name the Handle was opened with.
func (handle *Handle) Name() string {
	return handle.name
}

// Path returns the full path of the backing file.
func (handle *Handle) Path() string {
	return handle.path
}

// ReadAt0 reads up to len(dst) bytes starting at offset 0.
//
// A backing file shorter than dst yields a short read, not an error.
func (handle *Handle) ReadAt0(dst []byte) (bytesRead uint64, err error) {
	var (
		n int
	)

	globals.stats.ReadAt0Calls.Increment()
	stopwatch := utils.NewStopwatch()

	if handle.closed {
		err = blunder.NewError(blunder.BadFileError, "backingstore.ReadAt0() of %s: handle closed", handle.path)
		return
	}

	halter.Trigger(halter.BackingStoreReadAt0)

	n, err = handle.file.ReadAt(dst, 0)
	if (nil != err) && (io.EOF != err) {
		globals.stats.IOErrors.Increment()
		err = blunder.NewError(blunder.BackingStoreReadError, "backingstore.ReadAt0() of %s failed: %v", handle.path, err)
		return
	}

	bytesRead = uint64(n)
	globals.stats.ReadAt0Bytes.Add(bytesRead)
	globals.stats.ReadAt0Usec.Add(uint64(stopwatch.ElapsedUs()))

	err = nil
	return
}

// WriteAt0 writes src starting at offset 0.
//
// With [BackingStore]TruncateOnWrite the file is then truncated to len(src)
// so src replaces the whole file; otherwise any tail beyond len(src) is kept.
func (handle *Handle) WriteAt0(src []byte) (bytesWritten uint64, err error) {
	var (
		n int
	)

	globals.stats.WriteAt0Calls.Increment()
	stopwatch := utils.NewStopwatch()

	if handle.closed {
		err = blunder.NewError(blunder.BadFileError, "backingstore.WriteAt0() of %s: handle closed", handle.path)
		return
	}

	halter.Trigger(halter.BackingStoreWriteAt0)

	n, err = handle.file.WriteAt(src, 0)
	if nil != err {
		globals.stats.IOErrors.Increment()
		err = blunder.NewError(blunder.BackingStoreWriteError, "backingstore.WriteAt0() of %s failed: %v", handle.path, err)
		return
	}

	if globals.truncateOnWrite {
		err = handle.file.Truncate(int64(n))
		if nil != err {
			globals.stats.IOErrors.Increment()
			err = blunder.NewError(blunder.BackingStoreWriteError, "backingstore.WriteAt0() truncate of %s failed: %v", handle.path, err)
			return
		}
	}

	bytesWritten = uint64(n)
	globals.stats.WriteAt0Bytes.Add(bytesWritten)
	globals.stats.WriteAt0Usec.Add(uint64(stopwatch.ElapsedUs()))

	err = nil
	return
}

// Close releases the backing file. Closing twice fails with BadFileError.
func (handle *Handle) Close() (err error) {
	if handle.closed {
		err = blunder.NewError(blunder.BadFileError, "backingstore.Close() of %s: already closed", handle.path)
		return
	}

	handle.closed = true

	err = handle.file.Close()
	if nil != err {
		err = blunder.NewError(blunder.IOError, "backingstore.Close() of %s failed: %v", handle.path, err)
		return
	}

	logger.Tracef("closed backing file %s", handle.path)

	err = nil
	return
}

// Counts returns the number of Open, ReadAt0 and WriteAt0 calls since Up().
func Counts() (opens uint64, reads uint64, writes uint64) {
	opens = globals.stats.OpenCalls.TotalGet()
	reads = globals.stats.ReadAt0Calls.TotalGet()
	writes = globals.stats.WriteAt0Calls.TotalGet()
	return
}
