// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package refcntpool provides pools of reference counted items. An item is
// handed out by a pool with one hold; Hold() adds a hold and Release() drops
// one. On the final Release() the pool's Recycle hook (if any) is invoked and
// the item goes back to the pool.
//
// filerelay uses this for two kinds of request-scoped memory: system buffers
// (RefCntBuf, drawn from a RefCntBufPoolSet sized by the largest buffer a
// request may ask for) and pinned caller memory objects (see callermem), which
// embed a RefCntItem so that releasing the last hold unpins the region.
package refcntpool

import (
	"sync"
)

// RefCntItemer is implemented by anything a RefCntItemPooler hands out.
//
// Init() is only called by the pool, immediately before the item is returned
// from Get(). It receives the pool and the outer object the RefCntItem is
// embedded in.
//
type RefCntItemer interface {
	Init(RefCntItemPooler, interface{})
	Hold()
	Release()
}

// RefCntItemPooler hands out RefCntItemer objects via Get(). put() is only
// reached through the final Release() of an item.
//
type RefCntItemPooler interface {
	Get() interface{}
	put(interface{})
}

// RefCntItem carries the reference count. Embed it to make an object
// reference counted.
//
type RefCntItem struct {
	pool    RefCntItemPooler
	cntItem interface{} // the object this RefCntItem is embedded in
	refCnt  int32       // updated atomically
	_       sync.Mutex  // insure a RefCntItem is not copied
}

// RefCntItemPool is a generic RefCntItemPooler.
//
// New() must be supplied and returns a fresh object embedding a RefCntItem.
// Recycle(), if supplied, runs on the final Release() before the object is
// put back in the pool.
//
type RefCntItemPool struct {
	itemPool sync.Pool
	_        sync.Mutex // insure a RefCntItemPool is not copied

	New     func() interface{}
	Recycle func(interface{})
}

// RefCntBuf is a reference counted byte buffer.
//
// Buf is sized to the length requested of the pool; its capacity is the
// pool's buffer size.
//
type RefCntBuf struct {
	RefCntItem
	origBuf []byte
	Buf     []byte
}

// RefCntBufPool hands out RefCntBufs of a single capacity.
//
type RefCntBufPool struct {
	bufPool sync.Pool
	bufSz   uint64
	_       sync.Mutex // insure a RefCntBufPool is not copied
}

// RefCntBufPoolSet is a set of RefCntBufPools of ascending sizes.
// GetRefCntBuf() picks the smallest pool large enough for the request.
//
type RefCntBufPoolSet struct {
	memBufPools     []*RefCntBufPool
	bufferPoolSizes []uint64
}

// RefCntBufPoolMake returns a pool of RefCntBufs with capacity bufSz.
func RefCntBufPoolMake(bufSz uint64) (poolp *RefCntBufPool) {
	poolp = &RefCntBufPool{bufSz: bufSz}

	poolp.bufPool.New = func() interface{} {
		return &RefCntBuf{origBuf: make([]byte, bufSz)}
	}

	return
}

// Init sets up the pools of a RefCntBufPoolSet. sizes must be strictly
// ascending and Init() must be called exactly once.
//
func (slabs *RefCntBufPoolSet) Init(sizes []uint64) {
	slabs.init(sizes)
}

// GetRefCntBuf returns a zeroed RefCntBuf whose Buf is bufSz bytes long.
//
// Asking for more than the largest pool size fails with
// blunder.OutOfMemoryError.
//
func (slabs *RefCntBufPoolSet) GetRefCntBuf(bufSz uint64) (bufp *RefCntBuf, err error) {
	bufp, err = slabs.getRefCntBuf(bufSz)
	return
}

// MaxBufSize returns the capacity of the largest pool (0 if Init() was never called).
func (slabs *RefCntBufPoolSet) MaxBufSize() uint64 {
	if 0 == len(slabs.bufferPoolSizes) {
		return 0
	}
	return slabs.bufferPoolSizes[len(slabs.bufferPoolSizes)-1]
}

// SizesForMax returns the pool sizes used for a RefCntBufPoolSet whose largest
// buffer is maxSz: successive powers of 4 starting at 256, capped by maxSz.
//
func SizesForMax(maxSz uint64) (sizes []uint64) {
	sizes = make([]uint64, 0)
	for sz := uint64(256); sz < maxSz; sz *= 4 {
		sizes = append(sizes, sz)
	}
	if 0 < maxSz {
		sizes = append(sizes, maxSz)
	}
	return
}
