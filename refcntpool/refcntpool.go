// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package refcntpool

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/NVIDIA/filerelay/blunder"
)

func (item *RefCntItem) Hold() {
	newCnt := atomic.AddInt32(&item.refCnt, 1)
	if newCnt < 2 {
		panic(fmt.Sprintf("(*RefCntItem).Hold(): item at %p was not held when called: newCnt %d",
			item, newCnt))
	}
}

func (item *RefCntItem) Release() {
	// only one of several concurrent callers can see newCnt == 0
	newCnt := atomic.AddInt32(&item.refCnt, -1)

	if 0 == newCnt {
		item.pool.put(item.cntItem)
	} else if newCnt < 0 {
		atomic.AddInt32(&item.refCnt, 1)
		panic(fmt.Sprintf("(*RefCntItem).Release(): item at %p was not held when called: newCnt %d",
			item, newCnt))
	}
}

// RefCnt returns the current number of holds.
func (item *RefCntItem) RefCnt() int32 {
	return atomic.LoadInt32(&item.refCnt)
}

func (item *RefCntItem) AssertIsHeld() {
	refCnt := atomic.LoadInt32(&item.refCnt)
	if refCnt < 1 {
		panic(fmt.Sprintf("(*RefCntItem).AssertIsHeld(): refCnt %d < 1 for RefCntItem at %p",
			refCnt, item))
	}
}

func (item *RefCntItem) Init(pool RefCntItemPooler, cntItem interface{}) {
	newCnt := atomic.AddInt32(&item.refCnt, 1)
	if 1 != newCnt {
		panic(fmt.Sprintf("(*RefCntItem).Init(): item at %p in pool %T was not free: newCnt %d",
			item, pool, newCnt))
	}
	item.pool = pool
	item.cntItem = cntItem
}

func (refCntPool *RefCntItemPool) Get() (item interface{}) {
	item = refCntPool.itemPool.Get()
	if nil == item {
		item = refCntPool.New()
	}

	item.(RefCntItemer).Init(refCntPool, item)

	return
}

func (refCntPool *RefCntItemPool) put(item interface{}) {
	if nil != refCntPool.Recycle {
		refCntPool.Recycle(item)
	}
	refCntPool.itemPool.Put(item)
}

// Get returns a *RefCntBuf whose Buf spans the full (zeroed) capacity.
func (poolp *RefCntBufPool) Get() (item interface{}) {
	item = poolp.bufPool.Get()

	bufp := item.(*RefCntBuf)
	bufp.Init(poolp, bufp)
	for i := range bufp.origBuf {
		bufp.origBuf[i] = 0
	}
	bufp.Buf = bufp.origBuf

	return
}

func (poolp *RefCntBufPool) put(item interface{}) {
	bufp := item.(*RefCntBuf)
	bufp.Buf = nil

	poolp.bufPool.Put(item)
}

func (slabs *RefCntBufPoolSet) init(sizes []uint64) {
	if 0 != len(slabs.memBufPools) {
		panic(fmt.Sprintf("(*RefCntBufPoolSet).Init() called more than once for RefCntBufPoolSet at %p", slabs))
	}
	slabs.memBufPools = make([]*RefCntBufPool, len(sizes))
	for i, sz := range sizes {
		if (0 < i) && (sizes[i-1] >= sz) {
			panic(fmt.Sprintf("(*RefCntBufPoolSet).Init() size not increasing: size[%d] %d  size[%d] %d",
				i-1, sizes[i-1], i, sz))
		}
		slabs.memBufPools[i] = RefCntBufPoolMake(sz)
	}
	slabs.bufferPoolSizes = sizes
}

func (slabs *RefCntBufPoolSet) getRefCntBuf(bufSz uint64) (bufp *RefCntBuf, err error) {
	idx := sort.Search(len(slabs.bufferPoolSizes), func(i int) bool {
		return slabs.bufferPoolSizes[i] >= bufSz
	})
	if idx == len(slabs.bufferPoolSizes) {
		err = blunder.NewError(blunder.OutOfMemoryError,
			"GetRefCntBuf(): requested buf size %d exceeds largest pool size %d", bufSz, slabs.MaxBufSize())
		return
	}

	bufp = slabs.memBufPools[idx].Get().(*RefCntBuf)
	bufp.Buf = bufp.Buf[:bufSz]

	err = nil
	return
}
