// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package refcntpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/filerelay/blunder"
)

type testItem struct {
	RefCntItem
	recycled int
}

func TestRefCntItem(t *testing.T) {
	var recycledCnt int

	refCntPool := &RefCntItemPool{
		New: func() interface{} {
			return &testItem{}
		},
		Recycle: func(item interface{}) {
			item.(*testItem).recycled++
			recycledCnt++
		},
	}

	item0 := refCntPool.Get().(*testItem)
	item1 := refCntPool.Get().(*testItem)
	assert.True(t, item0 != item1, "Get() returned the same item twice")
	assert.Equal(t, int32(1), item0.RefCnt())

	item0.Hold()
	item0.Hold()
	assert.Equal(t, int32(3), item0.RefCnt())
	item0.Release()
	item0.Release()
	assert.Equal(t, 0, recycledCnt)
	item0.AssertIsHeld()

	item0.Release()
	assert.Equal(t, 1, recycledCnt)
	assert.Equal(t, 1, item0.recycled)
	assert.Equal(t, int32(0), item0.RefCnt())

	// releasing a released item is fatal
	assert.Panics(t, func() { item0.Release() })
	assert.Panics(t, func() { item0.AssertIsHeld() })

	// Hold() requires an existing hold
	item2 := &testItem{}
	assert.Panics(t, func() { item2.Hold() })

	item1.Release()
	assert.Equal(t, 2, recycledCnt)
}

func TestRefCntBufPoolSet(t *testing.T) {
	var slabs RefCntBufPoolSet

	sizes := SizesForMax(64 * 1024)
	assert.Equal(t, []uint64{256, 1024, 4096, 16384, 65536}, sizes)

	slabs.Init(sizes)
	assert.Equal(t, uint64(64*1024), slabs.MaxBufSize())
	assert.Panics(t, func() { slabs.Init(sizes) })

	for _, sz := range []uint64{1, 255, 256, 257, 4000, 65536} {
		bufp, err := slabs.GetRefCntBuf(sz)
		require.NoError(t, err)
		assert.Equal(t, int(sz), len(bufp.Buf))
		for _, b := range bufp.Buf {
			require.Equal(t, byte(0), b)
		}
		// dirty the buffer so a reissue would show stale bytes if not zeroed
		for i := range bufp.Buf {
			bufp.Buf[i] = 0xA5
		}
		bufp.Release()
	}

	bufp, err := slabs.GetRefCntBuf(16)
	require.NoError(t, err)
	for _, b := range bufp.Buf {
		assert.Equal(t, byte(0), b)
	}
	bufp.Release()

	_, err = slabs.GetRefCntBuf(64*1024 + 1)
	assert.True(t, blunder.Is(err, blunder.OutOfMemoryError))

	var empty RefCntBufPoolSet
	_, err = empty.GetRefCntBuf(1)
	assert.True(t, blunder.Is(err, blunder.OutOfMemoryError))
}

func TestPoolSizesNotIncreasing(t *testing.T) {
	var slabs RefCntBufPoolSet
	assert.Panics(t, func() { slabs.Init([]uint64{1024, 1024}) })
	assert.Equal(t, []uint64{100}, SizesForMax(100))
	assert.Equal(t, 0, len(SizesForMax(0)))
}
