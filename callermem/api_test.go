// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package callermem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/filerelay/blunder"
)

func TestMapAndBytes(t *testing.T) {
	space := NewAddressSpace()

	addrA, err := space.Map(100, AccessReadWrite)
	require.NoError(t, err)
	addrB, err := space.Map(PageSize+1, AccessRead)
	require.NoError(t, err)

	assert.Equal(t, Address(0), addrA%PageSize)
	assert.Equal(t, Address(0), addrB%PageSize)
	assert.True(t, addrB >= addrA+PageSize+PageSize, "no guard page between regions")
	assert.Equal(t, 2, space.RegionCount())

	buf, err := space.Bytes(addrA, 100)
	require.NoError(t, err)
	copy(buf, "caller data")

	again, err := space.Bytes(addrA+7, 4)
	require.NoError(t, err)
	assert.Equal(t, "data", string(again))

	_, err = space.Bytes(addrA, 101)
	assert.True(t, blunder.Is(err, blunder.BadAddressError))

	_, err = space.Map(0, AccessRead)
	assert.True(t, blunder.Is(err, blunder.InvalidArgError))
}

func TestMapAtOverlap(t *testing.T) {
	space := NewAddressSpace()

	require.NoError(t, space.MapAt(0x1000, 0x100, AccessRead))
	assert.True(t, blunder.Is(space.MapAt(0x1080, 0x10, AccessRead), blunder.InvalidArgError))
	assert.True(t, blunder.Is(space.MapAt(0x0F80, 0x100, AccessRead), blunder.InvalidArgError))
	assert.True(t, blunder.Is(space.MapAt(0, 0x100, AccessRead), blunder.InvalidArgError))
	require.NoError(t, space.MapAt(0x1100, 0x100, AccessRead))
	require.NoError(t, space.MapAt(0x0F00, 0x100, AccessRead))
	assert.Equal(t, 3, space.RegionCount())

	// Map() steps around regions placed by MapAt()
	require.NoError(t, space.MapAt(firstMapBase, 1, AccessRead))
	addr, err := space.Map(10, AccessRead)
	require.NoError(t, err)
	assert.NotEqual(t, firstMapBase, addr)
}

func TestProbe(t *testing.T) {
	space := NewAddressSpace()

	ro, err := space.Map(64, AccessRead)
	require.NoError(t, err)
	rw, err := space.Map(64, AccessReadWrite)
	require.NoError(t, err)

	assert.NoError(t, space.Probe(ro, 64, AccessRead, 0))
	assert.NoError(t, space.Probe(rw+8, 8, AccessReadWrite, 8))

	badProbes := []struct {
		name      string
		address   Address
		length    uint64
		access    Access
		alignment uint64
	}{
		{"null address with length", 0, 8, AccessRead, 0},
		{"address with zero length", ro, 0, AccessRead, 0},
		{"unmapped", ro + PageSize, 8, AccessRead, 0},
		{"partially mapped", ro + 60, 8, AccessRead, 0},
		{"write to read-only", ro, 8, AccessWrite, 0},
		{"misaligned", rw + 1, 8, AccessRead, 4},
		{"wraps", rw, ^uint64(0), AccessRead, 0},
	}

	for _, bad := range badProbes {
		err = space.Probe(bad.address, bad.length, bad.access, bad.alignment)
		assert.True(t, blunder.Is(err, blunder.ValidationError), bad.name)
		_, err = space.Pin(bad.address, bad.length, bad.access, bad.alignment)
		assert.True(t, blunder.Is(err, blunder.ValidationError), bad.name)
	}

	assert.Equal(t, 0, space.PinnedRegionCount())
}

func TestPinBlocksUnmapAndProtect(t *testing.T) {
	space := NewAddressSpace()

	addr, err := space.Map(32, AccessReadWrite)
	require.NoError(t, err)

	memoryObject, err := space.Pin(addr+4, 16, AccessWrite, 0)
	require.NoError(t, err)
	assert.Equal(t, addr+4, memoryObject.Address())
	assert.Equal(t, uint64(16), memoryObject.Length())
	assert.Equal(t, AccessWrite, memoryObject.Access())
	assert.Equal(t, 1, space.PinnedRegionCount())

	// writes through the pinned view are visible to the caller
	copy(memoryObject.Bytes(), "pinned")
	callerView, err := space.Bytes(addr+4, 6)
	require.NoError(t, err)
	assert.Equal(t, "pinned", string(callerView))

	// a second pin of the same region counts the region once
	second, err := space.Pin(addr, 4, AccessRead, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, space.PinnedRegionCount())

	assert.True(t, blunder.Is(space.Unmap(addr), blunder.DevBusyError))
	assert.True(t, blunder.Is(space.Protect(addr, AccessRead), blunder.DevBusyError))

	memoryObject.Release()
	assert.Equal(t, 1, space.PinnedRegionCount())
	assert.True(t, blunder.Is(space.Unmap(addr), blunder.DevBusyError))

	second.Release()
	assert.Equal(t, 0, space.PinnedRegionCount())

	require.NoError(t, space.Protect(addr, AccessRead))
	_, err = space.Pin(addr, 4, AccessWrite, 0)
	assert.True(t, blunder.Is(err, blunder.ValidationError))

	require.NoError(t, space.Unmap(addr))
	assert.True(t, blunder.Is(space.Unmap(addr), blunder.InvalidArgError))
	assert.Equal(t, 0, space.RegionCount())
}

func TestHoldAndDoubleRelease(t *testing.T) {
	space := NewAddressSpace()

	addr, err := space.Map(8, AccessRead)
	require.NoError(t, err)

	memoryObject, err := space.Pin(addr, 8, AccessRead, 0)
	require.NoError(t, err)

	memoryObject.Hold()
	memoryObject.Release()
	assert.Equal(t, 1, space.PinnedRegionCount())

	memoryObject.Release()
	assert.Equal(t, 0, space.PinnedRegionCount())

	assert.Panics(t, func() { memoryObject.Release() })
	assert.Equal(t, 0, space.PinnedRegionCount())
}

func TestAccessString(t *testing.T) {
	assert.Equal(t, "--", AccessNone.String())
	assert.Equal(t, "r-", AccessRead.String())
	assert.Equal(t, "-w", AccessWrite.String())
	assert.Equal(t, "rw", AccessReadWrite.String())
}
