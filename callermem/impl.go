// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package callermem

import (
	"fmt"

	"github.com/google/btree"

	"github.com/NVIDIA/filerelay/blunder"
	"github.com/NVIDIA/filerelay/refcntpool"
)

const (
	regionsBTreeDegree = 16
	firstMapBase       = Address(0x10000)
)

type regionStruct struct {
	base     Address
	data     []byte
	access   Access
	pinCount int
}

func (region *regionStruct) Less(than btree.Item) bool {
	return region.base < than.(*regionStruct).base
}

func (region *regionStruct) end() Address {
	return region.base + Address(len(region.data))
}

var memoryObjectPool = &refcntpool.RefCntItemPool{
	New: func() interface{} {
		return &MemoryObject{}
	},
	Recycle: func(item interface{}) {
		memoryObject := item.(*MemoryObject)
		memoryObject.space.unpin(memoryObject.region)
		memoryObject.space = nil
		memoryObject.region = nil
		memoryObject.buf = nil
	},
}

func roundUpToPage(length uint64) uint64 {
	return (length + PageSize - 1) &^ (PageSize - 1)
}

// regionContainingLocked returns the region whose range includes address, if any.
func (space *AddressSpace) regionContainingLocked(address Address) (region *regionStruct) {
	space.regions.DescendLessOrEqual(&regionStruct{base: address}, func(item btree.Item) bool {
		candidate := item.(*regionStruct)
		if address < candidate.end() {
			region = candidate
		}
		return false
	})
	return
}

func (space *AddressSpace) overlapsLocked(address Address, length uint64) (overlaps bool) {
	if nil != space.regionContainingLocked(address) {
		overlaps = true
		return
	}
	end := address + Address(length)
	space.regions.AscendGreaterOrEqual(&regionStruct{base: address}, func(item btree.Item) bool {
		overlaps = item.(*regionStruct).base < end
		return false
	})
	return
}

func (space *AddressSpace) mapRegion(length uint64, access Access) (address Address, err error) {
	if 0 == length {
		err = blunder.NewError(blunder.InvalidArgError, "callermem.Map(): length must be non-zero")
		return
	}

	space.Lock()
	defer space.Unlock()

	address = space.nextBase
	for space.overlapsLocked(address, length) {
		address += Address(roundUpToPage(length) + PageSize)
	}

	space.regions.ReplaceOrInsert(&regionStruct{
		base:   address,
		data:   make([]byte, length),
		access: access,
	})

	// leave an unmapped guard page between successive regions
	space.nextBase = address + Address(roundUpToPage(length)+PageSize)

	err = nil
	return
}

func (space *AddressSpace) mapRegionAt(address Address, length uint64, access Access) (err error) {
	if (0 == address) || (0 == length) {
		err = blunder.NewError(blunder.InvalidArgError, "callermem.MapAt(0x%X,%d): address and length must be non-zero", address, length)
		return
	}
	if address+Address(length) < address {
		err = blunder.NewError(blunder.InvalidArgError, "callermem.MapAt(0x%X,%d): range wraps", address, length)
		return
	}

	space.Lock()
	defer space.Unlock()

	if space.overlapsLocked(address, length) {
		err = blunder.NewError(blunder.InvalidArgError, "callermem.MapAt(0x%X,%d): overlaps an existing region", address, length)
		return
	}

	space.regions.ReplaceOrInsert(&regionStruct{
		base:   address,
		data:   make([]byte, length),
		access: access,
	})

	err = nil
	return
}

func (space *AddressSpace) regionAtLocked(address Address) (region *regionStruct, err error) {
	item := space.regions.Get(&regionStruct{base: address})
	if nil == item {
		err = blunder.NewError(blunder.InvalidArgError, "callermem: no region based at 0x%X", address)
		return
	}
	region = item.(*regionStruct)
	err = nil
	return
}

func (space *AddressSpace) unmapRegion(address Address) (err error) {
	var (
		region *regionStruct
	)

	space.Lock()
	defer space.Unlock()

	region, err = space.regionAtLocked(address)
	if nil != err {
		return
	}
	if 0 < region.pinCount {
		err = blunder.NewError(blunder.DevBusyError, "callermem.Unmap(0x%X): region pinned %d times", address, region.pinCount)
		return
	}

	space.regions.Delete(region)

	err = nil
	return
}

func (space *AddressSpace) protectRegion(address Address, access Access) (err error) {
	var (
		region *regionStruct
	)

	space.Lock()
	defer space.Unlock()

	region, err = space.regionAtLocked(address)
	if nil != err {
		return
	}
	if 0 < region.pinCount {
		err = blunder.NewError(blunder.DevBusyError, "callermem.Protect(0x%X,%v): region pinned %d times", address, access, region.pinCount)
		return
	}

	region.access = access

	err = nil
	return
}

func (space *AddressSpace) callerBytes(address Address, length uint64) (buf []byte, err error) {
	space.Lock()
	defer space.Unlock()

	region := space.regionContainingLocked(address)
	if (nil == region) || (uint64(region.end()-address) < length) {
		err = blunder.NewError(blunder.BadAddressError, "callermem.Bytes(0x%X,%d): range not mapped", address, length)
		return
	}

	offset := uint64(address - region.base)
	buf = region.data[offset : offset+length : offset+length]

	err = nil
	return
}

func (space *AddressSpace) probeLocked(address Address, length uint64, access Access, alignment uint64) (region *regionStruct, err error) {
	if (0 == address) && (0 != length) {
		err = blunder.NewError(blunder.ValidationError, "callermem: null address with length %d", length)
		return
	}
	if 0 == length {
		err = blunder.NewError(blunder.ValidationError, "callermem: address 0x%X with zero length", address)
		return
	}
	if (1 < alignment) && (0 != (uint64(address) % alignment)) {
		err = blunder.NewError(blunder.ValidationError, "callermem: address 0x%X not aligned to %d", address, alignment)
		return
	}
	if address+Address(length) < address {
		err = blunder.NewError(blunder.ValidationError, "callermem: range 0x%X+%d wraps", address, length)
		return
	}

	region = space.regionContainingLocked(address)
	if nil == region {
		err = blunder.NewError(blunder.ValidationError, "callermem: address 0x%X not mapped", address)
		return
	}
	if uint64(region.end()-address) < length {
		err = blunder.NewError(blunder.ValidationError, "callermem: range 0x%X+%d only partially mapped", address, length)
		region = nil
		return
	}
	if access != (region.access & access) {
		err = blunder.NewError(blunder.ValidationError, "callermem: range 0x%X+%d is %v, need %v", address, length, region.access, access)
		region = nil
		return
	}

	err = nil
	return
}

func (space *AddressSpace) pin(address Address, length uint64, access Access, alignment uint64) (memoryObject *MemoryObject, err error) {
	var (
		region *regionStruct
	)

	space.Lock()

	region, err = space.probeLocked(address, length, access, alignment)
	if nil != err {
		space.Unlock()
		return
	}

	region.pinCount++
	if 1 == region.pinCount {
		space.pinnedCount++
	}

	space.Unlock()

	offset := uint64(address - region.base)

	memoryObject = memoryObjectPool.Get().(*MemoryObject)
	memoryObject.space = space
	memoryObject.region = region
	memoryObject.address = address
	memoryObject.length = length
	memoryObject.access = access
	memoryObject.buf = region.data[offset : offset+length : offset+length]

	err = nil
	return
}

func (space *AddressSpace) unpin(region *regionStruct) {
	space.Lock()
	defer space.Unlock()

	if 0 >= region.pinCount {
		panic(fmt.Sprintf("callermem: unpin of region 0x%X with pinCount %d", region.base, region.pinCount))
	}
	region.pinCount--
	if 0 == region.pinCount {
		space.pinnedCount--
	}
}
