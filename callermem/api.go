// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package callermem models the address space of the context that issues relay
// requests.
//
// Raw (METHOD_NEITHER) control requests carry bare addresses into this space.
// Before such an address may be dereferenced it must be probed (mapped, with
// the required access, aligned) and pinned. A pinned MemoryObject holds a
// reference on its region: until the last hold is released the caller can
// neither unmap nor re-protect that region.
package callermem

import (
	"github.com/google/btree"

	"github.com/NVIDIA/filerelay/refcntpool"
	"github.com/NVIDIA/filerelay/trackedlock"
)

// Address is a location in an AddressSpace. Address 0 is never mapped.
type Address uint64

// Access is a set of permissions on a mapped region.
type Access uint8

const (
	AccessNone  Access = 0
	AccessRead  Access = 1 << 0
	AccessWrite Access = 1 << 1

	AccessReadWrite = AccessRead | AccessWrite
)

// PageSize is the granularity at which Map() places regions.
const PageSize = 4096

// AddressSpace is a caller's set of mapped regions.
type AddressSpace struct {
	trackedlock.Mutex
	regions     *btree.BTree // of *regionStruct ordered by base
	nextBase    Address
	pinnedCount int // regions with a non-zero pinCount
}

// MemoryObject is a pinned view of [Address(), Address()+Length()) in an
// AddressSpace. It starts with one hold; the final Release() unpins.
type MemoryObject struct {
	refcntpool.RefCntItem
	space   *AddressSpace
	region  *regionStruct
	address Address
	length  uint64
	access  Access
	buf     []byte
}

// NewAddressSpace returns an empty AddressSpace.
func NewAddressSpace() (space *AddressSpace) {
	space = &AddressSpace{
		regions:  btree.New(regionsBTreeDegree),
		nextBase: firstMapBase,
	}
	return
}

// Map creates a zero-filled region of length bytes with the given access at
// the next free page-aligned address.
func (space *AddressSpace) Map(length uint64, access Access) (address Address, err error) {
	address, err = space.mapRegion(length, access)
	return
}

// MapAt creates a region at a caller-chosen address. The region may not
// overlap an existing one.
func (space *AddressSpace) MapAt(address Address, length uint64, access Access) (err error) {
	err = space.mapRegionAt(address, length, access)
	return
}

// Unmap removes the region based at address. A pinned region fails with
// blunder.DevBusyError.
func (space *AddressSpace) Unmap(address Address) (err error) {
	err = space.unmapRegion(address)
	return
}

// Protect changes the access of the region based at address. A pinned region
// fails with blunder.DevBusyError.
func (space *AddressSpace) Protect(address Address, access Access) (err error) {
	err = space.protectRegion(address, access)
	return
}

// Bytes returns the caller's own view of [address, address+length). It checks
// only that the range is mapped and is how the caller fills or inspects its
// memory.
func (space *AddressSpace) Bytes(address Address, length uint64) (buf []byte, err error) {
	buf, err = space.callerBytes(address, length)
	return
}

// Probe checks that [address, address+length) lies in one mapped region that
// grants access and that address is a multiple of alignment (0 or 1 disables
// the check). Every failure is blunder.BadAddressError.
func (space *AddressSpace) Probe(address Address, length uint64, access Access, alignment uint64) (err error) {
	space.Lock()
	_, err = space.probeLocked(address, length, access, alignment)
	space.Unlock()
	return
}

// Pin probes the range and, on success, returns a MemoryObject holding the
// region pinned.
func (space *AddressSpace) Pin(address Address, length uint64, access Access, alignment uint64) (memoryObject *MemoryObject, err error) {
	memoryObject, err = space.pin(address, length, access, alignment)
	return
}

// RegionCount returns the number of mapped regions.
func (space *AddressSpace) RegionCount() (count int) {
	space.Lock()
	count = space.regions.Len()
	space.Unlock()
	return
}

// PinnedRegionCount returns the number of regions with at least one pin.
func (space *AddressSpace) PinnedRegionCount() (count int) {
	space.Lock()
	count = space.pinnedCount
	space.Unlock()
	return
}

// Bytes returns the pinned memory. It must not be used after the final Release().
func (memoryObject *MemoryObject) Bytes() []byte {
	return memoryObject.buf
}

func (memoryObject *MemoryObject) Address() Address {
	return memoryObject.address
}

// Length is the length recorded when the memory was pinned.
func (memoryObject *MemoryObject) Length() uint64 {
	return memoryObject.length
}

func (memoryObject *MemoryObject) Access() Access {
	return memoryObject.access
}

func (access Access) String() (accessString string) {
	accessString = "--"
	if AccessRead == (access & AccessRead) {
		accessString = "r" + accessString[1:]
	}
	if AccessWrite == (access & AccessWrite) {
		accessString = accessString[:1] + "w"
	}
	return
}
