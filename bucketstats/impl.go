// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package bucketstats

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

var (
	pkgNameToGroupName map[string]map[string]interface{}
	statsNameMapLock   sync.Mutex
)

func register(pkgName string, statsGroupName string, statsStruct interface{}) {
	if pkgName == "" && statsGroupName == "" {
		panic(fmt.Sprintf("statistics group must have non-empty pkgName or statsGroupName"))
	}

	if reflect.TypeOf(statsStruct).Kind() != reflect.Ptr ||
		reflect.ValueOf(statsStruct).Elem().Type().Kind() != reflect.Struct {
		panic(fmt.Sprintf("statsStruct for statistics group '%s' is (%s), should be (*struct)",
			statsGroupName, reflect.TypeOf(statsStruct)))
	}

	structAsValue := reflect.ValueOf(statsStruct).Elem()
	structAsType := structAsValue.Type()

	// assign each statistic a name if it doesn't have one; verify each name is only used once
	names := make(map[string]struct{})

	for i := 0; i < structAsType.NumField(); i++ {
		fieldName := structAsType.Field(i).Name
		fieldAsValue := structAsValue.Field(i)

		if !isStatType(structAsType.Field(i).Type) {
			continue
		}

		if !fieldAsValue.CanSet() {
			panic(fmt.Sprintf("statistics group '%s' field %s must be exported to be usable by bucketstats",
				statsGroupName, fieldName))
		}

		statNameValue := fieldAsValue.FieldByName("Name")
		if statNameValue.String() == "" {
			statNameValue.SetString(fieldName)
		} else {
			statNameValue.SetString(scrubName(statNameValue.String()))
		}
		_, ok := names[statNameValue.String()]
		if ok {
			panic(fmt.Sprintf("stats '%s' field %s Name '%s' is already in use",
				statsGroupName, fieldName, statNameValue))
		}
		names[statNameValue.String()] = struct{}{}

		if bucketer, ok := fieldAsValue.Addr().Interface().(*BucketLog2Round); ok {
			if bucketer.NBucket == 0 || bucketer.NBucket > uint(len(bucketer.statBuckets)) {
				bucketer.NBucket = uint(len(bucketer.statBuckets))
			} else if bucketer.NBucket < 10 {
				bucketer.NBucket = 10
			}
		}
	}

	statsGroupName = scrubName(statsGroupName)
	pkgName = scrubName(pkgName)

	statsNameMapLock.Lock()
	defer statsNameMapLock.Unlock()

	if pkgNameToGroupName == nil {
		pkgNameToGroupName = make(map[string]map[string]interface{})
	}
	if pkgNameToGroupName[pkgName] == nil {
		pkgNameToGroupName[pkgName] = make(map[string]interface{})
	}

	if pkgNameToGroupName[pkgName][statsGroupName] != nil {
		panic(fmt.Sprintf("pkgName '%s' with statsGroupName '%s' is already registered",
			pkgName, statsGroupName))
	}
	pkgNameToGroupName[pkgName][statsGroupName] = statsStruct
}

func isStatType(fieldAsType reflect.Type) bool {
	switch fieldAsType {
	case reflect.TypeOf(Total{}), reflect.TypeOf(Average{}), reflect.TypeOf(BucketLog2Round{}):
		return true
	}
	return false
}

func unRegister(pkgName string, statsGroupName string) {
	statsNameMapLock.Lock()
	defer statsNameMapLock.Unlock()

	// silently ignore a statsGroupName that doesn't exist
	if pkgNameToGroupName[pkgName] != nil {
		delete(pkgNameToGroupName[pkgName], statsGroupName)

		if len(pkgNameToGroupName[pkgName]) == 0 {
			delete(pkgNameToGroupName, pkgName)
		}
	}
}

func sprintStats(pkgName string, statsGroupName string) (statValues string) {
	var (
		lines []string
	)

	statsNameMapLock.Lock()
	defer statsNameMapLock.Unlock()

	for pkg, groups := range pkgNameToGroupName {
		if (pkgName != "*") && (pkgName != pkg) {
			continue
		}
		for group, statsStruct := range groups {
			if (statsGroupName != "*") && (statsGroupName != group) {
				continue
			}
			lines = append(lines, sprintStatsStruct(pkg, group, statsStruct)...)
		}
	}

	sort.Strings(lines)

	statValues = strings.Join(lines, "")
	return
}

func sprintStatsStruct(pkgName string, statsGroupName string, statsStruct interface{}) (lines []string) {
	structAsValue := reflect.ValueOf(statsStruct).Elem()
	structAsType := structAsValue.Type()

	for i := 0; i < structAsType.NumField(); i++ {
		if !isStatType(structAsType.Field(i).Type) {
			continue
		}

		switch v := structAsValue.Field(i).Addr().Interface().(type) {
		case *Total:
			lines = append(lines, fmt.Sprintf("%s total:%d\n",
				statisticName(pkgName, statsGroupName, v.Name), v.TotalGet()))
		case *Average:
			lines = append(lines, fmt.Sprintf("%s total:%d count:%d avg:%d\n",
				statisticName(pkgName, statsGroupName, v.Name), v.TotalGet(), v.CountGet(), v.AverageGet()))
		case *BucketLog2Round:
			lines = append(lines, bucketSprint(statisticName(pkgName, statsGroupName, v.Name), v))
		}
	}
	return
}

func statisticName(pkgName string, statsGroupName string, fieldName string) string {
	switch {
	case pkgName == "":
		return statsGroupName + "." + fieldName
	case statsGroupName == "":
		return pkgName + "." + fieldName
	default:
		return pkgName + "." + statsGroupName + "." + fieldName
	}
}

// log2RoundRangeLowTable[idx] is the smallest value mapped to bucket idx. For
// idx >= 3 that is ceil(sqrt(2) * 2^(idx-2)), the point at which log2(value)
// rounds up to idx-1.
var log2RoundRangeLowTable [66]uint64

func init() {
	var (
		bigPow2  big.Int
		bigSqrt  big.Int
		bigTwo   = big.NewInt(2)
		bigOne   = big.NewInt(1)
		exponent int64
	)

	log2RoundRangeLowTable[0] = 0
	log2RoundRangeLowTable[1] = 1
	log2RoundRangeLowTable[2] = 2

	for idx := 3; idx < len(log2RoundRangeLowTable); idx++ {
		// 2^(2*(idx-2)+1) is never a perfect square, so isqrt() + 1 is the ceiling
		exponent = int64(2*(idx-2) + 1)
		bigPow2.Exp(bigTwo, big.NewInt(exponent), nil)
		bigSqrt.Sqrt(&bigPow2)
		bigSqrt.Add(&bigSqrt, bigOne)
		log2RoundRangeLowTable[idx] = bigSqrt.Uint64()
	}
}

// log2RoundIdx returns the bucket for value: 0 for 0, else round(log2(value)) + 1
func log2RoundIdx(value uint64) uint {
	if 0 == value {
		return 0
	}

	floorLog2 := uint(bits.Len64(value)) - 1

	if value >= log2RoundRangeLowTable[floorLog2+2] {
		return floorLog2 + 2
	}
	return floorLog2 + 1
}

func log2RoundRangeLow(idx uint) uint64 {
	return log2RoundRangeLowTable[idx]
}

func (bucketer *BucketLog2Round) nBucket() uint {
	if 0 == bucketer.NBucket {
		return uint(len(bucketer.statBuckets))
	}
	return bucketer.NBucket
}

func (bucketer *BucketLog2Round) distGet() (bucketInfo []BucketInfo) {
	nBucket := bucketer.nBucket()

	bucketInfo = make([]BucketInfo, nBucket)

	for idx := uint(0); idx < nBucket; idx++ {
		bucketInfo[idx].Count = atomic.LoadUint64(&bucketer.statBuckets[idx])
		bucketInfo[idx].RangeLow = log2RoundRangeLow(idx)
		if idx+1 == nBucket {
			bucketInfo[idx].RangeHigh = math.MaxUint64
		} else {
			bucketInfo[idx].RangeHigh = log2RoundRangeLow(idx+1) - 1
		}
		if 0 != idx {
			bucketInfo[idx].NominalVal = uint64(1) << (idx - 1)
		}
	}

	return
}

func bucketSprint(statName string, bucketer *BucketLog2Round) string {
	line := fmt.Sprintf("%s total:%d count:%d avg:%d", statName, bucketer.TotalGet(), bucketer.CountGet(), bucketer.AverageGet())

	for _, info := range bucketer.distGet() {
		if 0 == info.Count {
			continue
		}
		if info.NominalVal < 1024 {
			line += fmt.Sprintf(" %d:%d", info.NominalVal, info.Count)
		} else {
			line += fmt.Sprintf(" 2^%d:%d", bits.Len64(info.NominalVal)-1, info.Count)
		}
	}

	return line + "\n"
}

// scrubName replaces characters that are illegal in names with underbar ('_')
func scrubName(name string) string {
	replaceChar := func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return '_'
		case !unicode.IsPrint(r):
			return '_'
		case r == '*', r == ':', r == '#':
			return '_'
		}
		return r
	}

	return strings.Map(replaceChar, name)
}
