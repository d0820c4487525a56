// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package conf parses .INI/.conf style configuration into a ConfMap.
//
// A file to load typically looks like:
//
//   [<section_name_1>]
//   <option_name_0> :
//   <option_name_1> = <value_1>
//   <option_name_2> : <value_2> <value_3>
//   <option_name_3> = <value_4> <value_5>,<value_6>
//
//   # A comment on its own line starting with '#'
//   ; A comment on its own line starting with ';'
//
//   [<section_name_2>]          ; A comment at the end of a line starting with ';'
//   <option_name_4> : <value_7> # A comment at the end of a line starting with '#'
//
//   .include <included .INI/.conf path>
//
// Individual options may be overridden (e.g. from the command line) with strings like:
//
//   <section_name>.<option_name> = <value_1>, <value_2>
//
package conf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ConfMap is accessed via confMap[section_name][option_name][option_value_index] or via the methods below
type ConfMapOption []string
type ConfMapSection map[string]ConfMapOption
type ConfMap map[string]ConfMapSection

// RegEx components used below:

const (
	assignment   = "([ \t]*[=:][ \t]*)"
	dot          = "(\\.)"
	leftBracket  = "(\\[)"
	rightBracket = "(\\])"
	separator    = "([ \t]+|([ \t]*,[ \t]*))"
	token        = "(([0-9A-Za-z_\\*\\-/:\\.\\[\\]]+)\\$?)"
	whiteSpace   = "([ \t]+)"
)

var (
	stringRE                          = regexp.MustCompile("\\A" + token + dot + token + assignment + "(" + token + "(" + separator + token + ")*)?\\z")
	sectionNameOptionNameSeparatorRE  = regexp.MustCompile(dot)
	sectionHeaderLineRE               = regexp.MustCompile("\\A" + leftBracket + token + rightBracket + "\\z")
	optionLineRE                      = regexp.MustCompile("\\A" + token + assignment + "(" + token + "(" + separator + token + ")*)?\\z")
	optionNameOptionValuesSeparatorRE = regexp.MustCompile(assignment)
	optionValueSeparatorRE            = regexp.MustCompile(separator)
	includeLineRE                     = regexp.MustCompile("\\A\\.include" + whiteSpace + token + "\\z")
	includeFilePathSeparatorRE        = regexp.MustCompile(whiteSpace)
)

// MakeConfMap returns an newly created empty ConfMap
func MakeConfMap() (confMap ConfMap) {
	confMap = make(ConfMap)
	return
}

// MakeConfMapFromFile returns a newly created ConfMap loaded with the contents of the confFilePath-specified file
func MakeConfMapFromFile(confFilePath string) (confMap ConfMap, err error) {
	confMap = MakeConfMap()
	err = confMap.UpdateFromFile(confFilePath)
	return
}

// MakeConfMapFromStrings returns a newly created ConfMap loaded with the contents specified in confStrings
func MakeConfMapFromStrings(confStrings []string) (confMap ConfMap, err error) {
	confMap = MakeConfMap()
	err = confMap.UpdateFromStrings(confStrings)
	if nil != err {
		err = fmt.Errorf("Error building confMap from conf strings: %v", err)
	}
	return
}

func splitOptionValues(optionValues string) (optionValuesSplit []string) {
	if "" == optionValues {
		optionValuesSplit = []string{}
		return
	}
	optionValuesSplit = optionValueSeparatorRE.Split(optionValues, -1)
	return
}

func (confMap ConfMap) setOption(sectionName string, optionName string, optionValues []string) {
	section, found := confMap[sectionName]
	if !found {
		section = make(ConfMapSection)
		confMap[sectionName] = section
	}
	section[optionName] = optionValues
}

// UpdateFromString modifies a pre-existing ConfMap based on an update
// specified in confString (e.g., from an extra command-line argument)
func (confMap ConfMap) UpdateFromString(confString string) (err error) {
	confStringTrimmed := strings.Trim(confString, " \t")

	if 0 == len(confStringTrimmed) {
		err = fmt.Errorf("trimmed confString: \"%v\" was found to be empty", confString)
		return
	}

	if !stringRE.MatchString(confStringTrimmed) {
		err = fmt.Errorf("malformed confString: \"%v\"", confString)
		return
	}

	sectionNameOptionPayload := sectionNameOptionNameSeparatorRE.Split(confStringTrimmed, 2)
	optionNameOptionValues := optionNameOptionValuesSeparatorRE.Split(sectionNameOptionPayload[1], 2)

	confMap.setOption(sectionNameOptionPayload[0], optionNameOptionValues[0], splitOptionValues(optionNameOptionValues[1]))

	err = nil
	return
}

// UpdateFromStrings applies UpdateFromString to each of confStrings in order
func (confMap ConfMap) UpdateFromStrings(confStrings []string) (err error) {
	for _, confString := range confStrings {
		err = confMap.UpdateFromString(confString)
		if nil != err {
			return
		}
	}
	err = nil
	return
}

// UpdateFromFile modifies a pre-existing ConfMap based on updates specified in
// confFilePath ("-" reads from os.Stdin)
func (confMap ConfMap) UpdateFromFile(confFilePath string) (err error) {
	var (
		confFile *os.File
		reader   io.Reader
	)

	if "-" == confFilePath {
		reader = os.Stdin
	} else {
		confFile, err = os.Open(confFilePath)
		if nil != err {
			return
		}
		defer confFile.Close()
		reader = confFile
	}

	err = confMap.updateFromReader(confFilePath, reader)

	return
}

func (confMap ConfMap) updateFromReader(confFilePath string, reader io.Reader) (err error) {
	var (
		currentLine        string
		currentLineNumber  int
		currentSectionName string
		nestedConfFilePath string
		optionNameValues   []string
		scanner            *bufio.Scanner
	)

	scanner = bufio.NewScanner(reader)

	for scanner.Scan() {
		currentLineNumber++

		currentLine = strings.SplitN(scanner.Text(), ";", 2)[0]
		currentLine = strings.SplitN(currentLine, "#", 2)[0]
		currentLine = strings.Trim(currentLine, " \t\r")

		if 0 == len(currentLine) {
			continue
		}

		switch {
		case includeLineRE.MatchString(currentLine):
			nestedConfFilePath = includeFilePathSeparatorRE.Split(currentLine, 2)[1]
			if !filepath.IsAbs(nestedConfFilePath) {
				nestedConfFilePath = filepath.Join(filepath.Dir(confFilePath), nestedConfFilePath)
			}

			err = confMap.UpdateFromFile(nestedConfFilePath)
			if nil != err {
				return
			}

			currentSectionName = ""
		case sectionHeaderLineRE.MatchString(currentLine):
			currentSectionName = currentLine[1 : len(currentLine)-1]
		default:
			if "" == currentSectionName {
				err = fmt.Errorf("file %v line %v: option outside of a Section", confFilePath, currentLineNumber)
				return
			}
			if !optionLineRE.MatchString(currentLine) {
				err = fmt.Errorf("file %v line %v: malformed line '%v'", confFilePath, currentLineNumber, currentLine)
				return
			}

			optionNameValues = optionNameOptionValuesSeparatorRE.Split(currentLine, 2)

			confMap.setOption(currentSectionName, optionNameValues[0], splitOptionValues(optionNameValues[1]))
		}
	}

	err = scanner.Err()

	return
}

// FetchOptionValueStringSlice returns [sectionName]optionName's string values as a []string
func (confMap ConfMap) FetchOptionValueStringSlice(sectionName string, optionName string) (optionValue []string, err error) {
	optionValue = []string{}

	section, ok := confMap[sectionName]
	if !ok {
		err = fmt.Errorf("[%v] missing", sectionName)
		return
	}

	option, ok := section[optionName]
	if !ok {
		err = fmt.Errorf("[%v]%v missing", sectionName, optionName)
		return
	}

	optionValue = option

	err = nil
	return
}

// FetchOptionValueString returns [sectionName]optionName's single string value
func (confMap ConfMap) FetchOptionValueString(sectionName string, optionName string) (optionValue string, err error) {
	optionValue = ""

	optionValueSlice, err := confMap.FetchOptionValueStringSlice(sectionName, optionName)
	if nil != err {
		return
	}

	if 1 != len(optionValueSlice) {
		err = fmt.Errorf("[%v]%v must be single-valued", sectionName, optionName)
		return
	}

	optionValue = optionValueSlice[0]

	err = nil
	return
}

// FetchOptionValueBool returns [sectionName]optionName's single string value converted to a bool
func (confMap ConfMap) FetchOptionValueBool(sectionName string, optionName string) (optionValue bool, err error) {
	optionValueString, err := confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	switch strings.ToLower(optionValueString) {
	case "yes", "on", "true":
		optionValue = true
	case "no", "off", "false":
		optionValue = false
	default:
		err = fmt.Errorf("[%v]%v couldn't interpret %q as boolean (expected one of 'true'/'false'/'yes'/'no'/'on'/'off')", sectionName, optionName, optionValueString)
		return
	}

	err = nil
	return
}

func (confMap ConfMap) fetchOptionValueUint(sectionName string, optionName string, bitSize int) (optionValue uint64, err error) {
	optionValueString, err := confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	// Base 0 permits e.g. 0x1000 for sizes and alignments
	optionValue, err = strconv.ParseUint(optionValueString, 0, bitSize)
	if nil != err {
		err = fmt.Errorf("[%v]%v strconv.ParseUint() error: %v", sectionName, optionName, err)
		return
	}

	err = nil
	return
}

// FetchOptionValueUint16 returns [sectionName]optionName's single string value converted to a uint16
func (confMap ConfMap) FetchOptionValueUint16(sectionName string, optionName string) (optionValue uint16, err error) {
	optionValueUint64, err := confMap.fetchOptionValueUint(sectionName, optionName, 16)
	optionValue = uint16(optionValueUint64)
	return
}

// FetchOptionValueUint32 returns [sectionName]optionName's single string value converted to a uint32
func (confMap ConfMap) FetchOptionValueUint32(sectionName string, optionName string) (optionValue uint32, err error) {
	optionValueUint64, err := confMap.fetchOptionValueUint(sectionName, optionName, 32)
	optionValue = uint32(optionValueUint64)
	return
}

// FetchOptionValueUint64 returns [sectionName]optionName's single string value converted to a uint64
func (confMap ConfMap) FetchOptionValueUint64(sectionName string, optionName string) (optionValue uint64, err error) {
	optionValue, err = confMap.fetchOptionValueUint(sectionName, optionName, 64)
	return
}

// FetchOptionValueDuration returns [sectionName]optionName's single string value converted to a time.Duration
func (confMap ConfMap) FetchOptionValueDuration(sectionName string, optionName string) (optionValue time.Duration, err error) {
	optionValueString, err := confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValue, err = time.ParseDuration(optionValueString)
	if nil != err {
		return
	}

	if 0 > optionValue {
		err = fmt.Errorf("[%v]%v is negative", sectionName, optionName)
		return
	}

	err = nil
	return
}

// Dump renders confMap in .conf file format with sections and options sorted
func (confMap ConfMap) Dump() string {
	var (
		buf          bytes.Buffer
		optionNames  []string
		sectionNames []string
	)

	sectionNames = make([]string, 0, len(confMap))
	for sectionName := range confMap {
		sectionNames = append(sectionNames, sectionName)
	}
	sort.Strings(sectionNames)

	for i, sectionName := range sectionNames {
		if 0 < i {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "[%s]\n", sectionName)

		section := confMap[sectionName]

		optionNames = make([]string, 0, len(section))
		for optionName := range section {
			optionNames = append(optionNames, optionName)
		}
		sort.Strings(optionNames)

		for _, optionName := range optionNames {
			fmt.Fprintf(&buf, "%s: %s\n", optionName, strings.Join(section[optionName], ", "))
		}
	}

	return buf.String()
}
