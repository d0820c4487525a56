// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/endpoint"
	"github.com/NVIDIA/filerelay/halter"
	"github.com/NVIDIA/filerelay/trackedlock"
	"github.com/NVIDIA/filerelay/utils"
)

type httpRequestHandler struct{}

// TriggerStatusStruct is the JSON body of GET /trigger.
type TriggerStatusStruct struct {
	Available []string
	Armed     map[string]uint32
}

// RuntimeStatusStruct is the JSON body of GET /runtime.
type RuntimeStatusStruct struct {
	Goroutines    int
	HeapAlloc     uint64
	NumGC         uint32
	LongLockHolds uint64
}

func serveHTTP() {
	_ = http.Serve(globals.netListener, httpRequestHandler{})
	globals.wg.Done()
}

func (h httpRequestHandler) ServeHTTP(responseWriter http.ResponseWriter, request *http.Request) {
	globals.Lock()
	if globals.active {
		switch request.Method {
		case http.MethodGet:
			doGet(responseWriter, request)
		case http.MethodPost:
			doPost(responseWriter, request)
		default:
			responseWriter.WriteHeader(http.StatusMethodNotAllowed)
		}
	} else {
		responseWriter.WriteHeader(http.StatusServiceUnavailable)
	}
	globals.Unlock()
}

func doGet(responseWriter http.ResponseWriter, request *http.Request) {
	path := strings.TrimRight(request.URL.Path, "/")

	switch {
	case "" == path:
		doGetOfIndex(responseWriter, request)
	case "/config" == path:
		doGetOfConfig(responseWriter, request)
	case "/stats" == path:
		doGetOfStats(responseWriter, request)
	case "/endpoint" == path:
		writeJSON(responseWriter, endpoint.Status())
	case "/runtime" == path:
		doGetOfRuntime(responseWriter, request)
	case strings.HasPrefix(request.URL.Path, "/trigger"):
		doGetOfTrigger(responseWriter, request)
	default:
		responseWriter.WriteHeader(http.StatusNotFound)
	}
}

func doGetOfIndex(responseWriter http.ResponseWriter, request *http.Request) {
	responseWriter.Header().Set("Content-Type", "text/plain")
	responseWriter.WriteHeader(http.StatusOK)
	_, _ = responseWriter.Write([]byte("/config\n/stats\n/endpoint\n/runtime\n/trigger\n"))
}

func writeJSON(responseWriter http.ResponseWriter, body interface{}) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(http.StatusOK)
	_, _ = responseWriter.Write([]byte(utils.JSONify(body, true)))
	_, _ = responseWriter.Write([]byte("\n"))
}

// doGetOfConfig returns the confMap as JSON, indented unless ?compact=1 (or any
// value other than "", "0", and "false").
func doGetOfConfig(responseWriter http.ResponseWriter, request *http.Request) {
	var (
		confMapJSON       bytes.Buffer
		confMapJSONPacked []byte
		ok                bool
		paramList         []string
		sendPackedConfig  bool
	)

	paramList, ok = request.URL.Query()["compact"]
	if ok && (0 < len(paramList)) {
		sendPackedConfig = !((paramList[0] == "") || (paramList[0] == "0") || (paramList[0] == "false"))
	} else {
		sendPackedConfig = false
	}

	confMapJSONPacked, _ = json.Marshal(globals.confMap)

	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(http.StatusOK)

	if sendPackedConfig {
		_, _ = responseWriter.Write(confMapJSONPacked)
	} else {
		_ = json.Indent(&confMapJSON, confMapJSONPacked, "", "\t")
		_, _ = responseWriter.Write(confMapJSON.Bytes())
		_, _ = responseWriter.Write([]byte("\n"))
	}
}

// doGetOfStats serves bucketstats, optionally narrowed by ?pkg= and ?group=.
func doGetOfStats(responseWriter http.ResponseWriter, request *http.Request) {
	pkgName := request.FormValue("pkg")
	if "" == pkgName {
		pkgName = "*"
	}
	groupName := request.FormValue("group")
	if "" == groupName {
		groupName = "*"
	}

	responseWriter.Header().Set("Content-Type", "text/plain")
	responseWriter.WriteHeader(http.StatusOK)
	_, _ = responseWriter.Write([]byte(bucketstats.SprintStats(pkgName, groupName)))
}

func doGetOfRuntime(responseWriter http.ResponseWriter, request *http.Request) {
	var (
		memStats runtime.MemStats
	)

	runtime.ReadMemStats(&memStats)

	writeJSON(responseWriter, RuntimeStatusStruct{
		Goroutines:    runtime.NumGoroutine(),
		HeapAlloc:     memStats.HeapAlloc,
		NumGC:         memStats.NumGC,
		LongLockHolds: trackedlock.LongHoldCount(),
	})
}

func splitTriggerPath(path string) (pathSplit []string, numPathParts int) {
	pathSplit = strings.Split(path, "/") // leading  "/" places "" in pathSplit[0]
	//                                      pathSplit[1] must be "trigger" based on how we got here
	//                                      trailing "/" places "" in pathSplit[len(pathSplit)-1]
	numPathParts = len(pathSplit) - 1
	if "" == pathSplit[numPathParts] {
		numPathParts--
	}
	return
}

func isTrigger(haltTriggerString string) bool {
	for _, available := range halter.List() {
		if available == haltTriggerString {
			return true
		}
	}
	return false
}

func doGetOfTrigger(responseWriter http.ResponseWriter, request *http.Request) {
	pathSplit, numPathParts := splitTriggerPath(request.URL.Path)

	switch numPathParts {
	case 1:
		// Form: /trigger
		writeJSON(responseWriter, TriggerStatusStruct{
			Available: halter.List(),
			Armed:     halter.Dump(),
		})
	case 2:
		// Form: /trigger/<trigger-name>
		haltTriggerString := pathSplit[2]
		if !isTrigger(haltTriggerString) {
			responseWriter.WriteHeader(http.StatusNotFound)
			return
		}
		responseWriter.Header().Set("Content-Type", "text/plain")
		responseWriter.WriteHeader(http.StatusOK)
		_, _ = responseWriter.Write([]byte(strconv.FormatUint(uint64(halter.Dump()[haltTriggerString]), 10) + "\n"))
	default:
		responseWriter.WriteHeader(http.StatusNotFound)
	}
}

func doPost(responseWriter http.ResponseWriter, request *http.Request) {
	switch {
	case strings.HasPrefix(request.URL.Path, "/trigger"):
		doPostOfTrigger(responseWriter, request)
	default:
		responseWriter.WriteHeader(http.StatusNotFound)
	}
}

// doPostOfTrigger arms /trigger/<trigger-name> with ?count=N, or disarms it
// when N is 0.
func doPostOfTrigger(responseWriter http.ResponseWriter, request *http.Request) {
	var (
		err                   error
		haltTriggerCountAsU64 uint64
		haltTriggerString     string
	)

	pathSplit, numPathParts := splitTriggerPath(request.URL.Path)

	switch numPathParts {
	case 2:
		// Form: /trigger/<trigger-name>

		haltTriggerString = pathSplit[2]
		if !isTrigger(haltTriggerString) {
			responseWriter.WriteHeader(http.StatusNotFound)
			return
		}

		haltTriggerCountAsU64, err = strconv.ParseUint(request.FormValue("count"), 10, 32)
		if nil != err {
			responseWriter.WriteHeader(http.StatusBadRequest)
			return
		}

		if 0 == haltTriggerCountAsU64 {
			err = halter.Disarm(haltTriggerString)
		} else {
			err = halter.Arm(haltTriggerString, uint32(haltTriggerCountAsU64))
		}
		if nil != err {
			responseWriter.WriteHeader(http.StatusBadRequest)
			return
		}

		responseWriter.WriteHeader(http.StatusNoContent)
	default:
		responseWriter.WriteHeader(http.StatusNotFound)
	}
}
